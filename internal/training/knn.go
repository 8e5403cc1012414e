package training

import (
	"errors"
	"sort"
)

// KNN is a k-nearest-neighbours classifier over Euclidean distance. The
// training set is stored verbatim; all work happens at prediction time.
type KNN struct {
	K        int
	TrainX   [][]float64
	TrainY   []int
}

func (m *KNN) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("knn: features and labels must be non-empty and equal length")
	}
	m.TrainX = features
	m.TrainY = labels
	return nil
}

func (m *KNN) Predict(features [][]float64) ([]int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *KNN) PredictProba(features [][]float64) ([]float64, error) {
	if len(m.TrainX) == 0 {
		return nil, errors.New("knn: model not fitted")
	}
	k := m.K
	if k > len(m.TrainX) {
		k = len(m.TrainX)
	}
	out := make([]float64, len(features))
	type neighbor struct {
		dist  float64
		label int
	}
	for i, x := range features {
		neighbors := make([]neighbor, len(m.TrainX))
		for j, t := range m.TrainX {
			var d float64
			for f := range x {
				diff := x[f] - t[f]
				d += diff * diff
			}
			neighbors[j] = neighbor{d, m.TrainY[j]}
		}
		sort.SliceStable(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
		positives := 0
		for _, n := range neighbors[:k] {
			positives += n.label
		}
		out[i] = float64(positives) / float64(k)
	}
	return out, nil
}
