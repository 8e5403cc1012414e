package training

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest bags Gini decision trees over bootstrap samples, each split
// considering a sqrt-sized random feature subset.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64

	Trees       []*DecisionTree
	Importances []float64
}

func (m *RandomForest) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("random_forest: features and labels must be non-empty and equal length")
	}
	n := len(features)
	d := len(features[0])
	rng := rand.New(rand.NewSource(m.Seed))
	subset := int(math.Max(1, math.Round(math.Sqrt(float64(d)))))

	m.Trees = make([]*DecisionTree, 0, m.NEstimators)
	m.Importances = make([]float64, d)

	for i := 0; i < m.NEstimators; i++ {
		bootX := make([][]float64, n)
		bootY := make([]int, n)
		for j := 0; j < n; j++ {
			k := rng.Intn(n)
			bootX[j] = features[k]
			bootY[j] = labels[k]
		}
		tree := &DecisionTree{
			MaxDepth:        m.MaxDepth,
			MinSamplesSplit: m.MinSamplesSplit,
			MinSamplesLeaf:  m.MinSamplesLeaf,
		}
		sampler := func(total int) []int {
			perm := rng.Perm(total)
			return perm[:subset]
		}
		if err := tree.fitRandomized(bootX, bootY, sampler); err != nil {
			return err
		}
		m.Trees = append(m.Trees, tree)
		for f, v := range tree.Importances {
			m.Importances[f] += v
		}
	}
	var sum float64
	for _, v := range m.Importances {
		sum += v
	}
	if sum > 0 {
		for f := range m.Importances {
			m.Importances[f] /= sum
		}
	}
	return nil
}

func (m *RandomForest) Predict(features [][]float64) ([]int, error) {
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

// PredictProba averages the per-tree positive-class fractions.
func (m *RandomForest) PredictProba(features [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, errors.New("random_forest: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		var sum float64
		for _, tree := range m.Trees {
			sum += tree.Root.eval(x)
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

func (m *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), m.Importances...)
}
