package training

import (
	"errors"
	"math"
)

// LogisticRegression is a binary logistic model trained with full-batch
// gradient descent. Weights start at zero, so training is deterministic.
type LogisticRegression struct {
	LearningRate float64
	Epochs       int
	L2           float64

	Weights []float64
	Bias    float64
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func (m *LogisticRegression) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("logistic_regression: features and labels must be non-empty and equal length")
	}
	n := len(features)
	d := len(features[0])
	m.Weights = make([]float64, d)
	m.Bias = 0

	gradW := make([]float64, d)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for i := range gradW {
			gradW[i] = 0
		}
		gradB := 0.0
		for i, x := range features {
			z := m.Bias
			for j, v := range x {
				z += m.Weights[j] * v
			}
			err := sigmoid(z) - float64(labels[i])
			for j, v := range x {
				gradW[j] += err * v
			}
			gradB += err
		}
		for j := range m.Weights {
			grad := gradW[j]/float64(n) + m.L2*m.Weights[j]
			m.Weights[j] -= m.LearningRate * grad
		}
		m.Bias -= m.LearningRate * gradB / float64(n)
	}
	return nil
}

func (m *LogisticRegression) Predict(features [][]float64) ([]int, error) {
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

func (m *LogisticRegression) PredictProba(features [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, errors.New("logistic_regression: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		z := m.Bias
		for j, v := range x {
			z += m.Weights[j] * v
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}
