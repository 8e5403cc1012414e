package training

import (
	"errors"
	"math"
)

// GradientBoosting fits an additive model of shallow regression trees on the
// negative gradient of logistic loss. Predicted probability is the sigmoid of
// the accumulated raw score.
type GradientBoosting struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int
	Seed         int64

	InitScore   float64
	Trees       []*TreeNode
	Importances []float64
}

func (m *GradientBoosting) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("gradient_boosting: features and labels must be non-empty and equal length")
	}
	n := len(features)
	d := len(features[0])

	pos := 0
	for _, y := range labels {
		pos += y
	}
	p := float64(pos) / float64(n)
	switch {
	case p <= 0:
		p = 1e-6
	case p >= 1:
		p = 1 - 1e-6
	}
	m.InitScore = math.Log(p / (1 - p))

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = m.InitScore
	}

	m.Trees = make([]*TreeNode, 0, m.NEstimators)
	m.Importances = make([]float64, d)
	residuals := make([]float64, n)

	for t := 0; t < m.NEstimators; t++ {
		for i := range residuals {
			residuals[i] = float64(labels[i]) - sigmoid(scores[i])
		}
		tree := &regressionTree{maxDepth: m.MaxDepth, minSamplesLeaf: 1}
		tree.fit(features, residuals)
		m.Trees = append(m.Trees, tree.root)
		for f, v := range tree.importances {
			m.Importances[f] += v
		}
		for i, x := range features {
			scores[i] += m.LearningRate * tree.predict(x)
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

func (m *GradientBoosting) rawScore(x []float64) float64 {
	score := m.InitScore
	for _, tree := range m.Trees {
		score += m.LearningRate * tree.eval(x)
	}
	return score
}

func (m *GradientBoosting) Predict(features [][]float64) ([]int, error) {
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

func (m *GradientBoosting) PredictProba(features [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, errors.New("gradient_boosting: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		out[i] = sigmoid(m.rawScore(x))
	}
	return out, nil
}

func (m *GradientBoosting) FeatureImportances() []float64 {
	return append([]float64(nil), m.Importances...)
}
