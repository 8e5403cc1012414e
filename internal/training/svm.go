package training

import (
	"errors"
	"math"
	"math/rand"
)

// SVM is a kernelized soft-margin classifier trained with the Pegasos
// stochastic subgradient method. Probabilities are a sigmoid squash of the
// decision margin, adequate for ranking thresholds but not calibrated.
type SVM struct {
	C      float64
	Kernel string // "rbf" or "linear"
	Gamma  float64 // 0 means 1 / (n_features * var(X))
	Epochs int
	Seed   int64

	SupportX [][]float64
	SupportY []float64 // labels remapped to {-1, +1}
	Alphas   []float64
	GammaFit float64
}

func (m *SVM) kernel(a, b []float64) float64 {
	switch m.Kernel {
	case "linear":
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot
	default: // rbf
		var d float64
		for i := range a {
			diff := a[i] - b[i]
			d += diff * diff
		}
		return math.Exp(-m.GammaFit * d)
	}
}

func (m *SVM) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("svm: features and labels must be non-empty and equal length")
	}
	n := len(features)
	d := len(features[0])

	m.GammaFit = m.Gamma
	if m.GammaFit == 0 {
		// gamma = 1 / (n_features * var(X)) over the flattened matrix
		var sum, sq float64
		total := float64(n * d)
		for _, x := range features {
			for _, v := range x {
				sum += v
				sq += v * v
			}
		}
		meanX := sum / total
		varX := sq/total - meanX*meanX
		if varX <= 0 {
			varX = 1
		}
		m.GammaFit = 1.0 / (float64(d) * varX)
	}

	m.SupportX = features
	m.SupportY = make([]float64, n)
	for i, y := range labels {
		if y == 1 {
			m.SupportY[i] = 1
		} else {
			m.SupportY[i] = -1
		}
	}
	m.Alphas = make([]float64, n)

	lambda := 1.0 / (m.C * float64(n))
	rng := rand.New(rand.NewSource(m.Seed))
	t := 0
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for it := 0; it < n; it++ {
			t++
			i := rng.Intn(n)
			var margin float64
			for j := range m.Alphas {
				if m.Alphas[j] != 0 {
					margin += m.Alphas[j] * m.SupportY[j] * m.kernel(m.SupportX[j], m.SupportX[i])
				}
			}
			margin *= m.SupportY[i] / (lambda * float64(t))
			if margin < 1 {
				m.Alphas[i]++
			}
		}
	}
	// fold the 1/(lambda*T) factor into the alphas
	scale := 1.0 / (lambda * float64(t))
	for i := range m.Alphas {
		m.Alphas[i] *= scale
	}
	return nil
}

func (m *SVM) decision(x []float64) float64 {
	var margin float64
	for j := range m.Alphas {
		if m.Alphas[j] != 0 {
			margin += m.Alphas[j] * m.SupportY[j] * m.kernel(m.SupportX[j], x)
		}
	}
	return margin
}

func (m *SVM) Predict(features [][]float64) ([]int, error) {
	if m.Alphas == nil {
		return nil, errors.New("svm: model not fitted")
	}
	out := make([]int, len(features))
	for i, x := range features {
		if m.decision(x) >= 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *SVM) PredictProba(features [][]float64) ([]float64, error) {
	if m.Alphas == nil {
		return nil, errors.New("svm: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		out[i] = sigmoid(m.decision(x))
	}
	return out, nil
}
