package training

import (
	"errors"
	"math"
)

// GaussianNB is a Gaussian naive Bayes classifier. Per-class feature
// likelihoods are modelled as independent normals with variance smoothing.
type GaussianNB struct {
	Priors    [2]float64
	Means     [2][]float64
	Variances [2][]float64
	fitted    bool
}

const varianceSmoothing = 1e-9

func (m *GaussianNB) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("naive_bayes: features and labels must be non-empty and equal length")
	}
	d := len(features[0])
	var counts [2]int
	for c := 0; c < 2; c++ {
		m.Means[c] = make([]float64, d)
		m.Variances[c] = make([]float64, d)
	}
	for i, x := range features {
		c := labels[i]
		counts[c]++
		for j, v := range x {
			m.Means[c][j] += v
		}
	}
	for c := 0; c < 2; c++ {
		if counts[c] == 0 {
			continue
		}
		for j := range m.Means[c] {
			m.Means[c][j] /= float64(counts[c])
		}
	}
	// largest feature variance across all data sets the smoothing floor
	var maxVar float64
	for i, x := range features {
		c := labels[i]
		for j, v := range x {
			diff := v - m.Means[c][j]
			m.Variances[c][j] += diff * diff
		}
	}
	for c := 0; c < 2; c++ {
		if counts[c] == 0 {
			continue
		}
		for j := range m.Variances[c] {
			m.Variances[c][j] /= float64(counts[c])
			if m.Variances[c][j] > maxVar {
				maxVar = m.Variances[c][j]
			}
		}
	}
	floor := varianceSmoothing * math.Max(maxVar, 1)
	for c := 0; c < 2; c++ {
		for j := range m.Variances[c] {
			if m.Variances[c][j] < floor {
				m.Variances[c][j] = floor
			}
		}
	}
	total := float64(len(labels))
	m.Priors[0] = float64(counts[0]) / total
	m.Priors[1] = float64(counts[1]) / total
	m.fitted = true
	return nil
}

func (m *GaussianNB) logLikelihood(x []float64, c int) float64 {
	if m.Priors[c] == 0 {
		return math.Inf(-1)
	}
	ll := math.Log(m.Priors[c])
	for j, v := range x {
		variance := m.Variances[c][j]
		diff := v - m.Means[c][j]
		ll += -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
	}
	return ll
}

func (m *GaussianNB) Predict(features [][]float64) ([]int, error) {
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

func (m *GaussianNB) PredictProba(features [][]float64) ([]float64, error) {
	if !m.fitted && m.Means[0] == nil {
		return nil, errors.New("naive_bayes: model not fitted")
	}
	out := make([]float64, len(features))
	for i, x := range features {
		l0 := m.logLikelihood(x, 0)
		l1 := m.logLikelihood(x, 1)
		// normalize in log space to avoid underflow
		maxL := math.Max(l0, l1)
		p0 := math.Exp(l0 - maxL)
		p1 := math.Exp(l1 - maxL)
		out[i] = p1 / (p0 + p1)
	}
	return out, nil
}
