package training

import (
	"fmt"
	"sort"
)

// Params is a free-form hyperparameter bag. Defaults are merged under
// caller-supplied overrides before a classifier is constructed.
type Params map[string]interface{}

// clone returns a shallow copy.
func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// merged returns defaults overlaid with overrides.
func (p Params) merged(overrides Params) Params {
	out := p.clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func (p Params) intOr(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (p Params) floatOr(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func (p Params) stringOr(key string, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}

// Classifier is a fitted binary classifier. Implementations are pure Go and
// gob-serializable so trained models round-trip through object storage.
type Classifier interface {
	// Fit trains on row-major features and 0/1 labels.
	Fit(features [][]float64, labels []int) error
	// Predict returns the 0/1 class for each row.
	Predict(features [][]float64) ([]int, error)
	// PredictProba returns P(class=1) for each row.
	PredictProba(features [][]float64) ([]float64, error)
}

// FeatureImportancer is implemented by tree-based classifiers that can report
// per-feature importance scores.
type FeatureImportancer interface {
	FeatureImportances() []float64
}

// Canonical algorithm names.
const (
	AlgoKNN              = "knn"
	AlgoRandomForest     = "random_forest"
	AlgoGradientBoosting = "gradient_boosting"
	AlgoSVM              = "svm"
	AlgoLogisticReg      = "logistic_regression"
	AlgoDecisionTree     = "decision_tree"
	AlgoNaiveBayes       = "naive_bayes"
)

// UnknownAlgorithmError is returned when a requested algorithm is not in the
// registry. Known names are listed to make config typos easy to spot.
type UnknownAlgorithmError struct {
	Name  string
	Known []string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown algorithm %q (known: %v)", e.Name, e.Known)
}

type builder func(params Params, seed int64) Classifier

type entry struct {
	defaults Params
	build    builder
}

// registry is the closed set of supported algorithms. Aliases let preset
// suites reference a tuned variant of a base algorithm.
var registry = map[string]entry{
	AlgoKNN: {
		defaults: Params{"n_neighbors": 5},
		build: func(p Params, _ int64) Classifier {
			return &KNN{K: p.intOr("n_neighbors", 5)}
		},
	},
	AlgoLogisticReg: {
		defaults: Params{"learning_rate": 0.1, "epochs": 500, "l2": 0.0},
		build: func(p Params, _ int64) Classifier {
			return &LogisticRegression{
				LearningRate: p.floatOr("learning_rate", 0.1),
				Epochs:       p.intOr("epochs", 500),
				L2:           p.floatOr("l2", 0),
			}
		},
	},
	AlgoNaiveBayes: {
		defaults: Params{},
		build: func(_ Params, _ int64) Classifier {
			return &GaussianNB{}
		},
	},
	AlgoDecisionTree: {
		defaults: Params{"max_depth": 10, "min_samples_split": 2, "min_samples_leaf": 1},
		build: func(p Params, _ int64) Classifier {
			return &DecisionTree{
				MaxDepth:        p.intOr("max_depth", 10),
				MinSamplesSplit: p.intOr("min_samples_split", 2),
				MinSamplesLeaf:  p.intOr("min_samples_leaf", 1),
			}
		},
	},
	AlgoRandomForest: {
		defaults: Params{"n_estimators": 100, "max_depth": 10, "min_samples_split": 2, "min_samples_leaf": 1},
		build: func(p Params, seed int64) Classifier {
			return &RandomForest{
				NEstimators:     p.intOr("n_estimators", 100),
				MaxDepth:        p.intOr("max_depth", 10),
				MinSamplesSplit: p.intOr("min_samples_split", 2),
				MinSamplesLeaf:  p.intOr("min_samples_leaf", 1),
				Seed:            seed,
			}
		},
	},
	AlgoGradientBoosting: {
		defaults: Params{"n_estimators": 100, "learning_rate": 0.1, "max_depth": 3},
		build: func(p Params, seed int64) Classifier {
			return &GradientBoosting{
				NEstimators:  p.intOr("n_estimators", 100),
				LearningRate: p.floatOr("learning_rate", 0.1),
				MaxDepth:     p.intOr("max_depth", 3),
				Seed:         seed,
			}
		},
	},
	AlgoSVM: {
		defaults: Params{"c": 1.0, "kernel": "rbf", "gamma": "scale", "epochs": 200},
		build: func(p Params, seed int64) Classifier {
			return &SVM{
				C:      p.floatOr("c", 1.0),
				Kernel: p.stringOr("kernel", "rbf"),
				Gamma:  p.floatOr("gamma", 0), // 0 means scale
				Epochs: p.intOr("epochs", 200),
				Seed:   seed,
			}
		},
	},
}

// aliases maps tuned-variant names onto their base algorithm.
var aliases = map[string]string{
	"random_forest_tuned":     AlgoRandomForest,
	"gradient_boosting_tuned": AlgoGradientBoosting,
	"svm_tuned":               AlgoSVM,
	"logistic_regression_l2":  AlgoLogisticReg,
}

// Algorithms returns the sorted canonical algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve canonicalizes an algorithm name through the alias map.
func Resolve(name string) (string, error) {
	if base, ok := aliases[name]; ok {
		name = base
	}
	if _, ok := registry[name]; !ok {
		return "", &UnknownAlgorithmError{Name: name, Known: Algorithms()}
	}
	return name, nil
}

// DefaultParams returns a copy of the algorithm's defaults.
func DefaultParams(name string) (Params, error) {
	canonical, err := Resolve(name)
	if err != nil {
		return nil, err
	}
	return registry[canonical].defaults.clone(), nil
}

// NewClassifier constructs an unfitted classifier with defaults merged under
// the given overrides.
func NewClassifier(name string, overrides Params, seed int64) (Classifier, Params, error) {
	canonical, err := Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	e := registry[canonical]
	params := e.defaults.merged(overrides)
	return e.build(params, seed), params, nil
}
