package training

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Engine trains classifiers, cross-validates them, and searches
// hyperparameter grids.
type Engine struct {
	logger  *zap.SugaredLogger
	seed    int64
	workers int
}

// NewEngine creates a training engine. Worker count defaults to GOMAXPROCS.
func NewEngine(logger *zap.SugaredLogger, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{logger: logger, seed: 42, workers: workers}
}

// TrainResult carries a fitted classifier and its resolved hyperparameters.
type TrainResult struct {
	Algorithm     string
	Params        Params
	Classifier    Classifier
	TrainAccuracy float64
}

// Fit trains one classifier with defaults merged under overrides and reports
// in-sample accuracy.
func (e *Engine) Fit(ctx context.Context, algorithm string, overrides Params, features [][]float64, labels []int) (*TrainResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	canonical, err := Resolve(algorithm)
	if err != nil {
		return nil, err
	}
	clf, params, err := NewClassifier(canonical, overrides, e.seed)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(features, labels); err != nil {
		return nil, fmt.Errorf("failed to fit %s: %w", canonical, err)
	}
	pred, err := clf.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("failed to score %s on training data: %w", canonical, err)
	}
	correct := 0
	for i, y := range labels {
		if pred[i] == y {
			correct++
		}
	}
	acc := float64(correct) / float64(len(labels))
	e.logger.Infow("trained model",
		"algorithm", canonical,
		"params", params,
		"train_accuracy", acc,
		"samples", len(labels))
	return &TrainResult{Algorithm: canonical, Params: params, Classifier: clf, TrainAccuracy: acc}, nil
}

// CVScores summarizes per-fold accuracy.
type CVScores struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
}

func summarize(scores []float64) CVScores {
	out := CVScores{Scores: scores, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, s := range scores {
		sum += s
		if s < out.Min {
			out.Min = s
		}
		if s > out.Max {
			out.Max = s
		}
	}
	out.Mean = sum / float64(len(scores))
	var sq float64
	for _, s := range scores {
		d := s - out.Mean
		sq += d * d
	}
	out.Std = math.Sqrt(sq / float64(len(scores)))
	return out
}

// stratifiedFolds assigns each sample a fold index, preserving class balance.
func stratifiedFolds(labels []int, k int) []int {
	folds := make([]int, len(labels))
	counters := map[int]int{}
	for i, y := range labels {
		folds[i] = counters[y] % k
		counters[y]++
	}
	return folds
}

// CrossValidate runs stratified k-fold accuracy scoring.
func (e *Engine) CrossValidate(ctx context.Context, algorithm string, overrides Params, features [][]float64, labels []int, folds int) (*CVScores, error) {
	canonical, err := Resolve(algorithm)
	if err != nil {
		return nil, err
	}
	if folds < 2 {
		return nil, fmt.Errorf("cross-validation requires at least 2 folds, got %d", folds)
	}
	assignment := stratifiedFolds(labels, folds)
	scores := make([]float64, 0, folds)
	for f := 0; f < folds; f++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var trainX, testX [][]float64
		var trainY, testY []int
		for i := range labels {
			if assignment[i] == f {
				testX = append(testX, features[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, features[i])
				trainY = append(trainY, labels[i])
			}
		}
		clf, _, err := NewClassifier(canonical, overrides, e.seed)
		if err != nil {
			return nil, err
		}
		if err := clf.Fit(trainX, trainY); err != nil {
			return nil, fmt.Errorf("failed to fit fold %d: %w", f, err)
		}
		pred, err := clf.Predict(testX)
		if err != nil {
			return nil, fmt.Errorf("failed to score fold %d: %w", f, err)
		}
		correct := 0
		for i, y := range testY {
			if pred[i] == y {
				correct++
			}
		}
		scores = append(scores, float64(correct)/float64(len(testY)))
	}
	cv := summarize(scores)
	e.logger.Infow("cross-validated model",
		"algorithm", canonical, "folds", folds,
		"mean", cv.Mean, "std", cv.Std)
	return &cv, nil
}

// Grid maps hyperparameter names to candidate values.
type Grid map[string][]interface{}

// expand builds the Cartesian product of the grid in deterministic order
// (keys sorted, values in declaration order).
func (g Grid) expand() []Params {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []Params{{}}
	for _, k := range keys {
		var next []Params
		for _, base := range combos {
			for _, v := range g[k] {
				c := base.clone()
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

// ComboResult is one grid point's cross-validated outcome.
type ComboResult struct {
	Params Params    `json:"params"`
	Scores *CVScores `json:"scores,omitempty"`
	Err    error     `json:"-"`
}

// TuneResult is the grid search outcome.
type TuneResult struct {
	Algorithm  string        `json:"algorithm"`
	BestParams Params        `json:"best_params"`
	BestScore  float64       `json:"best_score"`
	Results    []ComboResult `json:"results"`
}

// Tune evaluates every grid combination with cross-validation, in parallel,
// and picks the highest mean accuracy. Ties keep the earliest combination in
// grid order. Combinations that fail to train are logged and excluded.
func (e *Engine) Tune(ctx context.Context, algorithm string, grid Grid, features [][]float64, labels []int, folds int) (*TuneResult, error) {
	canonical, err := Resolve(algorithm)
	if err != nil {
		return nil, err
	}
	combos := grid.expand()
	results := make([]ComboResult, len(combos))

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, combo := range combos {
		wg.Add(1)
		go func(i int, combo Params) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			scores, err := e.CrossValidate(ctx, canonical, combo, features, labels, folds)
			results[i] = ComboResult{Params: combo, Scores: scores, Err: err}
		}(i, combo)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &TuneResult{Algorithm: canonical, Results: results, BestScore: math.Inf(-1)}
	for _, r := range results {
		if r.Err != nil {
			e.logger.Warnw("grid combination failed", "algorithm", canonical, "params", r.Params, "error", r.Err)
			continue
		}
		if r.Scores.Mean > out.BestScore {
			out.BestScore = r.Scores.Mean
			out.BestParams = r.Params
		}
	}
	if out.BestParams == nil {
		return nil, fmt.Errorf("grid search for %s produced no successful combination", canonical)
	}
	e.logger.Infow("grid search complete",
		"algorithm", canonical,
		"combinations", len(combos),
		"best_score", out.BestScore,
		"best_params", out.BestParams)
	return out, nil
}

// FeatureImportance returns importance scores keyed by column name, or nil
// when the classifier does not expose importances.
func FeatureImportance(clf Classifier, columns []string) map[string]float64 {
	fi, ok := clf.(FeatureImportancer)
	if !ok {
		return nil
	}
	scores := fi.FeatureImportances()
	out := make(map[string]float64, len(scores))
	for i, s := range scores {
		if i < len(columns) {
			out[columns[i]] = s
		}
	}
	return out
}
