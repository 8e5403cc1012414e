package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// twoBlobs builds a linearly separable dataset: negatives near the origin,
// positives near (4, 4).
func twoBlobs() ([][]float64, []int) {
	var x [][]float64
	var y []int
	offsets := []float64{-0.4, -0.2, 0, 0.2, 0.4}
	for _, dx := range offsets {
		for _, dy := range offsets {
			x = append(x, []float64{dx, dy})
			y = append(y, 0)
			x = append(x, []float64{4 + dx, 4 + dy})
			y = append(y, 1)
		}
	}
	return x, y
}

func testEngine(t *testing.T) *Engine {
	return NewEngine(zaptest.NewLogger(t).Sugar(), 2)
}

func TestResolveAliases(t *testing.T) {
	name, err := Resolve("random_forest_tuned")
	require.NoError(t, err)
	assert.Equal(t, AlgoRandomForest, name)

	_, err = Resolve("neural_net")
	var unknownErr *UnknownAlgorithmError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "neural_net", unknownErr.Name)
	assert.Contains(t, unknownErr.Known, AlgoKNN)
}

func TestDefaultParamsMergeUnderOverrides(t *testing.T) {
	clf, params, err := NewClassifier(AlgoKNN, Params{"n_neighbors": 3}, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, params["n_neighbors"])
	assert.Equal(t, 3, clf.(*KNN).K)

	_, params, err = NewClassifier(AlgoRandomForest, nil, 42)
	require.NoError(t, err)
	assert.Equal(t, 100, params["n_estimators"])
}

func TestAllAlgorithmsSeparateBlobs(t *testing.T) {
	x, y := twoBlobs()
	e := testEngine(t)
	for _, algo := range Algorithms() {
		algo := algo
		t.Run(algo, func(t *testing.T) {
			overrides := Params{}
			if algo == AlgoRandomForest || algo == AlgoGradientBoosting {
				overrides["n_estimators"] = 10
			}
			res, err := e.Fit(context.Background(), algo, overrides, x, y)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.TrainAccuracy, 0.95)

			proba, err := res.Classifier.PredictProba([][]float64{{0, 0}, {4, 4}})
			require.NoError(t, err)
			assert.Less(t, proba[0], 0.5)
			assert.Greater(t, proba[1], 0.5)
		})
	}
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := twoBlobs()
	e := testEngine(t)
	a, err := e.Fit(context.Background(), AlgoRandomForest, Params{"n_estimators": 5}, x, y)
	require.NoError(t, err)
	b, err := e.Fit(context.Background(), AlgoRandomForest, Params{"n_estimators": 5}, x, y)
	require.NoError(t, err)

	probe := [][]float64{{1, 3}, {3, 1}, {2, 2}}
	pa, err := a.Classifier.PredictProba(probe)
	require.NoError(t, err)
	pb, err := b.Classifier.PredictProba(probe)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestCrossValidate(t *testing.T) {
	x, y := twoBlobs()
	e := testEngine(t)
	cv, err := e.CrossValidate(context.Background(), AlgoKNN, nil, x, y, 5)
	require.NoError(t, err)

	assert.Len(t, cv.Scores, 5)
	assert.GreaterOrEqual(t, cv.Mean, 0.9)
	assert.LessOrEqual(t, cv.Min, cv.Mean)
	assert.GreaterOrEqual(t, cv.Max, cv.Mean)

	_, err = e.CrossValidate(context.Background(), AlgoKNN, nil, x, y, 1)
	assert.Error(t, err)
}

func TestTunePicksBestCombination(t *testing.T) {
	x, y := twoBlobs()
	e := testEngine(t)
	res, err := e.Tune(context.Background(), AlgoKNN, Grid{"n_neighbors": {1, 3, 5}}, x, y, 5)
	require.NoError(t, err)

	assert.Len(t, res.Results, 3)
	assert.Contains(t, []interface{}{1, 3, 5}, res.BestParams["n_neighbors"])
	assert.GreaterOrEqual(t, res.BestScore, 0.9)
}

func TestTuneUnknownAlgorithm(t *testing.T) {
	e := testEngine(t)
	_, err := e.Tune(context.Background(), "perceptron", Grid{}, nil, nil, 5)
	var unknownErr *UnknownAlgorithmError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestTuneCancelled(t *testing.T) {
	x, y := twoBlobs()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testEngine(t).Tune(ctx, AlgoKNN, Grid{"n_neighbors": {1, 3}}, x, y, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeatureImportance(t *testing.T) {
	// feature 0 carries the signal, feature 1 is noise
	var x [][]float64
	var y []int
	for i := 0; i < 40; i++ {
		v := float64(i % 7)
		if i < 20 {
			x = append(x, []float64{0, v})
			y = append(y, 0)
		} else {
			x = append(x, []float64{5, v})
			y = append(y, 1)
		}
	}
	e := testEngine(t)
	res, err := e.Fit(context.Background(), AlgoDecisionTree, nil, x, y)
	require.NoError(t, err)

	fi := FeatureImportance(res.Classifier, []string{"signal", "noise"})
	require.NotNil(t, fi)
	assert.Greater(t, fi["signal"], fi["noise"])
	assert.InDelta(t, 1.0, fi["signal"]+fi["noise"], 1e-9)

	assert.Nil(t, FeatureImportance(&KNN{}, []string{"a"}))
}

func TestSuites(t *testing.T) {
	base, ok := SuiteByName("baseline")
	require.True(t, ok)
	assert.Len(t, base.Jobs, 7)

	tuned, ok := SuiteByName("tuned")
	require.True(t, ok)
	for _, job := range tuned.Jobs {
		_, err := Resolve(job.Algorithm)
		assert.NoError(t, err)
		assert.NotEmpty(t, job.Grid)
	}

	_, ok = SuiteByName("nope")
	assert.False(t, ok)
}
