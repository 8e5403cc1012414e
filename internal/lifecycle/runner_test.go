package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cardionics/heartml/internal/evaluation"
	"github.com/cardionics/heartml/internal/models"
	"github.com/cardionics/heartml/internal/preprocessing"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/training"
)

type memorySink struct {
	mu      sync.Mutex
	metrics []*models.ModelMetrics
}

func (s *memorySink) InsertModelMetrics(_ context.Context, m *models.ModelMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

// syntheticDataset builds a separable cohort: high max_hr and low oldpeak
// lean healthy, the opposite leans diseased.
func syntheticDataset(t *testing.T, n int) *preprocessing.Frame {
	t.Helper()
	cols := append(append([]string(nil), models.FeatureColumns...), models.TargetColumn)
	f := preprocessing.New(cols)
	for i := 0; i < n; i++ {
		target := i % 2
		maxHR := 170.0 - float64(i%20)
		oldpeak := 0.2 + float64(i%5)*0.1
		if target == 1 {
			maxHR = 110.0 + float64(i%20)
			oldpeak = 2.0 + float64(i%5)*0.3
		}
		row := []float64{
			float64(40 + i%30),      // age
			float64(i % 2),          // sex
			float64(1 + i%3),        // chest_pain_type
			float64(120 + i%40),     // resting_bp
			float64(180 + i%90),     // cholesterol
			float64(i % 2),          // fasting_bs
			float64(i % 3),          // resting_ecg
			maxHR,                   // max_hr
			float64(target),         // exercise_angina
			oldpeak,                 // oldpeak
			float64(i % 3),          // st_slope
			float64(target),         // target
		}
		require.NoError(t, f.AppendRow(row))
	}
	return f
}

func TestRunTrainsEvaluatesAndPromotes(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	reg := registry.NewMemoryRegistry()
	sink := &memorySink{}
	runner := NewRunner(logger,
		training.NewEngine(logger, 2),
		evaluation.NewEngine(logger),
		reg, sink)

	suite := training.Suite{
		Name: "test",
		Jobs: []training.SuiteJob{
			{ModelName: "knn", Algorithm: training.AlgoKNN, CVFolds: 3},
			{ModelName: "logistic_regression", Algorithm: training.AlgoLogisticReg, CVFolds: 3},
		},
	}
	report, err := runner.Run(context.Background(), syntheticDataset(t, 120), RunConfig{
		Suite:          suite,
		ImputeStrategy: preprocessing.ImputeMedian,
		ScaleMethod:    preprocessing.ScaleStandard,
		Balance:        true,
		TrainFraction:  0.6,
		ValFraction:    0.2,
		Seed:           42,
		SelectionBy:    "f1",
		PromotedName:   "heart_disease",
	})
	require.NoError(t, err)

	require.Len(t, report.Models, 2)
	assert.NotEmpty(t, report.Best)
	for _, mr := range report.Models {
		require.NotNil(t, mr.Test)
		assert.Greater(t, mr.Test.Accuracy, 0.7)
		assert.NotEmpty(t, mr.Version)
		if mr.CV != nil {
			assert.Len(t, mr.CV.Scores, 3)
		}
	}

	// the winner is promoted under the serving name
	promoted, err := reg.Load(context.Background(), "heart_disease", registry.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, "heart_disease", promoted.Name)
	assert.NotNil(t, promoted.Transform)
	assert.Equal(t, promoted.Columns, promoted.Transform.OutputColumns)

	// one metrics snapshot per trained model
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.metrics, 2)
}

func TestRunWithGridSearch(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	reg := registry.NewMemoryRegistry()
	runner := NewRunner(logger,
		training.NewEngine(logger, 2),
		evaluation.NewEngine(logger),
		reg, nil)

	suite := training.Suite{
		Name: "grid",
		Jobs: []training.SuiteJob{
			{
				ModelName: "knn_tuned",
				Algorithm: training.AlgoKNN,
				CVFolds:   3,
				Grid:      training.Grid{"n_neighbors": {1, 3, 5}},
			},
		},
	}
	report, err := runner.Run(context.Background(), syntheticDataset(t, 100), RunConfig{
		Suite:          suite,
		ImputeStrategy: preprocessing.ImputeMean,
		ScaleMethod:    preprocessing.ScaleMinMax,
		TrainFraction:  0.6,
		ValFraction:    0.2,
		Seed:           42,
		SelectionBy:    "accuracy",
	})
	require.NoError(t, err)

	require.Len(t, report.Models, 1)
	assert.Contains(t, []interface{}{1, 3, 5}, report.Models[0].Params["n_neighbors"])
	assert.Equal(t, "knn_tuned", report.Best)
}

func TestRunEmptySuiteFails(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	runner := NewRunner(logger,
		training.NewEngine(logger, 1),
		evaluation.NewEngine(logger),
		registry.NewMemoryRegistry(), nil)

	_, err := runner.Run(context.Background(), syntheticDataset(t, 60), RunConfig{
		Suite:          training.Suite{Name: "empty"},
		ImputeStrategy: preprocessing.ImputeMedian,
		ScaleMethod:    preprocessing.ScaleStandard,
		TrainFraction:  0.6,
		ValFraction:    0.2,
	})
	assert.Error(t, err)
}
