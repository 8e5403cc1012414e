package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cardionics/heartml/internal/models"
	"github.com/cardionics/heartml/internal/preprocessing"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/training"
)

// fixedClassifier always returns the same probability.
type fixedClassifier struct {
	Proba float64
}

func (c *fixedClassifier) Fit([][]float64, []int) error { return nil }

func (c *fixedClassifier) Predict(features [][]float64) ([]int, error) {
	out := make([]int, len(features))
	for i := range out {
		if c.Proba >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

func (c *fixedClassifier) PredictProba(features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i := range out {
		out[i] = c.Proba
	}
	return out, nil
}

type capturingStore struct {
	mu      sync.Mutex
	saved   []*models.PredictionResult
	fail    bool
	savedCh chan struct{}
}

func newCapturingStore(capacity int) *capturingStore {
	return &capturingStore{savedCh: make(chan struct{}, capacity)}
}

func (s *capturingStore) SavePrediction(_ context.Context, result *models.PredictionResult, _ *models.PatientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database down")
	}
	s.saved = append(s.saved, result)
	s.savedCh <- struct{}{}
	return nil
}

func (s *capturingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []*models.PredictionResult
}

func (p *capturingPublisher) PublishPrediction(_ context.Context, result *models.PredictionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, result)
	return nil
}

func productionModel(t *testing.T, reg registry.Registry, name string, proba float64) {
	t.Helper()
	outCols := make([]string, len(models.FeatureColumns))
	copy(outCols, models.FeatureColumns)
	m := &training.TrainedModel{
		Name:       name,
		Algorithm:  training.AlgoLogisticReg,
		Columns:    outCols,
		Transform:  &preprocessing.FittedTransform{OutputColumns: outCols},
		Classifier: &fixedClassifier{Proba: proba},
	}
	v, err := reg.Register(context.Background(), m)
	require.NoError(t, err)
	require.NoError(t, reg.Transition(context.Background(), name, v, registry.StageProduction))
}

func sampleRecord() *models.PatientRecord {
	return &models.PatientRecord{
		Age: 54, Sex: 1, ChestPainType: 2, RestingBP: 150, Cholesterol: 195,
		FastingBS: 0, RestingECG: 1, MaxHR: 122, ExerciseAngina: 0,
		Oldpeak: 0.0, STSlope: 1,
	}
}

func TestPredictReturnsClassAndProbability(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.85)

	store := newCapturingStore(8)
	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, store, nil, Options{})
	defer svc.Close()

	res, err := svc.Predict(context.Background(), "", sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Prediction)
	assert.InDelta(t, 0.85, res.Probability, 1e-12)
	assert.Equal(t, "heart_disease", res.ModelName)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.Timestamp.IsZero())

	select {
	case <-store.savedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("prediction was not persisted")
	}
	assert.Equal(t, 1, store.count())
}

func TestPredictUsesCacheAfterFirstLoad(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.7)

	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, nil, Options{})
	defer svc.Close()

	for i := 0; i < 5; i++ {
		_, err := svc.Predict(context.Background(), "heart_disease", sampleRecord())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reg.LoadCount("heart_disease"))
}

func TestPredictUnknownModelLeavesCacheUntouched(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.7)

	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, nil, Options{})
	defer svc.Close()

	_, err := svc.Predict(context.Background(), "heart_disease", sampleRecord())
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), "ghost", sampleRecord())
	assert.ErrorIs(t, err, registry.ErrModelNotFound)

	// cached model still serves without a reload
	_, err = svc.Predict(context.Background(), "heart_disease", sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.LoadCount("heart_disease"))
}

func TestInvalidateForcesReload(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.7)

	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, nil, Options{})
	defer svc.Close()

	_, err := svc.Predict(context.Background(), "", sampleRecord())
	require.NoError(t, err)
	svc.Invalidate("")
	_, err = svc.Predict(context.Background(), "", sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.LoadCount("heart_disease"))
}

// flakyClassifier fails on rows whose first feature is negative.
type flakyClassifier struct{}

func (c *flakyClassifier) Fit([][]float64, []int) error { return nil }

func (c *flakyClassifier) Predict(features [][]float64) ([]int, error) {
	proba, err := c.PredictProba(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

func (c *flakyClassifier) PredictProba(features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i, x := range features {
		if x[0] < 0 {
			return nil, errors.New("feature out of range")
		}
		out[i] = 0.9
	}
	return out, nil
}

func TestPredictBatchPartialResults(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	outCols := make([]string, len(models.FeatureColumns))
	copy(outCols, models.FeatureColumns)
	m := &training.TrainedModel{
		Name:       "heart_disease",
		Columns:    outCols,
		Transform:  &preprocessing.FittedTransform{OutputColumns: outCols},
		Classifier: &flakyClassifier{},
	}
	v, err := reg.Register(context.Background(), m)
	require.NoError(t, err)
	require.NoError(t, reg.Transition(context.Background(), "heart_disease", v, registry.StageProduction))

	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, nil, Options{})
	defer svc.Close()

	bad := sampleRecord()
	bad.Age = -1
	items, err := svc.PredictBatch(context.Background(), "heart_disease", []*models.PatientRecord{
		sampleRecord(), bad, sampleRecord(),
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NotNil(t, items[0].Result)
	assert.Equal(t, 1, items[0].Result.Prediction)
	assert.Nil(t, items[1].Result)
	assert.NotEmpty(t, items[1].Error)
	require.NotNil(t, items[2].Result)
	assert.Equal(t, 2, items[2].Index)
}

func TestPredictBatchUnknownModelFailsWhole(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, nil, Options{})
	defer svc.Close()

	_, err := svc.PredictBatch(context.Background(), "ghost", []*models.PatientRecord{sampleRecord()})
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}

func TestPersistenceFailureDoesNotAffectResponse(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.85)

	store := newCapturingStore(8)
	store.fail = true
	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, store, nil, Options{})

	res, err := svc.Predict(context.Background(), "", sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Prediction)

	svc.Close() // drains the queue; the write failure is only logged
	assert.Zero(t, store.count())
}

func TestTelemetryPublished(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.85)

	pub := &capturingPublisher{}
	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, nil, pub, Options{})
	defer svc.Close()

	res, err := svc.Predict(context.Background(), "", sampleRecord())
	require.NoError(t, err)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 1)
	assert.Equal(t, res.ID, pub.events[0].ID)
}

func TestCloseDrainsQueue(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	productionModel(t, reg, "heart_disease", 0.85)

	store := newCapturingStore(64)
	svc := New(zaptest.NewLogger(t).Sugar(), reg, nil, store, nil, Options{QueueSize: 64})

	for i := 0; i < 10; i++ {
		_, err := svc.Predict(context.Background(), "", sampleRecord())
		require.NoError(t, err)
	}
	svc.Close()
	assert.Equal(t, 10, store.count())
}
