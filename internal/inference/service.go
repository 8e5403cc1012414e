package inference

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/models"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/training"
	"github.com/cardionics/heartml/pkg/metrics"
)

// PersistenceFailure wraps an error from the asynchronous prediction writer.
// It never surfaces to serving clients; the worker logs it.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// PredictionStore persists served predictions.
type PredictionStore interface {
	SavePrediction(ctx context.Context, result *models.PredictionResult, record *models.PatientRecord) error
}

// TelemetryPublisher emits prediction events to a stream. Implementations
// must not block the serving path.
type TelemetryPublisher interface {
	PublishPrediction(ctx context.Context, result *models.PredictionResult) error
}

// Options tunes the service.
type Options struct {
	// DefaultModel is served when a request names no model.
	DefaultModel string
	// QueueSize bounds the persistence queue; writes beyond it are
	// dropped with a log line rather than stalling predictions.
	QueueSize int
	// PersistTimeout bounds each background write.
	PersistTimeout time.Duration
}

type persistJob struct {
	result *models.PredictionResult
	record *models.PatientRecord
}

// Service serves predictions from cached production models and persists
// results off the request path.
type Service struct {
	logger   *zap.SugaredLogger
	registry registry.Registry
	cache    ModelCache
	store    PredictionStore
	telem    TelemetryPublisher
	opts     Options

	queue   chan persistJob
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// New creates the service and starts its persistence worker. store and telem
// may be nil to disable persistence or telemetry.
func New(logger *zap.SugaredLogger, reg registry.Registry, cache ModelCache, store PredictionStore, telem TelemetryPublisher, opts Options) *Service {
	if opts.DefaultModel == "" {
		opts.DefaultModel = "heart_disease"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if cache == nil {
		cache = NewSingleSlotCache()
	}
	s := &Service{
		logger:   logger,
		registry: reg,
		cache:    cache,
		store:    store,
		telem:    telem,
		opts:     opts,
		queue:    make(chan persistJob, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go s.persistLoop()
	return s
}

// resolveModel fetches the named model through the cache. A registry miss
// leaves the cache untouched.
func (s *Service) resolveModel(ctx context.Context, name string) (*training.TrainedModel, error) {
	if name == "" {
		name = s.opts.DefaultModel
	}
	if m, ok := s.cache.Get(name); ok {
		return m, nil
	}
	m, err := s.registry.Load(ctx, name, registry.StageProduction)
	if err != nil {
		return nil, err
	}
	metrics.ModelLoads.WithLabelValues(name).Inc()
	s.cache.Set(name, m)
	return m, nil
}

// Predict scores one patient record with the named model (or the default).
func (s *Service) Predict(ctx context.Context, modelName string, record *models.PatientRecord) (*models.PredictionResult, error) {
	start := time.Now()
	model, err := s.resolveModel(ctx, modelName)
	if err != nil {
		return nil, err
	}
	class, proba, err := model.PredictRow(record.FeatureMap(), models.FeatureColumns)
	if err != nil {
		return nil, err
	}
	metrics.PredictionsServed.WithLabelValues(model.Name, strconv.Itoa(class)).Inc()
	metrics.PredictionLatency.WithLabelValues(model.Name).Observe(time.Since(start).Seconds())
	result := &models.PredictionResult{
		ID:           uuid.NewString(),
		Prediction:   class,
		Probability:  proba,
		ModelName:    model.Name,
		ModelVersion: model.Version,
		Timestamp:    time.Now().UTC(),
	}
	s.enqueue(result, record)
	if s.telem != nil {
		if err := s.telem.PublishPrediction(ctx, result); err != nil {
			s.logger.Warnw("failed to publish prediction event", "id", result.ID, "error", err)
		}
	}
	return result, nil
}

// BatchItem is the per-record outcome of a batch request.
type BatchItem struct {
	Index  int                      `json:"index"`
	Result *models.PredictionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// PredictBatch scores every record, reporting per-item failures instead of
// failing the batch. Only a model resolution failure aborts the whole call.
func (s *Service) PredictBatch(ctx context.Context, modelName string, records []*models.PatientRecord) ([]BatchItem, error) {
	model, err := s.resolveModel(ctx, modelName)
	if err != nil {
		return nil, err
	}
	items := make([]BatchItem, len(records))
	for i, rec := range records {
		items[i].Index = i
		class, proba, err := model.PredictRow(rec.FeatureMap(), models.FeatureColumns)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		result := &models.PredictionResult{
			ID:           uuid.NewString(),
			Prediction:   class,
			Probability:  proba,
			ModelName:    model.Name,
			ModelVersion: model.Version,
			Timestamp:    time.Now().UTC(),
		}
		items[i].Result = result
		s.enqueue(result, rec)
	}
	return items, nil
}

// Invalidate evicts a model so the next request reloads it, e.g. after a new
// version is promoted.
func (s *Service) Invalidate(name string) {
	if name == "" {
		name = s.opts.DefaultModel
	}
	s.cache.Invalidate(name)
}

func (s *Service) enqueue(result *models.PredictionResult, record *models.PatientRecord) {
	if s.store == nil {
		return
	}
	select {
	case s.queue <- persistJob{result: result, record: record}:
		metrics.PersistQueueDepth.Set(float64(len(s.queue)))
	default:
		metrics.PersistDrops.Inc()
		s.logger.Warnw("persistence queue full, dropping prediction", "id", result.ID)
	}
}

func (s *Service) persistLoop() {
	defer close(s.done)
	for job := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
		if err := s.store.SavePrediction(ctx, job.result, job.record); err != nil {
			pf := &PersistenceFailure{Op: "save_prediction", Err: err}
			metrics.PersistFailures.Inc()
			s.logger.Errorw("failed to persist prediction", "id", job.result.ID, "error", pf)
		}
		cancel()
		metrics.PersistQueueDepth.Set(float64(len(s.queue)))
	}
}

// Close drains the persistence queue and stops the worker.
func (s *Service) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
	<-s.done
}
