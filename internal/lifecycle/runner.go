package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/evaluation"
	"github.com/cardionics/heartml/internal/models"
	"github.com/cardionics/heartml/internal/preprocessing"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/training"
)

// MetricsSink persists evaluation snapshots. Optional.
type MetricsSink interface {
	InsertModelMetrics(ctx context.Context, m *models.ModelMetrics) error
}

// RunConfig drives one end-to-end training run.
type RunConfig struct {
	Suite          training.Suite
	ImputeStrategy string
	ScaleMethod    string
	Balance        bool
	OutlierMethod  string
	OutlierThresh  float64
	TrainFraction  float64
	ValFraction    float64
	Seed           int64
	// SelectionBy is the metric that picks the production model.
	SelectionBy string
	// PromotedName is the registry name the winner is promoted under.
	PromotedName string
}

// ModelReport is the outcome for one suite job.
type ModelReport struct {
	Name       string             `json:"name"`
	Algorithm  string             `json:"algorithm"`
	Version    string             `json:"version"`
	Params     training.Params    `json:"params"`
	CV         *training.CVScores `json:"cv,omitempty"`
	Test       *evaluation.Result `json:"test"`
	Importance map[string]float64 `json:"feature_importance,omitempty"`
}

// RunReport summarizes a training run.
type RunReport struct {
	Models      []ModelReport `json:"models"`
	Best        string        `json:"best"`
	BestVersion string        `json:"best_version"`
	Duration    time.Duration `json:"duration"`
}

// Runner executes training suites against a registry.
type Runner struct {
	logger   *zap.SugaredLogger
	pipeline *preprocessing.Pipeline
	engine   *training.Engine
	eval     *evaluation.Engine
	registry registry.Registry
	sink     MetricsSink
}

// NewRunner assembles a runner. sink may be nil.
func NewRunner(logger *zap.SugaredLogger, engine *training.Engine, eval *evaluation.Engine, reg registry.Registry, sink MetricsSink) *Runner {
	return &Runner{
		logger:   logger,
		pipeline: preprocessing.NewPipeline(logger),
		engine:   engine,
		eval:     eval,
		registry: reg,
		sink:     sink,
	}
}

// Run prepares the dataset, trains every job in the suite, evaluates each on
// the held-out test split, registers all models, and promotes the best one to
// Production.
func (r *Runner) Run(ctx context.Context, data *preprocessing.Frame, cfg RunConfig) (*RunReport, error) {
	start := time.Now()
	if cfg.SelectionBy == "" {
		cfg.SelectionBy = "f1"
	}
	if cfg.PromotedName == "" {
		cfg.PromotedName = "heart_disease"
	}

	r.pipeline.Reset()
	r.eval.ResetHistory()
	prep, err := r.pipeline.Prepare(data, preprocessing.PrepareOptions{
		Target:         models.TargetColumn,
		Categorical:    models.CategoricalColumns,
		ImputeStrategy: cfg.ImputeStrategy,
		ScaleMethod:    cfg.ScaleMethod,
		Balance:        cfg.Balance,
		OutlierMethod:  cfg.OutlierMethod,
		OutlierColumns: models.FeatureColumns,
		OutlierThresh:  cfg.OutlierThresh,
		TrainFraction:  cfg.TrainFraction,
		ValFraction:    cfg.ValFraction,
		Seed:           cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dataset: %w", err)
	}

	report := &RunReport{}
	versionByName := map[string]string{}
	for _, job := range cfg.Suite.Jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mr, err := r.runJob(ctx, job, prep)
		if err != nil {
			r.logger.Errorw("suite job failed", "model", job.ModelName, "error", err)
			continue
		}
		versionByName[mr.Name] = mr.Version
		report.Models = append(report.Models, *mr)
	}
	if len(report.Models) == 0 {
		return nil, fmt.Errorf("suite %s produced no trained models", cfg.Suite.Name)
	}

	best, ok := r.eval.Best(cfg.SelectionBy)
	if !ok {
		return nil, fmt.Errorf("no evaluation carries metric %s", cfg.SelectionBy)
	}
	report.Best = best.Model
	report.BestVersion = versionByName[best.Model]

	winner, err := r.registry.Load(ctx, best.Model, registry.StageNone)
	if err != nil {
		return nil, fmt.Errorf("failed to reload winning model %s: %w", best.Model, err)
	}
	winner.Name = cfg.PromotedName
	promotedVersion, err := r.registry.Register(ctx, winner)
	if err != nil {
		return nil, fmt.Errorf("failed to register promoted model: %w", err)
	}
	if err := r.registry.Transition(ctx, cfg.PromotedName, promotedVersion, registry.StageProduction); err != nil {
		return nil, fmt.Errorf("failed to promote model: %w", err)
	}

	report.Duration = time.Since(start)
	r.logger.Infow("training run complete",
		"suite", cfg.Suite.Name,
		"models", len(report.Models),
		"best", report.Best,
		"selection_by", cfg.SelectionBy,
		"duration", report.Duration)
	return report, nil
}

func (r *Runner) runJob(ctx context.Context, job training.SuiteJob, prep *preprocessing.Prepared) (*ModelReport, error) {
	params := job.Params
	var cv *training.CVScores

	folds := job.CVFolds
	if folds == 0 {
		folds = 5
	}
	if len(job.Grid) > 0 {
		tuned, err := r.engine.Tune(ctx, job.Algorithm, job.Grid, prep.TrainX, prep.TrainY, folds)
		if err != nil {
			return nil, err
		}
		params = tuned.BestParams
	} else {
		scores, err := r.engine.CrossValidate(ctx, job.Algorithm, params, prep.TrainX, prep.TrainY, folds)
		if err != nil {
			return nil, err
		}
		cv = scores
	}

	res, err := r.engine.Fit(ctx, job.Algorithm, params, prep.TrainX, prep.TrainY)
	if err != nil {
		return nil, err
	}

	pred, err := res.Classifier.Predict(prep.TestX)
	if err != nil {
		return nil, fmt.Errorf("failed to score test split: %w", err)
	}
	proba, err := res.Classifier.PredictProba(prep.TestX)
	if err != nil {
		r.logger.Warnw("test probabilities unavailable", "model", job.ModelName, "error", err)
		proba = nil
	}
	testRes, err := r.eval.Evaluate(job.ModelName, prep.TestY, pred, proba)
	if err != nil {
		return nil, err
	}

	bundle := &training.TrainedModel{
		Name:       job.ModelName,
		Algorithm:  res.Algorithm,
		Params:     res.Params,
		Columns:    prep.Columns,
		Transform:  prep.Transform,
		Classifier: res.Classifier,
		TrainedAt:  time.Now().UTC(),
	}
	version, err := r.registry.Register(ctx, bundle)
	if err != nil {
		return nil, err
	}

	if r.sink != nil {
		if err := r.sink.InsertModelMetrics(ctx, resultToMetrics(testRes, version)); err != nil {
			r.logger.Warnw("failed to persist model metrics", "model", job.ModelName, "error", err)
		}
	}

	return &ModelReport{
		Name:       job.ModelName,
		Algorithm:  res.Algorithm,
		Version:    version,
		Params:     res.Params,
		CV:         cv,
		Test:       testRes,
		Importance: training.FeatureImportance(res.Classifier, prep.Columns),
	}, nil
}

func resultToMetrics(r *evaluation.Result, version string) *models.ModelMetrics {
	m := &models.ModelMetrics{
		ModelName:    r.Model,
		ModelVersion: version,
		Accuracy:     r.Accuracy,
		Precision:    r.Precision,
		Recall:       r.Recall,
		F1Score:      r.F1,
		RocAUC:       r.RocAUC,
		Samples:      r.Samples,
	}
	if c, ok := r.PerClass[0]; ok {
		m.PrecisionClass0, m.RecallClass0, m.F1Class0 = c.Precision, c.Recall, c.F1
	}
	if c, ok := r.PerClass[1]; ok {
		m.PrecisionClass1, m.RecallClass1, m.F1Class1 = c.Precision, c.Recall, c.F1
	}
	return m
}
