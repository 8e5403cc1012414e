package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cardionics/heartml/internal/inference"
	"github.com/cardionics/heartml/internal/models"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/pkg/problem"
)

// Predictor is the serving surface the handlers depend on.
type Predictor interface {
	Predict(ctx context.Context, modelName string, record *models.PatientRecord) (*models.PredictionResult, error)
	PredictBatch(ctx context.Context, modelName string, records []*models.PatientRecord) ([]inference.BatchItem, error)
}

// MetricsSource resolves the latest evaluation metrics for a model.
type MetricsSource interface {
	ModelMetrics(ctx context.Context, name string) (*models.ModelMetrics, error)
}

// Ingestor accepts labelled observations for future training runs.
type Ingestor interface {
	InsertRawData(ctx context.Context, rec *models.PatientRecord, target *int) error
}

// Server wires the serving API.
type Server struct {
	logger    *zap.Logger
	predictor Predictor
	metrics   MetricsSource
	ingestor  Ingestor
	startedAt time.Time
}

// New creates the HTTP server. metrics and ingestor may be nil; their routes
// then report 503.
func New(logger *zap.Logger, predictor Predictor, metrics MetricsSource, ingestor Ingestor) *Server {
	return &Server{
		logger:    logger,
		predictor: predictor,
		metrics:   metrics,
		ingestor:  ingestor,
		startedAt: time.Now().UTC(),
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.POST("/predict", s.handlePredict)
			v1.POST("/predict/batch", s.handlePredictBatch)
			v1.GET("/models/:name/metrics", s.handleModelMetrics)
			v1.POST("/ingest", s.handleIngest)
		}
	}
	return router
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"started": s.startedAt,
	})
}

type predictRequest struct {
	Model  string               `json:"model"`
	Record models.PatientRecord `json:"record" binding:"required"`
}

// writeBindError renders a binding failure; validator errors carry the
// per-field breakdown, anything else (malformed JSON) stays a plain 400.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]problem.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, problem.FieldError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
		c.JSON(http.StatusBadRequest, problem.Validation("request validation failed", fields))
		return
	}
	c.JSON(http.StatusBadRequest, problem.BadRequest(err.Error()))
}

func (s *Server) handlePredict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	result, err := s.predictor.Predict(c.Request.Context(), req.Model, &req.Record)
	if err != nil {
		s.writePredictError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type batchRequest struct {
	Model   string                 `json:"model"`
	Records []models.PatientRecord `json:"records" binding:"required,min=1,max=1000,dive"`
}

func (s *Server) handlePredictBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	records := make([]*models.PatientRecord, len(req.Records))
	for i := range req.Records {
		records[i] = &req.Records[i]
	}
	items, err := s.predictor.PredictBatch(c.Request.Context(), req.Model, records)
	if err != nil {
		s.writePredictError(c, err)
		return
	}
	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  len(items),
		"failed": failed,
	})
}

func (s *Server) writePredictError(c *gin.Context, err error) {
	if errors.Is(err, registry.ErrModelNotFound) {
		c.JSON(http.StatusNotFound, problem.NotFound(err.Error()))
		return
	}
	s.logger.Error("prediction failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, problem.Internal())
}

func (s *Server) handleModelMetrics(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, problem.Unavailable("metrics store unavailable"))
		return
	}
	name := c.Param("name")
	m, err := s.metrics.ModelMetrics(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, registry.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, problem.NotFound("no metrics for model "+name))
			return
		}
		s.logger.Error("failed to fetch model metrics", zap.String("model", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, problem.Internal())
		return
	}
	c.JSON(http.StatusOK, m)
}

type ingestRequest struct {
	Record models.PatientRecord `json:"record" binding:"required"`
	Target *int                 `json:"target" binding:"omitempty,gte=0,lte=1"`
}

func (s *Server) handleIngest(c *gin.Context) {
	if s.ingestor == nil {
		c.JSON(http.StatusServiceUnavailable, problem.Unavailable("ingest store unavailable"))
		return
	}
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := s.ingestor.InsertRawData(c.Request.Context(), &req.Record, req.Target); err != nil {
		s.logger.Error("failed to ingest record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, problem.Internal())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stored"})
}
