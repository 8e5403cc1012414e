package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cardionics/heartml/internal/models"
)

// NewPostgresDB opens a pooled PostgreSQL connection.
func NewPostgresDB(dsn string, maxOpen, maxIdle, connMaxLife int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if maxOpen == 0 {
		maxOpen = 25
	}
	if maxIdle == 0 {
		maxIdle = 5
	}
	if connMaxLife == 0 {
		connMaxLife = 3600
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLife) * time.Second)
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	return db, nil
}

// RawDataRow is one labelled patient observation in heart_disease.raw_data.
type RawDataRow struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Age            int       `gorm:"not null"`
	Sex            int       `gorm:"not null"`
	ChestPainType  int       `gorm:"column:chest_pain_type;not null"`
	RestingBP      int       `gorm:"column:resting_bp;not null"`
	Cholesterol    int       `gorm:"not null"`
	FastingBS      int       `gorm:"column:fasting_bs;not null"`
	RestingECG     int       `gorm:"column:resting_ecg;not null"`
	MaxHR          int       `gorm:"column:max_hr;not null"`
	ExerciseAngina int       `gorm:"column:exercise_angina;not null"`
	Oldpeak        float64   `gorm:"not null"`
	STSlope        int       `gorm:"column:st_slope;not null"`
	Target         *int      `gorm:"column:target"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (RawDataRow) TableName() string { return "heart_disease.raw_data" }

// PredictionRow is one served prediction in heart_disease.predictions.
type PredictionRow struct {
	ID             string    `gorm:"primaryKey"`
	ModelName      string    `gorm:"column:model_name;not null;index"`
	ModelVersion   string    `gorm:"column:model_version;not null"`
	Prediction     int       `gorm:"not null"`
	Probability    float64   `gorm:"not null"`
	Age            int       `gorm:"not null"`
	Sex            int       `gorm:"not null"`
	ChestPainType  int       `gorm:"column:chest_pain_type;not null"`
	RestingBP      int       `gorm:"column:resting_bp;not null"`
	Cholesterol    int       `gorm:"not null"`
	FastingBS      int       `gorm:"column:fasting_bs;not null"`
	RestingECG     int       `gorm:"column:resting_ecg;not null"`
	MaxHR          int       `gorm:"column:max_hr;not null"`
	ExerciseAngina int       `gorm:"column:exercise_angina;not null"`
	Oldpeak        float64   `gorm:"not null"`
	STSlope        int       `gorm:"column:st_slope;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}

func (PredictionRow) TableName() string { return "heart_disease.predictions" }

// ModelMetricsRow is one evaluation snapshot in heart_disease.model_metrics.
type ModelMetricsRow struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	ModelName       string    `gorm:"column:model_name;not null;index"`
	ModelVersion    string    `gorm:"column:model_version;not null"`
	Accuracy        float64   `gorm:"not null"`
	Precision       float64   `gorm:"column:precision_score;not null"`
	Recall          float64   `gorm:"column:recall_score;not null"`
	F1              float64   `gorm:"column:f1_score;not null"`
	RocAUC          *float64  `gorm:"column:roc_auc"`
	PrecisionClass0 float64   `gorm:"column:precision_class_0"`
	PrecisionClass1 float64   `gorm:"column:precision_class_1"`
	RecallClass0    float64   `gorm:"column:recall_class_0"`
	RecallClass1    float64   `gorm:"column:recall_class_1"`
	F1Class0        float64   `gorm:"column:f1_class_0"`
	F1Class1        float64   `gorm:"column:f1_class_1"`
	Samples         int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index"`
}

func (ModelMetricsRow) TableName() string { return "heart_disease.model_metrics" }

// Repository persists raw data, predictions, and metrics.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the schema and tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("CREATE SCHEMA IF NOT EXISTS heart_disease").Error; err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&RawDataRow{}, &PredictionRow{}, &ModelMetricsRow{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// InsertRawData stores a labelled observation. target may be nil for
// unlabelled ingests.
func (r *Repository) InsertRawData(ctx context.Context, rec *models.PatientRecord, target *int) error {
	row := &RawDataRow{
		Age: rec.Age, Sex: rec.Sex, ChestPainType: rec.ChestPainType,
		RestingBP: rec.RestingBP, Cholesterol: rec.Cholesterol,
		FastingBS: rec.FastingBS, RestingECG: rec.RestingECG,
		MaxHR: rec.MaxHR, ExerciseAngina: rec.ExerciseAngina,
		Oldpeak: rec.Oldpeak, STSlope: rec.STSlope, Target: target,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert raw data: %w", err)
	}
	return nil
}

// SavePrediction stores a served prediction together with its input features.
func (r *Repository) SavePrediction(ctx context.Context, result *models.PredictionResult, rec *models.PatientRecord) error {
	row := &PredictionRow{
		ID:           result.ID,
		ModelName:    result.ModelName,
		ModelVersion: result.ModelVersion,
		Prediction:   result.Prediction,
		Probability:  result.Probability,
		Age:          rec.Age, Sex: rec.Sex, ChestPainType: rec.ChestPainType,
		RestingBP: rec.RestingBP, Cholesterol: rec.Cholesterol,
		FastingBS: rec.FastingBS, RestingECG: rec.RestingECG,
		MaxHR: rec.MaxHR, ExerciseAngina: rec.ExerciseAngina,
		Oldpeak: rec.Oldpeak, STSlope: rec.STSlope,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// InsertModelMetrics stores one evaluation snapshot.
func (r *Repository) InsertModelMetrics(ctx context.Context, m *models.ModelMetrics) error {
	row := &ModelMetricsRow{
		ModelName:       m.ModelName,
		ModelVersion:    m.ModelVersion,
		Accuracy:        m.Accuracy,
		Precision:       m.Precision,
		Recall:          m.Recall,
		F1:              m.F1Score,
		RocAUC:          m.RocAUC,
		PrecisionClass0: m.PrecisionClass0,
		PrecisionClass1: m.PrecisionClass1,
		RecallClass0:    m.RecallClass0,
		RecallClass1:    m.RecallClass1,
		F1Class0:        m.F1Class0,
		F1Class1:        m.F1Class1,
		Samples:         m.Samples,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert model metrics: %w", err)
	}
	return nil
}

// LatestMetricsByModel returns the most recent metrics snapshot for a model,
// or gorm.ErrRecordNotFound.
func (r *Repository) LatestMetricsByModel(ctx context.Context, name string) (*models.ModelMetrics, error) {
	var row ModelMetricsRow
	err := r.db.WithContext(ctx).
		Where("model_name = ?", name).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &models.ModelMetrics{
		ModelName:       row.ModelName,
		ModelVersion:    row.ModelVersion,
		Accuracy:        row.Accuracy,
		Precision:       row.Precision,
		Recall:          row.Recall,
		F1Score:         row.F1,
		RocAUC:          row.RocAUC,
		PrecisionClass0: row.PrecisionClass0,
		PrecisionClass1: row.PrecisionClass1,
		RecallClass0:    row.RecallClass0,
		RecallClass1:    row.RecallClass1,
		F1Class0:        row.F1Class0,
		F1Class1:        row.F1Class1,
		Samples:         row.Samples,
		CreatedAt:       row.CreatedAt,
	}, nil
}

// RecentPredictions returns the latest served predictions, newest first.
func (r *Repository) RecentPredictions(ctx context.Context, limit int) ([]PredictionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []PredictionRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return rows, nil
}
