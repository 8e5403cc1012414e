package models

import "time"

// PatientRecord is a single row of the clinical risk-factor schema. The
// binding tags mirror the documented valid ranges; records violating them are
// rejected at the API boundary before any transform runs.
type PatientRecord struct {
	Age            int     `json:"age" binding:"required,gte=18,lte=100"`
	Sex            int     `json:"sex" binding:"gte=0,lte=1"`
	ChestPainType  int     `json:"chest_pain_type" binding:"required,gte=1,lte=4"`
	RestingBP      int     `json:"resting_bp" binding:"required,gte=60,lte=260"`
	Cholesterol    int     `json:"cholesterol" binding:"required,gte=70,lte=900"`
	FastingBS      int     `json:"fasting_bs" binding:"gte=0,lte=1"`
	RestingECG     int     `json:"resting_ecg" binding:"gte=0,lte=2"`
	MaxHR          int     `json:"max_hr" binding:"required,gte=30,lte=260"`
	ExerciseAngina int     `json:"exercise_angina" binding:"gte=0,lte=1"`
	Oldpeak        float64 `json:"oldpeak" binding:"gte=-3.0,lte=7.0"`
	STSlope        int     `json:"st_slope" binding:"gte=0,lte=3"`
}

// FeatureColumns is the canonical raw column order of the schema. Frames built
// from PatientRecords, the training CSVs, and the raw_data table all use it.
var FeatureColumns = []string{
	"age", "sex", "chest_pain_type", "resting_bp", "cholesterol",
	"fasting_bs", "resting_ecg", "max_hr", "exercise_angina",
	"oldpeak", "st_slope",
}

// CategoricalColumns are the columns one-hot encoded by the feature pipeline.
var CategoricalColumns = []string{"chest_pain_type", "resting_ecg", "st_slope"}

// TargetColumn is the label column in training data and the raw_data table.
const TargetColumn = "target"

// FeatureValues returns the record's fields as float64s in FeatureColumns order.
func (r PatientRecord) FeatureValues() []float64 {
	return []float64{
		float64(r.Age), float64(r.Sex), float64(r.ChestPainType),
		float64(r.RestingBP), float64(r.Cholesterol), float64(r.FastingBS),
		float64(r.RestingECG), float64(r.MaxHR), float64(r.ExerciseAngina),
		r.Oldpeak, float64(r.STSlope),
	}
}

// FeatureMap returns the record keyed by column name.
func (r PatientRecord) FeatureMap() map[string]float64 {
	values := r.FeatureValues()
	out := make(map[string]float64, len(values))
	for i, col := range FeatureColumns {
		out[col] = values[i]
	}
	return out
}

// PredictionResult is the outcome of scoring one PatientRecord. Immutable once
// created; persisted asynchronously for audit.
type PredictionResult struct {
	ID           string    `json:"id"`
	Prediction   int       `json:"prediction"`
	Probability  float64   `json:"probability"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// ModelMetrics is the serving-API view of a model's most recent evaluation.
type ModelMetrics struct {
	ModelName       string   `json:"model_name"`
	ModelVersion    string   `json:"model_version"`
	Accuracy        float64  `json:"accuracy"`
	Precision       float64  `json:"precision"`
	Recall          float64  `json:"recall"`
	F1Score         float64  `json:"f1_score"`
	RocAUC          *float64 `json:"roc_auc,omitempty"`
	PrecisionClass0 float64  `json:"precision_class_0"`
	PrecisionClass1 float64  `json:"precision_class_1"`
	RecallClass0    float64  `json:"recall_class_0"`
	RecallClass1    float64  `json:"recall_class_1"`
	F1Class0        float64  `json:"f1_class_0"`
	F1Class1        float64  `json:"f1_class_1"`
	Samples         int      `json:"samples"`
	CreatedAt       time.Time `json:"created_at"`
}
