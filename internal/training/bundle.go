package training

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/cardionics/heartml/internal/preprocessing"
)

// TrainedModel bundles a fitted classifier with the preprocessing state that
// produced its training matrix. Serving a model without its transform would
// silently misalign columns, so the two always travel together.
type TrainedModel struct {
	Name      string
	Version   string
	Algorithm string
	Params    Params
	Columns   []string
	Transform *preprocessing.FittedTransform
	Classifier Classifier
	TrainedAt time.Time
}

// PredictRow transforms one raw observation and returns class and probability.
func (m *TrainedModel) PredictRow(values map[string]float64, rawColumns []string) (int, float64, error) {
	row, err := m.Transform.ApplyRow(values, rawColumns)
	if err != nil {
		return 0, 0, err
	}
	proba, err := m.Classifier.PredictProba([][]float64{row})
	if err != nil {
		return 0, 0, fmt.Errorf("prediction failed: %w", err)
	}
	class := 0
	if proba[0] >= 0.5 {
		class = 1
	}
	return class, proba[0], nil
}

func init() {
	gob.Register(&KNN{})
	gob.Register(&LogisticRegression{})
	gob.Register(&GaussianNB{})
	gob.Register(&DecisionTree{})
	gob.Register(&RandomForest{})
	gob.Register(&GradientBoosting{})
	gob.Register(&SVM{})
	// Params values travel as interface{}
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(0.0)
	gob.Register("")
	gob.Register(false)
}

// Encode serializes the bundle with gob.
func (m *TrainedModel) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode model %s: %w", m.Name, err)
	}
	return buf.Bytes(), nil
}

// DecodeModel deserializes a gob-encoded bundle.
func DecodeModel(data []byte) (*TrainedModel, error) {
	var m TrainedModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return &m, nil
}
