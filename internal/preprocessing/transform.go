package preprocessing

import (
	"fmt"
	"math"
)

// FittedTransform captures the encoder categories and scaler statistics learned
// during training so inference-time rows pass through the exact same mapping.
// All fields are exported for gob serialization alongside the model.
type FittedTransform struct {
	// EncodedColumns lists the categorical source columns in fit order.
	EncodedColumns []string
	// Categories maps each encoded column to its sorted category values.
	Categories map[string][]float64

	// ScaleMethod is "standard", "minmax", or "" when no scaler was fitted.
	ScaleMethod string
	// ScaleColumns lists the scaled columns in the fitted frame's order.
	ScaleColumns []string
	Mean         map[string]float64
	Scale        map[string]float64
	Min          map[string]float64
	Max          map[string]float64

	// OutputColumns is the full post-encoding column order the model expects.
	OutputColumns []string
}

// indicatorName builds the one-hot column name for a category value.
func indicatorName(col string, v float64) string {
	return fmt.Sprintf("%s_%g", col, v)
}

// EncodeFrame expands the categorical columns of f into indicator columns
// using the fitted categories. Values never seen during fitting produce an
// all-zero indicator row for that column. Non-categorical columns keep their
// relative order; indicator columns are appended in fit order.
func (t *FittedTransform) EncodeFrame(f *Frame) (*Frame, error) {
	encoded := make(map[string]bool, len(t.EncodedColumns))
	for _, c := range t.EncodedColumns {
		if !f.HasColumn(c) {
			return nil, &SchemaError{Column: c, Reason: "categorical column missing from input"}
		}
		encoded[c] = true
	}

	outCols := make([]string, 0, f.NumCols())
	for _, c := range f.Columns() {
		if !encoded[c] {
			outCols = append(outCols, c)
		}
	}
	for _, c := range t.EncodedColumns {
		for _, v := range t.Categories[c] {
			outCols = append(outCols, indicatorName(c, v))
		}
	}

	srcIdx := make(map[string]int, f.NumCols())
	for i, c := range f.Columns() {
		srcIdx[c] = i
	}

	out := New(outCols)
	row := make([]float64, len(outCols))
	for i := 0; i < f.NumRows(); i++ {
		src := f.Row(i)
		k := 0
		for _, c := range f.Columns() {
			if !encoded[c] {
				row[k] = src[srcIdx[c]]
				k++
			}
		}
		for _, c := range t.EncodedColumns {
			val := src[srcIdx[c]]
			for _, cat := range t.Categories[c] {
				if val == cat {
					row[k] = 1
				} else {
					row[k] = 0
				}
				k++
			}
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScaleFrame applies the fitted scaler statistics to f in place and returns it.
func (t *FittedTransform) ScaleFrame(f *Frame) (*Frame, error) {
	if t.ScaleMethod == "" {
		return f, nil
	}
	for _, c := range t.ScaleColumns {
		col, err := f.Col(c)
		if err != nil {
			return nil, err
		}
		switch t.ScaleMethod {
		case ScaleStandard:
			m, s := t.Mean[c], t.Scale[c]
			if s == 0 {
				s = 1
			}
			for i := range col {
				col[i] = (col[i] - m) / s
			}
		case ScaleMinMax:
			lo, hi := t.Min[c], t.Max[c]
			span := hi - lo
			if span == 0 {
				span = 1
			}
			for i := range col {
				col[i] = (col[i] - lo) / span
			}
		default:
			return nil, &TransformStateError{Op: "scale", Reason: fmt.Sprintf("unknown scaling method %q", t.ScaleMethod)}
		}
		if err := f.SetCol(c, col); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Apply runs the full fitted transform, encoding then scaling, and verifies the
// result matches the column contract learned during training.
func (t *FittedTransform) Apply(f *Frame) (*Frame, error) {
	out, err := t.EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	out, err = t.ScaleFrame(out)
	if err != nil {
		return nil, err
	}
	if len(t.OutputColumns) > 0 {
		got := out.Columns()
		if len(got) != len(t.OutputColumns) {
			return nil, &SchemaError{Reason: fmt.Sprintf("transformed frame has %d columns, model expects %d", len(got), len(t.OutputColumns))}
		}
		for i, c := range t.OutputColumns {
			if got[i] != c {
				return nil, &SchemaError{Column: c, Reason: fmt.Sprintf("column order mismatch at position %d (got %q)", i, got[i])}
			}
		}
	}
	return out, nil
}

// ApplyRow transforms a single observation given as a column-name map.
func (t *FittedTransform) ApplyRow(values map[string]float64, columns []string) ([]float64, error) {
	f := New(columns)
	row := make([]float64, len(columns))
	for i, c := range columns {
		v, ok := values[c]
		if !ok {
			return nil, &SchemaError{Column: c, Reason: "value missing from observation"}
		}
		if math.IsNaN(v) {
			return nil, &SchemaError{Column: c, Reason: "observation value is NaN"}
		}
		row[i] = v
	}
	if err := f.AppendRow(row); err != nil {
		return nil, err
	}
	out, err := t.Apply(f)
	if err != nil {
		return nil, err
	}
	return out.Row(0), nil
}
