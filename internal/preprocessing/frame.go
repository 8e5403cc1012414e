package preprocessing

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Frame is an ordered collection of named float64 columns, stored row-major.
// Column set and order are the feature contract: once an encoder is fitted,
// train, validation, and inference frames must all carry the same columns in
// the same order.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]float64
}

// New creates an empty frame with the given column order.
func New(columns []string) *Frame {
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range f.columns {
		f.index[c] = i
	}
	return f
}

// FromRows creates a frame from row-major data. Rows must match the column count.
func FromRows(columns []string, rows [][]float64) (*Frame, error) {
	f := New(columns)
	for _, r := range rows {
		if err := f.AppendRow(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Columns returns a copy of the column order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return len(f.rows) }

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.columns) }

// HasColumn reports whether the frame carries the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Row returns row i. The slice is owned by the frame; callers must not mutate it.
func (f *Frame) Row(i int) []float64 { return f.rows[i] }

// AppendRow adds a row. The values are copied.
func (f *Frame) AppendRow(values []float64) error {
	if len(values) != len(f.columns) {
		return &SchemaError{Reason: fmt.Sprintf("row has %d values, frame has %d columns", len(values), len(f.columns))}
	}
	f.rows = append(f.rows, append([]float64(nil), values...))
	return nil
}

// Col returns a copy of the named column.
func (f *Frame) Col(name string) ([]float64, error) {
	idx, ok := f.index[name]
	if !ok {
		return nil, &SchemaError{Column: name, Reason: "column not found"}
	}
	out := make([]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// SetCol overwrites the named column in place.
func (f *Frame) SetCol(name string, values []float64) error {
	idx, ok := f.index[name]
	if !ok {
		return &SchemaError{Column: name, Reason: "column not found"}
	}
	if len(values) != len(f.rows) {
		return &SchemaError{Column: name, Reason: fmt.Sprintf("column has %d values, frame has %d rows", len(values), len(f.rows))}
	}
	for i := range f.rows {
		f.rows[i][idx] = values[i]
	}
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New(f.columns)
	out.rows = make([][]float64, len(f.rows))
	for i, r := range f.rows {
		out.rows[i] = append([]float64(nil), r...)
	}
	return out
}

// Drop returns a copy without the named column, plus that column's values.
func (f *Frame) Drop(name string) (*Frame, []float64, error) {
	idx, ok := f.index[name]
	if !ok {
		return nil, nil, &SchemaError{Column: name, Reason: "column not found"}
	}
	cols := make([]string, 0, len(f.columns)-1)
	for _, c := range f.columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	out := New(cols)
	dropped := make([]float64, len(f.rows))
	for i, r := range f.rows {
		row := make([]float64, 0, len(cols))
		for j, v := range r {
			if j == idx {
				dropped[i] = v
				continue
			}
			row = append(row, v)
		}
		out.rows = append(out.rows, row)
	}
	return out, dropped, nil
}

// Labels extracts the named column as integer class labels.
func (f *Frame) Labels(name string) ([]int, error) {
	col, err := f.Col(name)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(col))
	for i, v := range col {
		labels[i] = int(math.Round(v))
	}
	return labels, nil
}

// Matrix returns the frame as row-major [][]float64. The rows are copies.
func (f *Frame) Matrix() [][]float64 {
	out := make([][]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Filter returns a copy containing only the rows for which keep[i] is true.
func (f *Frame) Filter(keep []bool) *Frame {
	out := New(f.columns)
	for i, r := range f.rows {
		if keep[i] {
			out.rows = append(out.rows, append([]float64(nil), r...))
		}
	}
	return out
}

// ReadCSV parses a headered CSV into a frame. Empty cells become NaN so that
// Impute can treat them as missing.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	f := New(header)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := make([]float64, len(record))
		for i, cell := range record {
			if cell == "" {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("non-numeric value %q in column %q: %w", cell, header[i], err)
			}
			row[i] = v
		}
		if err := f.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(f.columns))
	for _, r := range f.rows {
		for i, v := range r {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
