package preprocessing

import "fmt"

// SchemaError reports a reference to a column the frame does not carry, or a
// structurally invalid row. Raised before any transform mutates data.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error on column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("schema error: %s", e.Reason)
}

// TransformStateError reports a fit/transform ordering violation: applying a
// transform that was never fitted, or fitting an encoder twice without Reset.
type TransformStateError struct {
	Op     string
	Reason string
}

func (e *TransformStateError) Error() string {
	return fmt.Sprintf("transform state error in %s: %s", e.Op, e.Reason)
}
