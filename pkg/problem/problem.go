// Package problem renders API errors as RFC 7807 problem details.
package problem

import (
	"net/http"
)

// Details is an RFC 7807 problem-details response body.
type Details struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	Fields   []FieldError `json:"fields,omitempty"`
}

// FieldError describes a validation failure for one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const typePrefix = "https://heartml.dev/problems/"

// New builds a problem of the given type slug and HTTP status.
func New(slug string, status int, detail string) *Details {
	return &Details{
		Type:   typePrefix + slug,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// BadRequest is a 400 problem.
func BadRequest(detail string) *Details {
	return New("bad-request", http.StatusBadRequest, detail)
}

// Validation is a 400 problem carrying per-field errors.
func Validation(detail string, fields []FieldError) *Details {
	p := New("validation", http.StatusBadRequest, detail)
	p.Fields = fields
	return p
}

// NotFound is a 404 problem.
func NotFound(detail string) *Details {
	return New("not-found", http.StatusNotFound, detail)
}

// Internal is a 500 problem. The detail stays generic; the cause belongs in
// the server log, not the response.
func Internal() *Details {
	return New("internal", http.StatusInternalServerError, "an internal error occurred")
}

// Unavailable is a 503 problem.
func Unavailable(detail string) *Details {
	return New("unavailable", http.StatusServiceUnavailable, detail)
}
