// Package errors provides the API surface's RFC 7807 problem details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions re-exported for callers.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Problem type URIs returned by the API.
const (
	TypeValidationError = "https://api.umbralrisk.com/problems/validation-error"
	TypeNotFound        = "https://api.umbralrisk.com/problems/not-found"
	TypeLegalReject     = "https://api.umbralrisk.com/problems/legal-reject"
	TypeInternalError   = "https://api.umbralrisk.com/problems/internal-error"
)

// Problem is an RFC 7807 problem details document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	cause error
}

var _ error = (*Problem)(nil)

// Error implements error.
func (p *Problem) Error() string {
	str := fmt.Sprintf("[%s] %s", p.Title, p.Detail)
	if p.cause != nil {
		str += fmt.Sprintf(" (%s)", p.cause)
	}
	return str
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (p *Problem) Unwrap() error { return p.cause }

// Wrap sets the problem's cause.
func (p *Problem) Wrap(cause error) *Problem {
	out := *p
	out.cause = cause
	return &out
}

// NewValidation builds a 400 validation problem.
func NewValidation(detail string) *Problem {
	return &Problem{
		Type:   TypeValidationError,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: detail,
	}
}

// NewNotFound builds a 404 problem.
func NewNotFound(detail string) *Problem {
	return &Problem{
		Type:   TypeNotFound,
		Title:  "Not Found",
		Status: http.StatusNotFound,
		Detail: detail,
	}
}

// NewInternal builds a 500 problem that hides the underlying cause from the
// response body.
func NewInternal() *Problem {
	return &Problem{
		Type:   TypeInternalError,
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
	}
}
