package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the error shape surfaced by the HTTP layer
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *APIError) Unwrap() error {
	return e.Internal
}

// New creates a new APIError
func New(status int, message string, err error) *APIError {
	return &APIError{
		Status:   status,
		Message:  message,
		Internal: err,
	}
}

func BadRequest(message string, err error) *APIError {
	return New(http.StatusBadRequest, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, message, err)
}

func Forbidden(message string, err error) *APIError {
	return New(http.StatusForbidden, message, err)
}

func NotFound(message string, err error) *APIError {
	return New(http.StatusNotFound, message, err)
}

func Conflict(message string, err error) *APIError {
	return New(http.StatusConflict, message, err)
}

func UnprocessableEntity(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, message, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// NewValidationError wraps a binding failure
func NewValidationError(err error) *APIError {
	return BadRequest("Invalid input", err)
}

// ErrBuildSuperseded signals that a timeline build lost the generation
// race: its reservation was bumped while it ran. Not a failure; the
// build output is discarded and a fresh build takes over.
var ErrBuildSuperseded = errors.New("timeline build superseded by newer reservation")

// InputShapeError marks malformed builder input: a consent event with an
// unknown status, a recurrence with a non-positive cycle, a bank with
// inverted offsets. The build aborts and the cache entry stays stale.
type InputShapeError struct {
	Reason string
}

func (e *InputShapeError) Error() string {
	return "input shape: " + e.Reason
}

func InputShape(format string, args ...any) error {
	return &InputShapeError{Reason: fmt.Sprintf(format, args...)}
}

func IsInputShape(err error) bool {
	var e *InputShapeError
	return errors.As(err, &e)
}

// InvariantError marks a post-build assertion failure, e.g. two rows
// sharing a primary key. The build is discarded and the entry stays
// invalid until an operator intervenes.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "timeline invariant violated: " + e.Reason
}

func Invariant(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

func IsInvariant(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

// TransientError wraps a store failure worth retrying with backoff
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient store error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}
