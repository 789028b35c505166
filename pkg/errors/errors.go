package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrObjectNotFound    = errors.New("object not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotConfigured     = errors.New("not configured")
	ErrBadConfiguration  = errors.New("bad configuration")
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrServiceUnavail    = errors.New("service unavailable")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for a locally known resource (a declared model,
// an index binding).
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// ObjectNotFound creates the error a search gateway returns when a collection,
// alias or document does not exist on the remote engine.
func ObjectNotFound(kind, name string) *AppError {
	return &AppError{
		Code:    "OBJECT_NOT_FOUND",
		Message: fmt.Sprintf("%s %q not found", kind, name),
		Status:  http.StatusNotFound,
		Err:     ErrObjectNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// NotConfigured is returned when the search client has not been configured
// before first use.
func NotConfigured(message string) *AppError {
	return &AppError{
		Code:    "NOT_CONFIGURED",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrNotConfigured,
	}
}

// BadConfiguration is returned for invalid index declarations and settings.
func BadConfiguration(message string) *AppError {
	return &AppError{
		Code:    "BAD_CONFIGURATION",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrBadConfiguration,
	}
}

// MissingIdentifier is returned when a record with a blank id reaches an
// indexing or removal operation.
func MissingIdentifier(model string) *AppError {
	return &AppError{
		Code:    "MISSING_IDENTIFIER",
		Message: fmt.Sprintf("cannot index a %s record with a blank id", model),
		Status:  http.StatusBadRequest,
		Err:     ErrMissingIdentifier,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsObjectNotFound reports whether err is a remote not-found error.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
