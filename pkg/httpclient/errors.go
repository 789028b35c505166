package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// StatusError is a non-2xx response that carries no structured meaning for
// the caller. It is what 5xx responses become.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}

// remoteErrorResponse is the error body shape used by search engine REST
// APIs: {"message": "..."}.
type remoteErrorResponse struct {
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an error. 404 becomes ObjectNotFound, 400 InvalidInput and 409
// Conflict; anything else is a *StatusError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}

	message := string(bodyBytes)
	var remote remoteErrorResponse
	if json.Unmarshal(bodyBytes, &remote) == nil && remote.Message != "" {
		message = remote.Message
	}

	qualified := fmt.Sprintf("%s: %s", service, message)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &apperrors.AppError{
			Code:    "OBJECT_NOT_FOUND",
			Message: qualified,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrObjectNotFound,
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	default:
		return &StatusError{Service: service, Status: resp.StatusCode, Body: message}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
