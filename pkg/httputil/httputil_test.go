package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/logger"
	"github.com/utafrali/searchsync/pkg/validator"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, Response{Data: map[string]string{"mode": "swap"}})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotNil(t, decode(t, rec).Data)
}

func TestWriteError_AppErrorKeepsCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/indexes/Book", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-1"))

	WriteError(rec, req, fmt.Errorf("lookup: %w", apperrors.NotFound("model", "Book")), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestWriteError_InternalIsLoggedAndMasked(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/indexes/Book/reindex", nil)
	WriteError(rec, req, fmt.Errorf("import page: connection reset"), fallback)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "connection reset")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestWriteError_ConfigurationErrorCodeSurvives(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	WriteError(rec, req, apperrors.NotConfigured("no api key"), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "NOT_CONFIGURED", decode(t, rec).Error.Code)
}

func TestWriteError_ValidationError(t *testing.T) {
	type params struct {
		Mode string `validate:"oneof=swap inplace"`
	}
	err := validator.Validate(params{Mode: "x"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "Mode")
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	var reqBuf, fallbackBuf bytes.Buffer
	reqLogger := slog.New(slog.NewJSONHandler(&reqBuf, nil))
	fallback := slog.New(slog.NewJSONHandler(&fallbackBuf, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.NewContext(context.Background(), reqLogger))
	WriteError(httptest.NewRecorder(), req, fmt.Errorf("boom"), fallback)

	assert.Contains(t, reqBuf.String(), "boom")
	assert.Zero(t, fallbackBuf.Len())
}
