package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/service"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/httputil"
	"github.com/utafrali/searchsync/pkg/logger"
	"github.com/utafrali/searchsync/pkg/pagination"
	"github.com/utafrali/searchsync/pkg/validator"
)

// Models resolves declared models.
type Models interface {
	Model(name string) (*service.Model, error)
	Models() []string
}

// IndexHandler serves the admin API over declared models.
type IndexHandler struct {
	models Models
	logger *slog.Logger
	// spawn runs background reindexes; tests replace it to run inline.
	spawn func(func())
}

// NewIndexHandler creates a new index admin handler.
func NewIndexHandler(models Models, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		models: models,
		logger: logger,
		spawn:  func(fn func()) { go fn() },
	}
}

// ReindexRequest holds the query parameters of a reindex trigger.
type ReindexRequest struct {
	Mode      string `validate:"oneof=swap inplace"`
	BatchSize int    `validate:"gte=0,lte=10000"`
}

func (h *IndexHandler) model(w http.ResponseWriter, r *http.Request) (*service.Model, bool) {
	m, err := h.models.Model(chi.URLParam(r, "model"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return m, true
}

// List handles GET /api/v1/indexes
func (h *IndexHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"models": h.models.Models()}})
}

// Info handles GET /api/v1/indexes/{model}
func (h *IndexHandler) Info(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}

	info, err := m.Info(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: info})
}

// Reindex handles POST /api/v1/indexes/{model}/reindex. The rebuild runs in
// the background; its outcome is logged. While one runs for the model further
// triggers get 409.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}

	req := ReindexRequest{Mode: r.URL.Query().Get("mode")}
	if req.Mode == "" {
		req.Mode = "swap"
	}
	if v := r.URL.Query().Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("batch_size must be a number"), h.logger)
			return
		}
		req.BatchSize = n
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if m.Reindexing() {
		httputil.WriteError(w, r, apperrors.Conflict(fmt.Sprintf("a reindex of %s is already running", m.Name())), h.logger)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	log := logger.WithContext(ctx, h.logger).With(
		slog.String("model", m.Name()),
		slog.String("mode", req.Mode),
	)
	h.spawn(func() {
		if req.Mode == "inplace" {
			res, err := m.ReindexInPlace(ctx, req.BatchSize)
			if err != nil {
				log.ErrorContext(ctx, "background reindex failed", slog.String("error", err.Error()))
				return
			}
			var attrs []any
			if res != nil {
				attrs = append(attrs, slog.Int("last_batch_success", res.Success), slog.Int("last_batch_failed", res.Failed))
			}
			log.InfoContext(ctx, "background reindex completed", attrs...)
			return
		}

		res, err := m.Reindex(ctx, req.BatchSize)
		if err != nil {
			log.ErrorContext(ctx, "background reindex failed", slog.String("error", err.Error()))
			return
		}
		log.InfoContext(ctx, "background reindex completed",
			slog.String("collection", res.Collection),
			slog.String("previous", res.Previous),
			slog.Int("imported", res.Imported),
			slog.Int("failed", res.Failed),
			slog.Duration("duration", res.Duration),
		)
	})

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{
		"model":  m.Name(),
		"mode":   req.Mode,
		"status": "reindex started",
	}})
}

// Clear handles DELETE /api/v1/indexes/{model}
func (h *IndexHandler) Clear(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}

	if err := m.ClearIndex(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"model": m.Name(), "status": "cleared"}})
}

// Search handles GET /api/v1/indexes/{model}/search. With raw=true the
// engine's hits are returned as-is; otherwise hits are loaded from the
// model's source.
func (h *IndexHandler) Search(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	queryBy := strings.TrimSpace(q.Get("query_by"))
	if queryBy == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("query_by is required"), h.logger)
		return
	}
	page := pagination.FromRequest(r)
	params := engine.SearchParams{
		FilterBy: q.Get("filter_by"),
		SortBy:   q.Get("sort_by"),
		Page:     page.Page,
		PerPage:  page.PerPage,
	}
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		query = "*"
	}

	if raw, _ := strconv.ParseBool(q.Get("raw")); raw {
		res, err := m.RawSearch(r.Context(), query, queryBy, params)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
		return
	}

	res, err := m.Search(r.Context(), query, queryBy, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	attrs := make([]map[string]any, len(res.Data))
	for i, rec := range res.Data {
		attrs[i] = rec.Attributes()
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pagination.NewResult(attrs, res.TotalCount, pagination.Params{
		Page:    res.Page,
		PerPage: res.PerPage,
	})})
}

// Document handles GET /api/v1/indexes/{model}/documents/{id}
func (h *IndexHandler) Document(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}

	doc, err := m.RetrieveDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: doc})
}
