package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/repository"
	"github.com/mdlh/query-server-go/internal/service"
)

type QueryHandler struct {
	queryService     *service.QueryService
	preflightService *service.PreflightService
	historyRepo      repository.QueryHistoryRepository
	executeLimiter   func(http.Handler) http.Handler
}

func NewQueryHandler(
	queryService *service.QueryService,
	preflightService *service.PreflightService,
	historyRepo repository.QueryHistoryRepository,
	executeLimiter func(http.Handler) http.Handler,
) *QueryHandler {
	return &QueryHandler{
		queryService:     queryService,
		preflightService: preflightService,
		historyRepo:      historyRepo,
		executeLimiter:   executeLimiter,
	}
}

func (h *QueryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.executeLimiter != nil {
		r.With(h.executeLimiter).Post("/execute", h.Execute)
	} else {
		r.Post("/execute", h.Execute)
	}
	r.Post("/preflight", h.Preflight)
	r.Get("/history", h.History)
	r.Delete("/history", h.ClearHistory)
	r.Get("/cache/stats", h.CacheStats)
	r.Delete("/cache", h.InvalidateCache)
	r.Get("/{queryID}/status", h.Status)
	r.Get("/{queryID}/results", h.Results)
	r.Post("/{queryID}/cancel", h.Cancel)

	return r
}

// POST /api/query/execute
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req struct {
		SQL       string `json:"sql"`
		Database  string `json:"database"`
		Schema    string `json:"schema"`
		Warehouse string `json:"warehouse"`
		RowLimit  int    `json:"rowLimit"`
		Timeout   int    `json:"timeout"`
		UseCache  *bool  `json:"useCache"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	res, err := h.queryService.Execute(r.Context(), sess, service.ExecuteParams{
		SQL:            req.SQL,
		Database:       req.Database,
		Schema:         req.Schema,
		Warehouse:      req.Warehouse,
		RowLimit:       req.RowLimit,
		TimeoutSeconds: req.Timeout,
		UseCache:       useCache,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// A FAILED outcome still answers 200; the status and error ride in the
	// result payload like any other terminal state.
	writeJSON(w, http.StatusOK, formatResult(res))
}

// POST /api/query/preflight
// Advisory table existence check; never blocks execution.
func (h *QueryHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req struct {
		SQL      string `json:"sql"`
		Database string `json:"database"`
		Schema   string `json:"schema"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	report, err := h.preflightService.Validate(r.Context(), sess, req.SQL, req.Database, req.Schema)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/query/{queryID}/status
func (h *QueryHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	res, err := h.queryService.Status(sess, chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatResult(res))
}

// GET /api/query/{queryID}/results
func (h *QueryHandler) Results(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	page, pageSize, err := ParseResultPage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.queryService.Results(sess, chi.URLParam(r, "queryID"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/query/{queryID}/cancel
func (h *QueryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	res, err := h.queryService.Cancel(r.Context(), sess, chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("queryId", res.QueryID).Msg("query cancelled")
	writeJSON(w, http.StatusOK, formatResult(res))
}

// GET /api/query/history
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	pagination := ParsePagination(r)
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !model.ValidQueryStatus(status) {
		writeError(w, apperrors.InvalidInput("status", "unknown query status"))
		return
	}

	records, err := h.historyRepo.Find(r.Context(), pagination.Limit, pagination.Offset, status)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	total, err := h.historyRepo.Count(r.Context(), status)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": records,
		"total":   total,
		"limit":   pagination.Limit,
		"offset":  pagination.Offset,
	})
}

// DELETE /api/query/history
func (h *QueryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	removed, err := h.historyRepo.Clear(r.Context())
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	log.Info().Int64("removed", removed).Msg("query history cleared")
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "clearedAt": time.Now().Format(time.RFC3339)})
}

// GET /api/query/cache/stats
func (h *QueryHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queryService.CacheStats())
}

// DELETE /api/query/cache
func (h *QueryHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	removed := h.queryService.InvalidateCache(sess)
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": removed})
}
