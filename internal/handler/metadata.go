package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/service"
)

type MetadataHandler struct {
	metaService *service.MetadataService
}

func NewMetadataHandler(metaService *service.MetadataService) *MetadataHandler {
	return &MetadataHandler{metaService: metaService}
}

func (h *MetadataHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/databases", h.ListDatabases)
	r.Get("/databases/{database}/schemas", h.ListSchemas)
	r.Get("/databases/{database}/schemas/{schema}/tables", h.ListTables)
	r.Get("/databases/{database}/schemas/{schema}/tables/{table}/columns", h.ListColumns)
	r.Get("/capabilities", h.Capabilities)
	r.Post("/refresh", h.Refresh)
	r.Get("/cache/stats", h.CacheStats)

	return r
}

func wantsRefresh(r *http.Request) bool {
	return r.URL.Query().Get("refresh") == "true"
}

// GET /api/metadata/databases
func (h *MetadataHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	dbs, fromCache, err := h.metaService.ListDatabases(r.Context(), sess, wantsRefresh(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": dbs, "fromCache": fromCache})
}

// GET /api/metadata/databases/{database}/schemas
func (h *MetadataHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	schemas, fromCache, err := h.metaService.ListSchemas(r.Context(), sess, chi.URLParam(r, "database"), wantsRefresh(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas, "fromCache": fromCache})
}

// GET /api/metadata/databases/{database}/schemas/{schema}/tables
func (h *MetadataHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	tables, fromCache, err := h.metaService.ListTables(r.Context(), sess,
		chi.URLParam(r, "database"), chi.URLParam(r, "schema"), wantsRefresh(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables, "fromCache": fromCache})
}

// GET /api/metadata/databases/{database}/schemas/{schema}/tables/{table}/columns
func (h *MetadataHandler) ListColumns(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	cols, fromCache, err := h.metaService.ListColumns(r.Context(), sess,
		chi.URLParam(r, "database"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"), wantsRefresh(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": cols, "fromCache": fromCache})
}

// GET /api/metadata/capabilities
func (h *MetadataHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	caps, fromCache, err := h.metaService.Capabilities(r.Context(), sess, wantsRefresh(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": caps, "fromCache": fromCache})
}

// POST /api/metadata/refresh
// Invalidate cached catalog state, narrowest match first.
func (h *MetadataHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req struct {
		Category string `json:"category"`
		Database string `json:"database"`
		Schema   string `json:"schema"`
		Table    string `json:"table"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.ValidationError("Invalid request body"))
			return
		}
	}

	removed, err := h.metaService.Refresh(sess, req.Category, req.Database, req.Schema, req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": removed})
}

// GET /api/metadata/cache/stats
func (h *MetadataHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metaService.Stats())
}
