package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/service"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

type ConnectionHandler struct {
	connService *service.ConnectionService
}

func NewConnectionHandler(connService *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connService: connService}
}

// SessionRoutes are the routes that require a live session.
func (h *ConnectionHandler) SessionRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/session/status", h.Status)
	r.Post("/disconnect", h.Disconnect)

	return r
}

// POST /api/connect
// Authenticate against the warehouse and open a new session.
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		User      string `json:"user"`
		AuthType  string `json:"authType"`
		Password  string `json:"password"`
		Token     string `json:"token"`
		Warehouse string `json:"warehouse"`
		Database  string `json:"database"`
		Schema    string `json:"schema"`
		Role      string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	sess, err := h.connService.Connect(r.Context(), warehouse.Credentials{
		Account:   req.Account,
		User:      req.User,
		AuthType:  warehouse.AuthType(req.AuthType),
		Password:  req.Password,
		Token:     req.Token,
		Warehouse: req.Warehouse,
		Database:  req.Database,
		Schema:    req.Schema,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.Handle,
		"identity":  sess.Identity(),
	})
}

// GET /api/sessions
// Operational snapshot of every live session; carries no handles.
func (h *ConnectionHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connService.Stats())
}

// GET /api/session/status
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	writeJSON(w, http.StatusOK, h.connService.Status(sess))
}

// POST /api/disconnect
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if err := h.connService.Disconnect(sess.Handle); err != nil {
		writeError(w, err)
		return
	}
	log.Info().Msg("session closed by client")
	writeJSON(w, http.StatusOK, map[string]any{"disconnected": true})
}
