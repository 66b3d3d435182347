package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/service"
)

type FeedbackHandler struct {
	feedbackService *service.FeedbackService
}

func NewFeedbackHandler(feedbackService *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService}
}

func (h *FeedbackHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Submit)
	r.Get("/summary", h.Summary)

	return r
}

// POST /api/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req struct {
		PivotID         string `json:"pivotId"`
		Rating          *int   `json:"rating"`
		Helpful         *bool  `json:"helpful"`
		Comment         string `json:"comment"`
		ContextDatabase string `json:"contextDatabase"`
		ContextSchema   string `json:"contextSchema"`
		ContextTable    string `json:"contextTable"`
		QueryID         string `json:"queryId"`
		SQL             string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	fb, err := h.feedbackService.Submit(r.Context(), sess, model.Feedback{
		PivotID:         req.PivotID,
		Rating:          req.Rating,
		Helpful:         req.Helpful,
		Comment:         req.Comment,
		ContextDatabase: req.ContextDatabase,
		ContextSchema:   req.ContextSchema,
		ContextTable:    req.ContextTable,
		QueryID:         req.QueryID,
		SQL:             req.SQL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// GET /api/feedback/summary
func (h *FeedbackHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	summaries, err := h.feedbackService.Summary(r.Context(), sess, r.URL.Query().Get("pivotId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}
