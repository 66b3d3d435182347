package handler

import (
	"net/http"
	"time"

	"github.com/mdlh/query-server-go/internal/httputil"
	"github.com/mdlh/query-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatResult(r model.QueryResult) map[string]any {
	out := map[string]any{
		"queryId":     r.QueryID,
		"status":      r.Status,
		"rowCount":    r.RowCount,
		"truncated":   r.Truncated,
		"fromCache":   r.FromCache,
		"elapsedMs":   r.ElapsedMS(),
		"startedAt":   r.StartedAt.Format(time.RFC3339),
		"completedAt": formatTime(r.CompletedAt),
	}
	if len(r.Columns) > 0 {
		out["columns"] = r.Columns
	}
	if r.ErrorMessage != "" {
		out["error"] = r.ErrorMessage
	}
	if r.ErrorCode != "" {
		out["errorCode"] = r.ErrorCode
	}
	return out
}
