package middleware

import (
	"context"
	"net/http"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/httputil"
	"github.com/mdlh/query-server-go/internal/session"
)

// SessionHeader carries the opaque session handle on every session-bound
// request.
const SessionHeader = "X-Session-ID"

type contextKey string

const SessionContextKey contextKey = "session"

// GetSession returns the session attached to the request context, nil when
// the route is not session-bound.
func GetSession(ctx context.Context) *session.Session {
	if s, ok := ctx.Value(SessionContextKey).(*session.Session); ok {
		return s
	}
	return nil
}

// SessionMiddleware resolves the session handle header into a live session.
// Missing, unknown and expired handles all fail the same way so a handle
// cannot be probed.
type SessionMiddleware struct {
	sessions *session.Manager
}

func NewSessionMiddleware(sessions *session.Manager) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := r.Header.Get(SessionHeader)
		if handle == "" {
			httputil.WriteError(w, apperrors.SessionNotFound())
			return
		}
		sess, err := m.sessions.Get(handle)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
