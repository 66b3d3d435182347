package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

type fakeConn struct {
	mu      sync.Mutex
	queries []string
	queryFn func(query string, maxRows int) (*warehouse.Resultset, error)
}

func (f *fakeConn) Query(_ context.Context, query string, maxRows int) (*warehouse.Resultset, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query, maxRows)
	}
	return &warehouse.Resultset{
		Columns: []model.ResultColumn{{Name: "N", Type: "NUMBER"}},
		Rows:    [][]any{{int64(1)}},
	}, nil
}

func (f *fakeConn) Exec(context.Context, string) error        { return nil }
func (f *fakeConn) LastQueryID() string                       { return "" }
func (f *fakeConn) CancelQuery(context.Context, string) error { return nil }
func (f *fakeConn) Close() error                              { return nil }

func newHandlerSession(conn warehouse.Conn) *session.Session {
	mgr := session.NewManager(time.Hour, time.Hour)
	return mgr.Create(conn, warehouse.Identity{
		Account: "acct", User: "alice", Role: "ANALYST",
		Warehouse: "WH", Database: "SALES", Schema: "PUBLIC",
	})
}

// serve runs one request against a router with the session injected the way
// the session middleware would.
func serve(router http.Handler, sess *session.Session, req *http.Request) *httptest.ResponseRecorder {
	if sess != nil {
		ctx := context.WithValue(req.Context(), middleware.SessionContextKey, sess)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
