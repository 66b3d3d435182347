package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// fakeConn is a scriptable warehouse connection. queryFn and execFn default
// to empty success.
type fakeConn struct {
	mu        sync.Mutex
	queries   []string
	execs     []string
	cancelled []string
	lastID    string
	closed    bool

	queryFn func(query string, maxRows int) (*warehouse.Resultset, error)
	execFn  func(query string) error
}

func (f *fakeConn) Query(_ context.Context, query string, maxRows int) (*warehouse.Resultset, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query, maxRows)
	}
	return &warehouse.Resultset{}, nil
}

func (f *fakeConn) Exec(_ context.Context, query string) error {
	f.mu.Lock()
	f.execs = append(f.execs, query)
	fn := f.execFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	return nil
}

func (f *fakeConn) LastQueryID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID
}

func (f *fakeConn) CancelQuery(_ context.Context, queryID string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, queryID)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// resultset builds a single-column result with one string cell per row.
func resultset(col string, values ...string) *warehouse.Resultset {
	rs := &warehouse.Resultset{Columns: []model.ResultColumn{{Name: col, Type: "TEXT"}}}
	for _, v := range values {
		rs.Rows = append(rs.Rows, []any{v})
	}
	return rs
}

func newTestSession(conn warehouse.Conn) *session.Session {
	return newTestSessionWithIdentity(conn, warehouse.Identity{
		Account:   "acct",
		User:      "alice",
		Role:      "ANALYST",
		Warehouse: "WH",
		Database:  "SALES",
		Schema:    "PUBLIC",
	})
}

func newTestSessionWithIdentity(conn warehouse.Conn, identity warehouse.Identity) *session.Session {
	mgr := session.NewManager(time.Hour, time.Hour)
	return mgr.Create(conn, identity)
}

type mockHistoryRepo struct {
	mock.Mock
}

func (m *mockHistoryRepo) Add(ctx context.Context, rec model.QueryHistoryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockHistoryRepo) Find(ctx context.Context, limit, offset int, status string) ([]model.QueryHistoryRecord, error) {
	args := m.Called(ctx, limit, offset, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueryHistoryRecord), args.Error(1)
}

func (m *mockHistoryRepo) Count(ctx context.Context, status string) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *mockHistoryRepo) Clear(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
