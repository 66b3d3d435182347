package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mdlh/query-server-go/internal/cache"
	"github.com/mdlh/query-server-go/internal/config"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/service"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

type mockHistoryRepo struct {
	mock.Mock
}

func (m *mockHistoryRepo) Add(ctx context.Context, rec model.QueryHistoryRecord) error {
	return m.Called(ctx, rec).Error(0)
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

func newQueryHandler(history *mockHistoryRepo) *QueryHandler {
	cfg := &config.Config{
		DefaultRowLimit:     1000,
		MaxRowLimit:         10000,
		ResultCapPerSession: 50,
		ResultTTLSeconds:    900,
	}
	qc := cache.NewQueryCache(100, time.Minute, 1<<20)
	if history == nil {
		return NewQueryHandler(service.NewQueryService(nil, qc, cfg), service.NewPreflightService(), nil, nil)
	}
	return NewQueryHandler(service.NewQueryService(history, qc, cfg), service.NewPreflightService(), history, nil)
}

func TestExecuteEndpoint(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/execute",
		strings.NewReader(`{"sql": "SELECT 1"}`))
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SUCCESS", body["status"])
	assert.Equal(t, float64(1), body["rowCount"])
	assert.NotEmpty(t, body["queryId"])
}

func TestExecuteEndpointStatementFailure(t *testing.T) {
	conn := &fakeConn{}
	conn.queryFn = func(string, int) (*warehouse.Resultset, error) {
		return nil, errors.New("SQL compilation error: object 'FOO' does not exist")
	}
	h := newQueryHandler(nil)
	sess := newHandlerSession(conn)

	req := httptest.NewRequest(http.MethodPost, "/execute",
		strings.NewReader(`{"sql": "SELECT * FROM foo"}`))
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code, "a failed query is a terminal outcome, not a request error")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FAILED", body["status"])
	assert.Equal(t, "SQL compilation error: object 'FOO' does not exist", body["error"])
	assert.Equal(t, "QUERY_FAILED", body["errorCode"])
	assert.NotEmpty(t, body["queryId"])
}

func TestExecuteEndpointEmptySQL(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"sql": "  "}`))
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_QUERY")
}

func TestExecuteEndpointBadBody(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{not json`))
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpointNotFound(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodGet, "/nope/status", nil)
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUERY_NOT_FOUND")
}

func TestResultsEndpoint(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"sql": "SELECT 1"}`))
	rec := serve(h.Routes(), sess, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var exec map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	queryID := exec["queryId"].(string)

	t.Run("first page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/"+queryID+"/results?page=1&pageSize=10", nil)
		rec := serve(h.Routes(), sess, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var page model.ResultPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, 1, page.TotalRows)
		assert.False(t, page.HasMore)
	})

	t.Run("invalid page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/"+queryID+"/results?page=0", nil)
		rec := serve(h.Routes(), sess, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized page size", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/"+queryID+"/results?pageSize=5000", nil)
		rec := serve(h.Routes(), sess, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestResultsEndpointStillRunning(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})
	sess.StoreResult(&model.QueryResult{
		QueryID:   "running-1",
		Status:    model.QueryStatusRunning,
		StartedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/running-1/results", nil)
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUERY_STILL_RUNNING")
}

func TestCancelEndpoint(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})
	sess.StoreResult(&model.QueryResult{
		QueryID:   "running-1",
		Status:    model.QueryStatusRunning,
		StartedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/running-1/cancel", nil)
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CANCELLED")

	req = httptest.NewRequest(http.MethodPost, "/running-1/cancel", nil)
	rec = serve(h.Routes(), sess, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUERY_NOT_CANCELLABLE")
}

func TestPreflightEndpoint(t *testing.T) {
	conn := &fakeConn{}
	conn.queryFn = func(string, int) (*warehouse.Resultset, error) {
		return &warehouse.Resultset{
			Columns: []model.ResultColumn{
				{Name: "TABLE_NAME", Type: "TEXT"},
				{Name: "ROW_COUNT", Type: "NUMBER"},
			},
			Rows: [][]any{{"ORDERS_V", int64(100)}},
		}, nil
	}
	h := newQueryHandler(nil)
	sess := newHandlerSession(conn)

	req := httptest.NewRequest(http.MethodPost, "/preflight",
		strings.NewReader(`{"sql": "SELECT * FROM orders"}`))
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report service.PreflightReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "ORDERS_V", report.Checks[0].Suggestions[0].Name)
}

func TestHistoryEndpoint(t *testing.T) {
	history := &mockHistoryRepo{}
	history.On("Find", mock.Anything, 50, 0, "SUCCESS").Return([]model.QueryHistoryRecord{
		{QueryID: "q1", SQL: "SELECT '***'", Status: model.QueryStatusSuccess, StartedAt: time.Now()},
	}, nil)
	history.On("Count", mock.Anything, "SUCCESS").Return(1, nil)
	h := newQueryHandler(history)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodGet, "/history?status=success", nil)
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "q1")
	history.AssertExpectations(t)
}

func TestHistoryEndpointBadStatus(t *testing.T) {
	history := &mockHistoryRepo{}
	h := newQueryHandler(history)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodGet, "/history?status=bogus", nil)
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	history.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClearHistoryEndpoint(t *testing.T) {
	history := &mockHistoryRepo{}
	history.On("Clear", mock.Anything).Return(int64(12), nil)
	h := newQueryHandler(history)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodDelete, "/history", nil)
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":12`)
}

func TestCacheStatsEndpoint(t *testing.T) {
	h := newQueryHandler(nil)
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
}
