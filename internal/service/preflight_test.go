package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

func catalogResult(tables ...[]any) *warehouse.Resultset {
	return &warehouse.Resultset{
		Columns: []model.ResultColumn{
			{Name: "TABLE_NAME", Type: "TEXT"},
			{Name: "ROW_COUNT", Type: "NUMBER"},
		},
		Rows: tables,
	}
}

func preflightSession(tables ...[]any) (*PreflightService, *fakeConn, func(sql string) (PreflightReport, error)) {
	conn := &fakeConn{}
	conn.queryFn = func(string, int) (*warehouse.Resultset, error) {
		return catalogResult(tables...), nil
	}
	svc := NewPreflightService()
	sess := newTestSession(conn)
	return svc, conn, func(sql string) (PreflightReport, error) {
		return svc.Validate(context.Background(), sess, sql, "", "")
	}
}

func TestPreflightExplicitDefaults(t *testing.T) {
	conn := &fakeConn{}
	conn.queryFn = func(query string, _ int) (*warehouse.Resultset, error) {
		assert.Contains(t, query, `analytics.INFORMATION_SCHEMA.TABLES`)
		assert.Contains(t, query, `table_schema = 'staging'`)
		return catalogResult([]any{"ORDERS", int64(10)}), nil
	}
	svc := NewPreflightService()
	sess := newTestSession(conn)

	report, err := svc.Validate(context.Background(), sess, "SELECT * FROM orders", "analytics", "staging")
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestPreflightEmptySQL(t *testing.T) {
	_, _, validate := preflightSession()
	_, err := validate("   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEmptyQuery, apperrors.GetCode(err))
}

func TestPreflightNoTableRefs(t *testing.T) {
	_, conn, validate := preflightSession()
	report, err := validate("SELECT 1 + 1")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Checks)
	assert.Equal(t, 0, conn.queryCount(), "nothing to verify, nothing queried")
}

func TestPreflightAllTablesExist(t *testing.T) {
	_, _, validate := preflightSession(
		[]any{"ORDERS", int64(5000)},
		[]any{"CUSTOMERS", int64(200)},
	)
	report, err := validate("SELECT * FROM orders JOIN customers ON orders.cid = customers.id")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)
	assert.Empty(t, report.RewrittenSQL)
	require.Len(t, report.Checks, 2)
	for _, check := range report.Checks {
		assert.True(t, check.Exists)
		assert.False(t, check.Empty)
	}
}

func TestPreflightMissingTableSuggestsAndRewrites(t *testing.T) {
	_, _, validate := preflightSession(
		[]any{"ORDERS_V", int64(5000)},
		[]any{"CUSTOMERS", int64(200)},
	)
	report, err := validate("SELECT * FROM orders")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Checks, 1)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "table SALES.PUBLIC.orders does not exist", report.Issues[0])

	check := report.Checks[0]
	assert.False(t, check.Exists)
	require.NotEmpty(t, check.Suggestions)
	assert.Equal(t, "ORDERS_V", check.Suggestions[0].Name)
	assert.Equal(t, 1.0, check.Suggestions[0].Score)
	assert.Equal(t, "SELECT * FROM ORDERS_V", report.RewrittenSQL)
}

func TestPreflightEmptyTableSuggestsPopulatedTwin(t *testing.T) {
	_, _, validate := preflightSession(
		[]any{"EVENTS", int64(0)},
		[]any{"EVENTS_RAW", int64(90000)},
	)
	report, err := validate("SELECT * FROM events")
	require.NoError(t, err)
	assert.False(t, report.Valid, "an empty table fails validation")
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "table SALES.PUBLIC.events exists but is empty", report.Issues[0])

	check := report.Checks[0]
	assert.True(t, check.Exists)
	assert.True(t, check.Empty)
	require.NotEmpty(t, check.Suggestions)
	assert.Equal(t, "EVENTS_RAW", check.Suggestions[0].Name)
	assert.Equal(t, "SELECT * FROM EVENTS_RAW", report.RewrittenSQL)
}

func TestPreflightWeakMatchDoesNotRewrite(t *testing.T) {
	_, _, validate := preflightSession(
		[]any{"ZX_METRICS_HIST", int64(10)},
	)
	report, err := validate("SELECT * FROM payments")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Empty(t, report.RewrittenSQL, "no candidate clears the rewrite threshold")
}

func TestPreflightSuggestionRanking(t *testing.T) {
	_, _, validate := preflightSession(
		[]any{"ORDERS_V", int64(100)},
		[]any{"ORDERS_ARCHIVE", int64(900)},
		[]any{"ORDE_LOG", int64(50)},
		[]any{"CUSTOMERS", int64(5)},
	)
	report, err := validate("SELECT * FROM orders")
	require.NoError(t, err)

	sugg := report.Checks[0].Suggestions
	require.GreaterOrEqual(t, len(sugg), 3)
	assert.Equal(t, "ORDERS_V", sugg[0].Name, "normalized exact match ranks first")
	assert.Equal(t, "ORDERS_ARCHIVE", sugg[1].Name, "substring match ranks second")
	assert.Equal(t, "ORDE_LOG", sugg[2].Name, "shared prefix ranks third")
	assert.True(t, sugg[0].Score > sugg[1].Score && sugg[1].Score > sugg[2].Score)
}

func TestPreflightSuggestionCap(t *testing.T) {
	tables := [][]any{}
	for _, n := range []string{"ORDERS_A", "ORDERS_B", "ORDERS_C", "ORDERS_D", "ORDERS_E", "ORDERS_F", "ORDERS_G"} {
		tables = append(tables, []any{n, int64(10)})
	}
	_, _, validate := preflightSession(tables...)
	report, err := validate("SELECT * FROM orders")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(report.Checks[0].Suggestions), 5)
}

func TestPreflightSchemaQueriedOncePerScope(t *testing.T) {
	_, conn, validate := preflightSession(
		[]any{"ORDERS", int64(10)},
		[]any{"CUSTOMERS", int64(10)},
	)
	_, err := validate("SELECT * FROM orders JOIN customers ON 1=1")
	require.NoError(t, err)
	assert.Equal(t, 1, conn.queryCount(), "both tables resolve against one catalog read")
}
