package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestSubmitFeedbackValidation(t *testing.T) {
	svc := NewFeedbackService("", "")
	sess := newTestSession(&fakeConn{})

	t.Run("missing pivot id", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), sess, model.Feedback{Rating: intPtr(4)})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("rating out of range", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), sess, model.Feedback{PivotID: "p1", Rating: intPtr(9)})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("no content at all", func(t *testing.T) {
		_, err := svc.Submit(context.Background(), sess, model.Feedback{PivotID: "p1"})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestSubmitFeedback(t *testing.T) {
	conn := &fakeConn{}
	svc := NewFeedbackService("", "")
	sess := newTestSession(conn)

	fb, err := svc.Submit(context.Background(), sess, model.Feedback{
		PivotID: "pivot-1",
		Rating:  intPtr(5),
		Helpful: boolPtr(true),
		Comment: "it's great",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fb.FeedbackID)
	assert.Equal(t, "alice", fb.UserName)

	require.Len(t, conn.execs, 2, "first submit creates the table then inserts")
	assert.Contains(t, conn.execs[0], "CREATE TABLE IF NOT EXISTS SALES.PUBLIC.PIVOT_FEEDBACK")
	assert.Contains(t, conn.execs[1], "INSERT INTO SALES.PUBLIC.PIVOT_FEEDBACK")
	assert.Contains(t, conn.execs[1], "'it''s great'", "literals are escaped")
	assert.Contains(t, conn.execs[1], "TRUE")
}

func TestSubmitFeedbackConfiguredTarget(t *testing.T) {
	conn := &fakeConn{}
	svc := NewFeedbackService("FIELD_METADATA", "OPS")
	sess := newTestSession(conn)

	_, err := svc.Submit(context.Background(), sess, model.Feedback{PivotID: "p", Rating: intPtr(4)})
	require.NoError(t, err)
	require.Len(t, conn.execs, 2)
	assert.Contains(t, conn.execs[1], "INSERT INTO FIELD_METADATA.OPS.PIVOT_FEEDBACK")
}

func TestSubmitFeedbackEnsuresTableOnce(t *testing.T) {
	conn := &fakeConn{}
	svc := NewFeedbackService("", "")
	sess := newTestSession(conn)

	for i := 0; i < 2; i++ {
		_, err := svc.Submit(context.Background(), sess, model.Feedback{PivotID: "p", Rating: intPtr(3)})
		require.NoError(t, err)
	}
	creates := 0
	for _, q := range conn.execs {
		if strings.Contains(q, "CREATE TABLE") {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}

func TestFeedbackSummary(t *testing.T) {
	conn := &fakeConn{}
	conn.queryFn = func(query string, _ int) (*warehouse.Resultset, error) {
		assert.Contains(t, query, "GROUP BY pivot_id")
		assert.Contains(t, query, "WHERE pivot_id = 'pivot-1'")
		return &warehouse.Resultset{
			Columns: []model.ResultColumn{
				{Name: "PIVOT_ID", Type: "TEXT"},
				{Name: "TOTAL_FEEDBACK", Type: "NUMBER"},
				{Name: "AVG_RATING", Type: "NUMBER"},
				{Name: "HELPFUL_COUNT", Type: "NUMBER"},
				{Name: "LAST_FEEDBACK_AT", Type: "TIMESTAMP"},
			},
			Rows: [][]any{
				{"pivot-1", int64(7), 4.3, int64(5), "2026-08-30T10:00:00Z"},
			},
		}, nil
	}
	svc := NewFeedbackService("", "")
	sess := newTestSession(conn)

	summaries, err := svc.Summary(context.Background(), sess, "pivot-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(7), summaries[0].TotalFeedback)
	require.NotNil(t, summaries[0].AvgRating)
	assert.InDelta(t, 4.3, *summaries[0].AvgRating, 0.001)
	assert.Equal(t, int64(5), summaries[0].HelpfulCount)
}
