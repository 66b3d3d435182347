package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/sqltext"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

const (
	feedbackTable         = "PIVOT_FEEDBACK"
	defaultFeedbackDB     = "FIELD_METADATA"
	defaultFeedbackSchema = "PUBLIC"
)

// FeedbackService stores pivot ratings in the warehouse itself. The target
// database and schema come from config when set, else from the session's
// current context. The backing table is created on first use per target.
type FeedbackService struct {
	database string
	schema   string

	mu      sync.Mutex
	ensured map[string]bool
}

func NewFeedbackService(database, schema string) *FeedbackService {
	return &FeedbackService{database: database, schema: schema, ensured: make(map[string]bool)}
}

// target resolves the fully qualified feedback table name for a session.
func (s *FeedbackService) target(sess *session.Session) (string, error) {
	identity := sess.Identity()
	db := firstNonEmpty(s.database, identity.Database, defaultFeedbackDB)
	schema := firstNonEmpty(s.schema, identity.Schema, defaultFeedbackSchema)
	qdb, err := sqltext.QuoteIdentifier(db)
	if err != nil {
		return "", err
	}
	qschema, err := sqltext.QuoteIdentifier(schema)
	if err != nil {
		return "", err
	}
	return qdb + "." + qschema + "." + feedbackTable, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Submit validates and persists one feedback record.
func (s *FeedbackService) Submit(ctx context.Context, sess *session.Session, fb model.Feedback) (model.Feedback, error) {
	if fb.PivotID == "" {
		return model.Feedback{}, apperrors.MissingRequired("pivot_id")
	}
	if fb.Rating != nil && (*fb.Rating < 1 || *fb.Rating > 5) {
		return model.Feedback{}, apperrors.InvalidInput("rating", "must be between 1 and 5")
	}
	if fb.Rating == nil && fb.Helpful == nil && strings.TrimSpace(fb.Comment) == "" {
		return model.Feedback{}, apperrors.ValidationError("feedback must carry a rating, a helpful flag or a comment")
	}
	table, err := s.target(sess)
	if err != nil {
		return model.Feedback{}, err
	}
	if err := s.ensureTable(ctx, sess, table); err != nil {
		return model.Feedback{}, err
	}

	fb.FeedbackID = uuid.NewString()
	fb.UserName = sess.Identity().User
	insert := fmt.Sprintf(`
		INSERT INTO %s (
			feedback_id, pivot_id, rating, helpful, comment,
			context_database, context_schema, context_table,
			query_id, sql_text, user_name, created_at
		) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, CURRENT_TIMESTAMP())
	`, table,
		literal(fb.FeedbackID), literal(fb.PivotID),
		intLiteral(fb.Rating), boolLiteral(fb.Helpful), literal(fb.Comment),
		literal(fb.ContextDatabase), literal(fb.ContextSchema), literal(fb.ContextTable),
		literal(fb.QueryID), literal(fb.SQL), literal(fb.UserName))

	if err := sess.Conn().Exec(ctx, insert); err != nil {
		if warehouse.IsUnavailable(err) {
			return model.Feedback{}, apperrors.WarehouseUnavailable(err)
		}
		return model.Feedback{}, apperrors.QueryFailed(err.Error())
	}
	log.Info().Str("pivotId", fb.PivotID).Str("feedbackId", fb.FeedbackID).Msg("feedback recorded")
	return fb, nil
}

// Summary aggregates feedback per pivot. An empty pivotID summarizes all.
func (s *FeedbackService) Summary(ctx context.Context, sess *session.Session, pivotID string) ([]model.FeedbackSummary, error) {
	table, err := s.target(sess)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTable(ctx, sess, table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT pivot_id,
			COUNT(*) AS total_feedback,
			AVG(rating) AS avg_rating,
			COUNT_IF(helpful = TRUE) AS helpful_count,
			MAX(created_at) AS last_feedback_at
		FROM %s
	`, table)
	if pivotID != "" {
		query += fmt.Sprintf(" WHERE pivot_id = %s", literal(pivotID))
	}
	query += " GROUP BY pivot_id ORDER BY last_feedback_at DESC"

	rs, err := sess.Conn().Query(ctx, query, 1000)
	if err != nil {
		if warehouse.IsUnavailable(err) {
			return nil, apperrors.WarehouseUnavailable(err)
		}
		return nil, apperrors.QueryFailed(err.Error())
	}
	pivotIdx := colIndex(rs, "pivot_id")
	totalIdx := colIndex(rs, "total_feedback")
	avgIdx := colIndex(rs, "avg_rating")
	helpfulIdx := colIndex(rs, "helpful_count")
	lastIdx := colIndex(rs, "last_feedback_at")
	summaries := make([]model.FeedbackSummary, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		summary := model.FeedbackSummary{
			PivotID:        cellString(row, pivotIdx),
			TotalFeedback:  rowsOf(cellInt64Ptr(row, totalIdx)),
			HelpfulCount:   rowsOf(cellInt64Ptr(row, helpfulIdx)),
			LastFeedbackAt: cellString(row, lastIdx),
		}
		if avg := cellFloat64Ptr(row, avgIdx); avg != nil {
			summary.AvgRating = avg
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *FeedbackService) ensureTable(ctx context.Context, sess *session.Session, table string) error {
	s.mu.Lock()
	done := s.ensured[table]
	s.mu.Unlock()
	if done {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			feedback_id      VARCHAR NOT NULL,
			pivot_id         VARCHAR NOT NULL,
			rating           INTEGER,
			helpful          BOOLEAN,
			comment          VARCHAR,
			context_database VARCHAR,
			context_schema   VARCHAR,
			context_table    VARCHAR,
			query_id         VARCHAR,
			sql_text         VARCHAR,
			user_name        VARCHAR,
			created_at       TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP()
		)
	`, table)
	if err := sess.Conn().Exec(ctx, ddl); err != nil {
		if warehouse.IsUnavailable(err) {
			return apperrors.WarehouseUnavailable(err)
		}
		return apperrors.QueryFailed(err.Error())
	}
	s.mu.Lock()
	s.ensured[table] = true
	s.mu.Unlock()
	return nil
}

func literal(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + sqltext.EscapeStringLiteral(s) + "'"
}

func intLiteral(p *int) string {
	if p == nil {
		return "NULL"
	}
	return strconv.Itoa(*p)
}

func boolLiteral(p *bool) string {
	if p == nil {
		return "NULL"
	}
	if *p {
		return "TRUE"
	}
	return "FALSE"
}

func cellFloat64Ptr(row []any, idx int) *float64 {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return nil
	}
	switch v := row[idx].(type) {
	case float64:
		f := v
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
