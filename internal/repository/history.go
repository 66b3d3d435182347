package repository

import (
	"context"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mdlh/query-server-go/internal/model"
)

type QueryHistoryRepository interface {
	Add(ctx context.Context, rec model.QueryHistoryRecord) error
	Find(ctx context.Context, limit, offset int, status string) ([]model.QueryHistoryRecord, error)
	Count(ctx context.Context, status string) (int, error)
	Clear(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type queryHistoryRepo struct {
	db *sqlx.DB
}

func NewQueryHistoryRepository(db *sqlx.DB) QueryHistoryRepository {
	return &queryHistoryRepo{db: db}
}

func (r *queryHistoryRepo) Add(ctx context.Context, rec model.QueryHistoryRecord) error {
	rec.SQL = RedactSQL(rec.SQL)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO query_history (
			query_id, sql_text, database_name, schema_name, warehouse_name,
			status, row_count, error_message, started_at, completed_at, duration_ms
		) VALUES (
			:query_id, :sql_text, :database_name, :schema_name, :warehouse_name,
			:status, :row_count, :error_message, :started_at, :completed_at, :duration_ms
		)
	`, rec)
	return err
}

func (r *queryHistoryRepo) Find(ctx context.Context, limit, offset int, status string) ([]model.QueryHistoryRecord, error) {
	recs := []model.QueryHistoryRecord{}
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &recs, `
			SELECT * FROM query_history
			WHERE status = $1
			ORDER BY started_at DESC
			LIMIT $2 OFFSET $3
		`, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &recs, `
			SELECT * FROM query_history
			ORDER BY started_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	return recs, err
}

func (r *queryHistoryRepo) Count(ctx context.Context, status string) (int, error) {
	var count int
	var err error
	if status != "" {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM query_history WHERE status = $1`, status)
	} else {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM query_history`)
	}
	return count, err
}

func (r *queryHistoryRepo) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_history`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *queryHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// stringLiteral matches a single-quoted SQL literal, doubled quotes included.
var stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

// RedactSQL replaces every string literal so user data never lands in the
// history table.
func RedactSQL(sql string) string {
	return stringLiteral.ReplaceAllString(sql, "'***'")
}
