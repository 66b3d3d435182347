package model

import "time"

// QueryHistoryRecord is one appended execution record. SQL is stored with
// string literals redacted.
type QueryHistoryRecord struct {
	QueryID      string      `db:"query_id" json:"query_id"`
	SQL          string      `db:"sql_text" json:"sql"`
	Database     string      `db:"database_name" json:"database,omitempty"`
	Schema       string      `db:"schema_name" json:"schema,omitempty"`
	Warehouse    string      `db:"warehouse_name" json:"warehouse,omitempty"`
	Status       QueryStatus `db:"status" json:"status"`
	RowCount     *int64      `db:"row_count" json:"row_count,omitempty"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time   `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	DurationMS   *int64      `db:"duration_ms" json:"duration_ms,omitempty"`
}
