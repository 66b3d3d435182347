package model

import "time"

// QueryStatus is the lifecycle state of a submitted query.
type QueryStatus string

const (
	QueryStatusPending   QueryStatus = "PENDING"
	QueryStatusRunning   QueryStatus = "RUNNING"
	QueryStatusSuccess   QueryStatus = "SUCCESS"
	QueryStatusFailed    QueryStatus = "FAILED"
	QueryStatusCancelled QueryStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s QueryStatus) Terminal() bool {
	switch s {
	case QueryStatusSuccess, QueryStatusFailed, QueryStatusCancelled:
		return true
	}
	return false
}

// ValidQueryStatus reports whether s names a known status.
func ValidQueryStatus(s string) bool {
	switch QueryStatus(s) {
	case QueryStatusPending, QueryStatusRunning, QueryStatusSuccess,
		QueryStatusFailed, QueryStatusCancelled:
		return true
	}
	return false
}

// ResultColumn describes one column of a result set.
type ResultColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds the outcome of one SQL execution, owned by the session
// that submitted it. Mutation is guarded by the owning session's lock.
type QueryResult struct {
	QueryID       string         `json:"query_id"`
	SQL           string         `json:"-"`
	Status        QueryStatus    `json:"status"`
	Columns       []ResultColumn `json:"columns,omitempty"`
	Rows          [][]any        `json:"-"`
	RowCount      int            `json:"row_count"`
	Truncated     bool           `json:"truncated,omitempty"`
	FromCache     bool           `json:"from_cache,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	NativeQueryID string         `json:"-"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// ElapsedMS returns the execution time in milliseconds, or the time since
// start when the query has not completed.
func (r *QueryResult) ElapsedMS() int64 {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	}
	return time.Since(r.StartedAt).Milliseconds()
}

// ResultPage is one slice of a stored row matrix.
type ResultPage struct {
	QueryID   string         `json:"query_id"`
	Columns   []ResultColumn `json:"columns"`
	Rows      [][]any        `json:"rows"`
	TotalRows int            `json:"total_rows"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	HasMore   bool           `json:"has_more"`
}
