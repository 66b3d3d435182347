package model

// Feedback is a user rating of a generated pivot or query, persisted in the
// warehouse itself.
type Feedback struct {
	FeedbackID      string `json:"feedback_id"`
	PivotID         string `json:"pivot_id"`
	Rating          *int   `json:"rating,omitempty"`
	Helpful         *bool  `json:"helpful,omitempty"`
	Comment         string `json:"comment,omitempty"`
	ContextDatabase string `json:"context_database,omitempty"`
	ContextSchema   string `json:"context_schema,omitempty"`
	ContextTable    string `json:"context_table,omitempty"`
	QueryID         string `json:"query_id,omitempty"`
	SQL             string `json:"sql,omitempty"`
	UserName        string `json:"user_name,omitempty"`
}

// FeedbackSummary aggregates feedback per pivot id.
type FeedbackSummary struct {
	PivotID        string   `json:"pivot_id"`
	TotalFeedback  int64    `json:"total_feedback"`
	AvgRating      *float64 `json:"avg_rating,omitempty"`
	HelpfulCount   int64    `json:"helpful_count"`
	LastFeedbackAt string   `json:"last_feedback_at,omitempty"`
}
