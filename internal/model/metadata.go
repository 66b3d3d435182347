package model

// Database is one catalog database visible to a session.
type Database struct {
	Name    string `json:"name"`
	Owner   string `json:"owner,omitempty"`
	Created string `json:"created,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Schema is one schema within a database.
type Schema struct {
	Name     string `json:"name"`
	Database string `json:"database"`
	Owner    string `json:"owner,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Table is a table or view within a schema. RowCount comes from
// INFORMATION_SCHEMA and may be nil for views.
type Table struct {
	Name     string `json:"name"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Kind     string `json:"kind"` // TABLE or VIEW
	Owner    string `json:"owner,omitempty"`
	RowCount *int64 `json:"row_count,omitempty"`
	Bytes    *int64 `json:"bytes,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Column is one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key"`
	UniqueKey  bool   `json:"unique_key"`
	Comment    string `json:"comment,omitempty"`
}

// Capabilities describes the warehouse endpoint a session is connected to.
type Capabilities struct {
	Version string `json:"version"`
	Region  string `json:"region,omitempty"`
	Account string `json:"account,omitempty"`
}
