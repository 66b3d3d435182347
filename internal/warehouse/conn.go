package warehouse

import (
	"context"
	"fmt"

	"github.com/mdlh/query-server-go/internal/model"
)

// Conn is one exclusive connection to the analytic warehouse. A Conn is owned
// by exactly one session and must be closed when the session ends.
type Conn interface {
	// Query runs a statement and fetches at most maxRows rows, with values
	// coerced to JSON-safe scalars.
	Query(ctx context.Context, query string, maxRows int) (*Resultset, error)
	// Exec runs a statement and discards any result set.
	Exec(ctx context.Context, query string) error
	// LastQueryID returns the warehouse-native id of the most recent
	// statement, when the driver reported one.
	LastQueryID() string
	// CancelQuery asks the warehouse to cancel a running statement.
	CancelQuery(ctx context.Context, queryID string) error
	Close() error
}

// Resultset is the fetched outcome of one statement.
type Resultset struct {
	Columns   []model.ResultColumn
	Rows      [][]any
	Truncated bool
}

// Identity is the resolved identity of an authenticated connection.
type Identity struct {
	Account   string `json:"account"`
	User      string `json:"user"`
	Role      string `json:"role"`
	Warehouse string `json:"warehouse"`
	Database  string `json:"database"`
	Schema    string `json:"schema"`
}

// Scope derives the cache-isolation key for this identity. Two sessions with
// different privileges must never share cached catalog state.
func (id Identity) Scope() string {
	return fmt.Sprintf("%s:%s:%s:%s", id.Account, id.User, id.Role, id.Warehouse)
}

// AuthType selects how credentials are presented to the warehouse.
type AuthType string

const (
	AuthPassword AuthType = "password"
	AuthToken    AuthType = "token"
	AuthSSO      AuthType = "sso"
)

// Credentials carries everything needed to open a connection on behalf of a
// user. Exactly one of Password/Token is consulted depending on AuthType.
type Credentials struct {
	Account   string
	User      string
	AuthType  AuthType
	Password  string
	Token     string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}

// Dialer opens an authenticated warehouse connection and resolves the
// server-side identity. Injected so tests can substitute a fake warehouse.
type Dialer func(ctx context.Context, creds Credentials) (Conn, *Identity, error)
