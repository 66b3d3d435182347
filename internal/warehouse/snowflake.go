package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	sf "github.com/snowflakedb/gosnowflake"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/model"
	"github.com/mdlh/query-server-go/internal/sqltext"
)

const loginTimeout = 30 * time.Second

// OpenSnowflake dials Snowflake with the given credentials, probes the
// resolved identity and returns an exclusive single-connection handle.
// It is the production Dialer.
func OpenSnowflake(ctx context.Context, creds Credentials) (Conn, *Identity, error) {
	cfg := &sf.Config{
		Account:      creds.Account,
		User:         creds.User,
		Warehouse:    creds.Warehouse,
		Database:     creds.Database,
		Schema:       creds.Schema,
		Role:         creds.Role,
		LoginTimeout: loginTimeout,
	}
	switch creds.AuthType {
	case AuthPassword, "":
		cfg.Password = creds.Password
	case AuthToken:
		cfg.Authenticator = sf.AuthTypeOAuth
		cfg.Token = creds.Token
	case AuthSSO:
		cfg.Authenticator = sf.AuthTypeExternalBrowser
	default:
		return nil, nil, apperrors.InvalidInput("auth_type", fmt.Sprintf("unknown value %q", creds.AuthType))
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return nil, nil, apperrors.ConnectionFailed(err.Error())
	}

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, nil, apperrors.ConnectionFailed(err.Error())
	}
	// One session, one warehouse connection. USE statements change connection
	// state, so the pool must never hand out a second one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn := &snowflakeConn{db: db}
	identity, err := conn.probeIdentity(ctx)
	if err != nil {
		_ = db.Close()
		if IsUnavailable(err) {
			return nil, nil, apperrors.WarehouseUnavailable(err)
		}
		return nil, nil, apperrors.ConnectionFailed(err.Error())
	}
	log.Debug().Str("account", identity.Account).Str("user", identity.User).
		Str("role", identity.Role).Msg("warehouse connection established")
	return conn, identity, nil
}

type snowflakeConn struct {
	db *sqlx.DB

	mu          sync.Mutex
	lastQueryID string
}

func (c *snowflakeConn) probeIdentity(ctx context.Context) (*Identity, error) {
	row := c.db.QueryRowContext(ctx, `SELECT CURRENT_ACCOUNT(), CURRENT_USER(), CURRENT_ROLE(),
		CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA()`)
	var account, user, role, wh, db, schema sql.NullString
	if err := row.Scan(&account, &user, &role, &wh, &db, &schema); err != nil {
		return nil, err
	}
	return &Identity{
		Account:   account.String,
		User:      user.String,
		Role:      role.String,
		Warehouse: wh.String,
		Database:  db.String,
		Schema:    schema.String,
	}, nil
}

func (c *snowflakeConn) setLastQueryID(id string) {
	c.mu.Lock()
	c.lastQueryID = id
	c.mu.Unlock()
}

func (c *snowflakeConn) LastQueryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQueryID
}

func (c *snowflakeConn) Query(ctx context.Context, query string, maxRows int) (*Resultset, error) {
	idCh := make(chan string, 1)
	ctx = sf.WithQueryIDChan(ctx, idCh)

	rows, err := c.db.QueryContext(ctx, query)
	select {
	case id := <-idCh:
		c.setLastQueryID(id)
	default:
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]model.ResultColumn, len(types))
	for i, t := range types {
		cols[i] = model.ResultColumn{Name: t.Name(), Type: t.DatabaseTypeName()}
	}

	rs := &Resultset{Columns: cols, Rows: make([][]any, 0, 64)}
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if len(rs.Rows) >= maxRows {
			rs.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(dest))
		for i, v := range dest {
			row[i] = coerceValue(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (c *snowflakeConn) Exec(ctx context.Context, query string) error {
	idCh := make(chan string, 1)
	ctx = sf.WithQueryIDChan(ctx, idCh)
	_, err := c.db.ExecContext(ctx, query)
	select {
	case id := <-idCh:
		c.setLastQueryID(id)
	default:
	}
	return err
}

func (c *snowflakeConn) CancelQuery(ctx context.Context, queryID string) error {
	stmt := fmt.Sprintf("SELECT SYSTEM$CANCEL_QUERY('%s')", sqltext.EscapeStringLiteral(queryID))
	_, err := c.db.ExecContext(ctx, stmt)
	return err
}

func (c *snowflakeConn) Close() error {
	return c.db.Close()
}

// coerceValue maps driver values onto JSON-safe scalars.
func coerceValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return v
	}
}
