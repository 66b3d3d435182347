package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/mdlh/query-server-go/internal/config"
)

type DB struct {
	*sqlx.DB
}

func Connect(databaseURL string) (*DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate creates the history schema when it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS query_history (
			id            BIGSERIAL PRIMARY KEY,
			query_id      TEXT NOT NULL,
			sql_text      TEXT NOT NULL,
			database_name TEXT NOT NULL DEFAULT '',
			schema_name   TEXT NOT NULL DEFAULT '',
			warehouse_name TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			row_count     BIGINT,
			error_message TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ NOT NULL,
			completed_at  TIMESTAMPTZ,
			duration_ms   BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_query_history_started_at ON query_history (started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_query_history_status ON query_history (status);
	`)
	return err
}
