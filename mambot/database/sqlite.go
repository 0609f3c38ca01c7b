package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// NewSQLite opens a local SQLite store. Used for development deployments and
// by package tests with ":memory:".
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := path
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if path == ":memory:" {
		// A shared cache keeps the database alive across pooled connections.
		dsn = "file::memory:?cache=shared"
	}

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if memory {
		sqldb.SetMaxOpenConns(1)
	}
	if _, err := sqldb.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	return &DB{bunDB: bunDB}, nil
}
