package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/duelhall/mambot/mambot/database/models"
	"github.com/uptrace/bun"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
	// Path switches the store to a local SQLite file when set; the original
	// deployment ran on SQLite and it remains supported for development.
	Path string `toml:"path"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

// New connects to Postgres described by cfg, or to a local SQLite file when
// cfg.Path is set.
func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	if cfg.Path != "" {
		return NewSQLite(ctx, cfg.Path)
	}

	// Retry the raw dial first so a slow-starting database server produces a
	// clear error instead of a pool timeout.
	var conn net.Conn
	var err error
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(cfg)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func newBunDB(cfg DBConfig) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Ping(ctx context.Context) error {
	if db.pool != nil {
		return db.pool.Ping(ctx)
	}
	return db.bunDB.PingContext(ctx)
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}

// InitializeSchema creates all required tables. Table definitions live on the
// bun models, so the same call works for both dialects.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Account)(nil),
		(*models.Balance)(nil),
		(*models.Printing)(nil),
		(*models.CardCopy)(nil),
		(*models.WishlistEntry)(nil),
		(*models.Trade)(nil),
		(*models.ConversionOverride)(nil),
		(*models.DailySale)(nil),
		(*models.RolloverState)(nil),
		(*models.RolloverJobRun)(nil),
		(*models.RolloverGrant)(nil),
		(*models.RunningTotal)(nil),
		(*models.QuestProgress)(nil),
		(*models.LedgerEntry)(nil),
		(*models.MatchResult)(nil),
		(*models.UserStats)(nil),
	}

	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   interface{}
		columns []string
	}{
		{"idx_trades_status", (*models.Trade)(nil), []string{"status"}},
		{"idx_trades_initiator", (*models.Trade)(nil), []string{"initiator_id"}},
		{"idx_trades_counterparty", (*models.Trade)(nil), []string{"counterparty_id"}},
		{"idx_printings_card", (*models.Printing)(nil), []string{"name", "set_name"}},
	}
	for _, idx := range indexes {
		if _, err := db.bunDB.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	slog.Info("Database schema initialized",
		slog.String("type", "db"),
		slog.Int("tables", len(tables)))
	return nil
}
