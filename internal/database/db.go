package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// NormalizeDriver maps accepted driver spellings to a registered
// database/sql driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "mariadb":
		return DriverMySQL, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	case "duckdb":
		return DriverDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// Open connects to the detection database and verifies it answers a ping.
// DuckDB accepts an empty DSN for an in-memory database.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && driver != DriverDuckDB {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return db, nil
}

// Placeholder returns the n-th (1-based) bind parameter for driver.
func Placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
