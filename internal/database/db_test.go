package database

import (
	"context"
	"testing"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{Driver: "mysql"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{
		"":           DriverMySQL,
		"MariaDB":    DriverMySQL,
		"postgresql": DriverPostgres,
		"pgx":        DriverPostgres,
		" duckdb ":   DriverDuckDB,
	}
	for input, want := range cases {
		got, err := NormalizeDriver(input)
		if err != nil {
			t.Fatalf("NormalizeDriver(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("NormalizeDriver(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestOpenInMemoryDuckDB(t *testing.T) {
	db, err := Open(context.Background(), DBConfig{Driver: "duckdb", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	var answer int
	if err := db.QueryRowContext(context.Background(), "SELECT 42").Scan(&answer); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if answer != 42 {
		t.Fatalf("answer = %d", answer)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder(DriverPostgres, 2); got != "$2" {
		t.Fatalf("Placeholder(pgx) = %q", got)
	}
	if got := Placeholder(DriverMySQL, 2); got != "?" {
		t.Fatalf("Placeholder(mysql) = %q", got)
	}
	if got := Placeholder(DriverDuckDB, 1); got != "?" {
		t.Fatalf("Placeholder(duckdb) = %q", got)
	}
}
