package demo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/detectql/detectql/internal/database"
	"github.com/detectql/detectql/internal/migrations"
)

func TestSeedSkipsPopulatedTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM detections")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	seeder := &Seeder{DB: db, Driver: "mysql"}
	written, err := seeder.Seed(context.Background(), SeedOptions{Rows: 10})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if written != 0 {
		t.Fatalf("written = %d", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSeedUsesPostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	generator := NewGenerator(1, []string{"cam-a"})
	generator.now = func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM detections")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectBegin()
	objectInsert := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO object (id, object_id, camera_id, init_time, end_time) VALUES ($1, $2, $3, $4, $5)"))
	detectionInsert := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO detections (id, object_id, attribute_id, description, accuracy, init_time, timestamp, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"))
	objectInsert.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	detectionInsert.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	detectionInsert.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	seeder := &Seeder{DB: db, Driver: "postgres", generator: generator}
	written, err := seeder.Seed(context.Background(), SeedOptions{Rows: 1, Days: 1})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSeedPopulatesDuckDB(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.DBConfig{Driver: database.DriverDuckDB, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := migrations.NewRunner(database.DriverDuckDB).Up(ctx, db, 0); err != nil {
		t.Fatalf("migrations Up() error = %v", err)
	}

	seeder := &Seeder{DB: db, Driver: database.DriverDuckDB}
	written, err := seeder.Seed(ctx, SeedOptions{Rows: 40, Days: 2, RandomSeed: 3})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if written != 40 {
		t.Fatalf("written = %d", written)
	}

	var colors int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections WHERE attribute_id = 2").Scan(&colors); err != nil {
		t.Fatalf("count colors: %v", err)
	}
	if colors != 20 {
		t.Fatalf("color detections = %d", colors)
	}

	again, err := seeder.Seed(ctx, SeedOptions{Rows: 40, Days: 2})
	if err != nil || again != 0 {
		t.Fatalf("second Seed() = %d, %v", again, err)
	}
}
