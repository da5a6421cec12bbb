package demo

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/detectql/detectql/internal/database"
)

type SeedOptions struct {
	// Rows is the number of detection rows to insert; every vehicle adds a
	// plate and a color row.
	Rows       int
	Days       int
	RandomSeed int64
	Cameras    []string
}

type Seeder struct {
	DB     *sql.DB
	Driver string
	Logger *slog.Logger

	generator *Generator
}

// Seed inserts synthetic vehicles when the detections table is empty and
// reports how many detection rows it wrote. A table that already has rows is
// left untouched.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (int, error) {
	if opts.Rows <= 0 {
		return 0, nil
	}
	if opts.Days <= 0 {
		opts.Days = 7
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var existing int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections").Scan(&existing); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	if existing > 0 {
		logger.Info("detections already present, skipping demo seed", slog.Int64("rows", existing))
		return 0, nil
	}

	generator := s.generator
	if generator == nil {
		generator = NewGenerator(opts.RandomSeed, opts.Cameras)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertObject, err := tx.PrepareContext(ctx, s.insertSQL("object", "id", "object_id", "camera_id", "init_time", "end_time"))
	if err != nil {
		return 0, fmt.Errorf("prepare object insert: %w", err)
	}
	defer func() { _ = insertObject.Close() }()
	insertDetection, err := tx.PrepareContext(ctx, s.insertSQL("detections", "id", "object_id", "attribute_id", "description", "accuracy", "init_time", "timestamp", "created_at"))
	if err != nil {
		return 0, fmt.Errorf("prepare detection insert: %w", err)
	}
	defer func() { _ = insertDetection.Close() }()

	written := 0
	for written < opts.Rows {
		object, detections := generator.NextVehicle(opts.Days)
		if _, err := insertObject.ExecContext(ctx, object.ID, object.ObjectID, object.CameraID, object.InitTime, object.EndTime); err != nil {
			return 0, fmt.Errorf("insert object %d: %w", object.ID, err)
		}
		for _, d := range detections {
			if _, err := insertDetection.ExecContext(ctx, d.ID, d.ObjectID, d.AttributeID, d.Description, d.Accuracy, d.InitTime, d.Timestamp, d.CreatedAt); err != nil {
				return 0, fmt.Errorf("insert detection %d: %w", d.ID, err)
			}
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit demo seed: %w", err)
	}

	logger.Info("seeded demo detections", slog.Int("rows", written), slog.Int("days", opts.Days))
	return written, nil
}

func (s *Seeder) insertSQL(table string, columns ...string) string {
	driver, err := database.NormalizeDriver(s.Driver)
	if err != nil {
		driver = s.Driver
	}
	binds := make([]string, len(columns))
	for i := range columns {
		binds[i] = database.Placeholder(driver, i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(binds, ", "))
}
