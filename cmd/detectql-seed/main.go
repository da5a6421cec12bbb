package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/detectql/detectql/internal/config"
	"github.com/detectql/detectql/internal/database"
	"github.com/detectql/detectql/internal/demo"
	"github.com/detectql/detectql/internal/migrations"
	"github.com/detectql/detectql/internal/observability"
)

// detectql-seed creates the detection tables on a local database and fills
// them with synthetic vehicles. It refuses to run against the prod profile.
func main() {
	direction := flag.String("direction", "up", "migration direction: up|down")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	rows := flag.Int("rows", -1, "detection rows to seed after migrating up; -1 uses DETECTQL_DEMO_SEED_ROWS")
	flag.Parse()

	cfg, err := config.LoadFromEnv("detectql-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Profile == config.ProfileProd {
		fmt.Fprintln(os.Stderr, "detectql-seed does not run with the prod profile")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	driver, err := database.NormalizeDriver(cfg.Database.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database driver error: %v\n", err)
		os.Exit(1)
	}
	db, err := database.Open(ctx, database.DBConfig{Driver: driver, DSN: cfg.Database.DSN, MaxOpenConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner(driver)
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
		return
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}

	seedRows := cfg.Demo.SeedRows
	if *rows >= 0 {
		seedRows = *rows
	}
	seeder := &demo.Seeder{DB: db, Driver: driver, Logger: logger}
	written, err := seeder.Seed(ctx, demo.SeedOptions{
		Rows:       seedRows,
		Days:       cfg.Demo.Days,
		RandomSeed: int64(cfg.Demo.RandomSeed),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d detection row(s)\n", written)
}
