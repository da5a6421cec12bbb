package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/detectql/detectql/internal/api"
	"github.com/detectql/detectql/internal/archive"
	"github.com/detectql/detectql/internal/assistant"
	"github.com/detectql/detectql/internal/auth"
	"github.com/detectql/detectql/internal/config"
	"github.com/detectql/detectql/internal/database"
	"github.com/detectql/detectql/internal/daterange"
	"github.com/detectql/detectql/internal/demo"
	"github.com/detectql/detectql/internal/filters"
	"github.com/detectql/detectql/internal/migrations"
	"github.com/detectql/detectql/internal/nl2sql"
	"github.com/detectql/detectql/internal/observability"
	"github.com/detectql/detectql/internal/query/sqlexec"
	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/schema/sqlschema"
	s3store "github.com/detectql/detectql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("detectql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	location, err := cfg.Pipeline.Location()
	if err != nil {
		logger.Error("invalid time zone", slog.Any("error", err))
		os.Exit(1)
	}

	driver, err := database.NormalizeDriver(cfg.Database.Driver)
	if err != nil {
		logger.Error("invalid database driver", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := database.Open(context.Background(), database.DBConfig{
		Driver:          driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open detection db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if cfg.Demo.SeedRows > 0 {
		if err := seedDemo(context.Background(), cfg, driver, db, logger); err != nil {
			logger.Error("failed to seed demo detections", slog.Any("error", err))
			os.Exit(1)
		}
	}

	schemaProvider := schema.NewCachedProvider(&sqlschema.Introspector{
		DB:         db,
		Dialect:    sqlschema.DialectForDriver(driver),
		SchemaName: cfg.Database.SchemaName,
		MainTables: cfg.Database.MainTables,
		SampleRows: cfg.Database.SampleRows,
		Logger:     logger,
	})

	completer, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		os.Exit(1)
	}

	dates := daterange.NewResolver(logger, location)
	dates.OnFallback = func(string) { observability.IncDateFallback() }
	normalizer := filters.NewNormalizer(logger, dates)
	normalizer.OnDroppedFilter = func(table, _ string) { observability.IncDroppedFilter(table) }

	pipeline := &assistant.Pipeline{
		Schema:      schemaProvider,
		Interpreter: &nl2sql.Interpreter{Completer: completer, MaxTokens: cfg.AI.MaxTokens},
		SQL:         &nl2sql.SQLGenerator{Completer: completer, Dialect: cfg.Pipeline.SQLDialect, RowLimit: cfg.Pipeline.SQLRowLimit},
		Engine:      sqlexec.NewEngine(db, cfg.Pipeline.ReadOnly),
		Narrator:    &nl2sql.Narrator{Completer: completer},
		Normalizer:  normalizer,
		Logger:      logger,
		Location:    location,
		RowLimit:    cfg.Pipeline.SQLRowLimit,
		PreviewRows: cfg.Pipeline.PreviewRows,
	}

	deps := api.Dependencies{
		Logger:           logger,
		Schema:           schemaProvider,
		Assistant:        pipeline,
		DependencyTimout: 2 * time.Second,
	}
	readiness := []api.ReadinessCheck{api.CheckDatabase(db)}

	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), cfg.Archive.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		exchanges := archive.New(objectStore, logger)
		pipeline.Recorder = exchanges
		deps.Exchanges = exchanges
		readiness = append(readiness, api.CheckObjectStore(objectStore))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("db_driver", driver),
			slog.String("model", completer.Model()),
			slog.Bool("archive", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// seedDemo creates the detection tables and fills them when they are empty.
// The test profile relies on it to serve an in-memory DuckDB.
func seedDemo(ctx context.Context, cfg config.Config, driver string, db *sql.DB, logger *slog.Logger) error {
	if cfg.Profile == config.ProfileProd {
		return fmt.Errorf("demo seeding is not allowed with the prod profile")
	}
	if _, err := migrations.NewRunner(driver).Up(ctx, db, 0); err != nil {
		return err
	}
	seeder := &demo.Seeder{DB: db, Driver: driver, Logger: logger}
	_, err := seeder.Seed(ctx, demo.SeedOptions{
		Rows:       cfg.Demo.SeedRows,
		Days:       cfg.Demo.Days,
		RandomSeed: int64(cfg.Demo.RandomSeed),
	})
	return err
}
