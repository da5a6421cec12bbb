package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

// DefaultEnvFile is read by LoadFromEnv when present. Variables already set in
// the process environment win over the file.
const DefaultEnvFile = ".env"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Archive       ArchiveConfig
	Demo          DemoConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	// MainTables restricts introspection to these tables when non-empty.
	MainTables []string
	SampleRows int
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxTokens   int
}

type PipelineConfig struct {
	TimeZone    string
	SQLDialect  string
	SQLRowLimit int
	PreviewRows int
	ReadOnly    bool
}

type ArchiveConfig struct {
	Enabled     bool
	ObjectStore ObjectStoreConfig
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// DemoConfig seeds synthetic detections at startup. SeedRows 0 disables it.
type DemoConfig struct {
	SeedRows   int
	Days       int
	RandomSeed int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// Location resolves Pipeline.TimeZone, falling back to UTC when it is empty.
func (c PipelineConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.TimeZone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func LoadFromEnv(serviceName string) (Config, error) {
	if err := loadEnvFile(DefaultEnvFile); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DETECTQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DETECTQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DETECTQL_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_DB_DRIVER", &cfg.Database.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_DB_DSN", &cfg.Database.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_DB_SCHEMA", &cfg.Database.SchemaName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "DETECTQL_DB_MAIN_TABLES", &cfg.Database.MainTables); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DB_SAMPLE_ROWS", &cfg.Database.SampleRows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "DETECTQL_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DETECTQL_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_TIME_ZONE", &cfg.Pipeline.TimeZone); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_SQL_DIALECT", &cfg.Pipeline.SQLDialect); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_SQL_ROW_LIMIT", &cfg.Pipeline.SQLRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_PREVIEW_ROWS", &cfg.Pipeline.PreviewRows); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_READ_ONLY", &cfg.Pipeline.ReadOnly); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_ENDPOINT", &cfg.Archive.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_REGION", &cfg.Archive.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_BUCKET", &cfg.Archive.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_ACCESS_KEY", &cfg.Archive.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_SECRET_KEY", &cfg.Archive.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_OBJECTSTORE_USE_SSL", &cfg.Archive.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_OBJECTSTORE_PREFIX", &cfg.Archive.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.Archive.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DEMO_SEED_ROWS", &cfg.Demo.SeedRows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DEMO_DAYS", &cfg.Demo.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DETECTQL_DEMO_RANDOM_SEED", &cfg.Demo.RandomSeed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DETECTQL_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DETECTQL_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DETECTQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Pipeline.SQLRowLimit <= 0 {
		return Config{}, fmt.Errorf("invalid DETECTQL_SQL_ROW_LIMIT: must be positive")
	}
	if _, err := cfg.Pipeline.Location(); err != nil {
		return Config{}, fmt.Errorf("invalid DETECTQL_TIME_ZONE: %w", err)
	}
	if cfg.Demo.SeedRows < 0 || cfg.Demo.Days <= 0 {
		return Config{}, fmt.Errorf("invalid demo seed settings: rows must not be negative and days must be positive")
	}
	if cfg.Archive.Enabled && cfg.Archive.ObjectStore.Bucket == "" {
		return Config{}, fmt.Errorf("archive bucket is required when archive is enabled")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "detectql-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			DSN:             "root:root@tcp(localhost:3306)/detections?parseTime=false",
			SchemaName:      "detections",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			SampleRows:      3,
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-3.5-turbo",
			Temperature: 0,
			Timeout:     30 * time.Second,
			MaxTokens:   1000,
		},
		Pipeline: PipelineConfig{
			TimeZone:    "UTC",
			SQLDialect:  "MySQL",
			SQLRowLimit: 25,
			PreviewRows: 15,
			ReadOnly:    true,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			ObjectStore: ObjectStoreConfig{
				Endpoint:         "localhost:9000",
				Region:           "us-east-1",
				Bucket:           "detectql",
				AccessKeyID:      "minio",
				SecretAccessKey:  "miniostorage",
				UseSSL:           false,
				Prefix:           "exchanges",
				AutoCreateBucket: true,
			},
		},
		Demo: DemoConfig{
			SeedRows:   0,
			Days:       7,
			RandomSeed: 42,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.Database.Driver = "duckdb"
		cfg.Database.DSN = ""
		cfg.Database.SchemaName = "main"
		cfg.Database.MainTables = []string{"detections", "object"}
		cfg.Pipeline.SQLDialect = "DuckDB"
		cfg.Demo.SeedRows = 500
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Archive.ObjectStore.UseSSL = true
		cfg.Archive.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList reads a comma separated list, dropping blank entries.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
