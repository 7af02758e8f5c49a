package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/session-reconciler/internal/eventstore"
	"github.com/ignite/session-reconciler/internal/warehouse"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	EventStore eventstore.Config `yaml:"event_store"`
	Warehouse  warehouse.Config  `yaml:"warehouse"`
	Postgres   PostgresConfig    `yaml:"postgres"`
	Redis      RedisConfig       `yaml:"redis"`
	Reconcile  ReconcileConfig   `yaml:"reconcile"`
	Report     ReportConfig      `yaml:"report"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PostgresConfig holds run-history database settings.
type PostgresConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig holds cache and lock settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// ReconcileConfig holds reconciliation run settings.
type ReconcileConfig struct {
	IntervalMinutes int  `yaml:"interval_minutes"`
	WindowDays      int  `yaml:"window_days"`
	GapSeconds      int  `yaml:"gap_seconds"`
	RecencyDays     int  `yaml:"recency_days"`
	NumWorkers      int  `yaml:"num_workers"`
	WriteAudit      bool `yaml:"write_audit"`
	CacheTTLMinutes int  `yaml:"cache_ttl_minutes"`
}

// ReportConfig holds digest export settings.
type ReportConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
	Enabled  bool   `yaml:"enabled"`
}

// Interval returns the run interval as a duration.
func (c ReconcileConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Window returns the lookback window as a duration.
func (c ReconcileConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// Gap returns the session inactivity gap as a duration.
func (c ReconcileConfig) Gap() time.Duration {
	return time.Duration(c.GapSeconds) * time.Second
}

// Recency returns the carry-forward horizon as a duration.
func (c ReconcileConfig) Recency() time.Duration {
	return time.Duration(c.RecencyDays) * 24 * time.Hour
}

// CacheTTL returns the Redis report TTL as a duration.
func (c ReconcileConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.EventStore.Port == 0 {
		cfg.EventStore.Port = 9000
	}
	if cfg.EventStore.Database == "" {
		cfg.EventStore.Database = "tracking"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Reconcile.IntervalMinutes == 0 {
		cfg.Reconcile.IntervalMinutes = 60
	}
	if cfg.Reconcile.WindowDays == 0 {
		cfg.Reconcile.WindowDays = 7
	}
	if cfg.Reconcile.GapSeconds == 0 {
		cfg.Reconcile.GapSeconds = 1800
	}
	if cfg.Reconcile.RecencyDays == 0 {
		cfg.Reconcile.RecencyDays = 183
	}
	if cfg.Reconcile.CacheTTLMinutes == 0 {
		cfg.Reconcile.CacheTTLMinutes = 2 * cfg.Reconcile.IntervalMinutes
	}
	if cfg.Report.S3Region == "" {
		cfg.Report.S3Region = "us-west-2"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// ClickHouse overrides
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		cfg.EventStore.Host = v
		cfg.EventStore.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.EventStore.Port = port
		}
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.EventStore.Password = v
	}

	// Snowflake overrides
	if v := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); v != "" {
		cfg.Warehouse.ConnectionString = v
		cfg.Warehouse.Enabled = true
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
		cfg.Postgres.Enabled = true
	}

	// Redis overrides
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Report export overrides
	if v := os.Getenv("REPORT_S3_BUCKET"); v != "" {
		cfg.Report.S3Bucket = v
		cfg.Report.Enabled = true
	}
	if v := os.Getenv("REPORT_S3_REGION"); v != "" {
		cfg.Report.S3Region = v
	}

	// CORS override, comma-separated
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Server.AllowedOrigins = cfg.Server.AllowedOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, p)
			}
		}
	}

	return cfg, nil
}
