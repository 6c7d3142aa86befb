package domain

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the complete explorer configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Artifact locations
	Artifacts ArtifactsConfig `json:"artifacts"`

	// Component configurations
	Ledger   RepositoryConfig `json:"ledger"`
	Cache    CacheConfig      `json:"cache"`
	EventBus EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ArtifactsConfig holds the resolved filesystem locations.
type ArtifactsConfig struct {
	BaseDir       string `json:"baseDir"`
	EntitiesDir   string `json:"entitiesDir"`
	SummaryFile   string `json:"summaryFile"`
	SnapshotsFile string `json:"snapshotsFile"`
	ReportsFile   string `json:"reportsFile"`
	SettingsFile  string `json:"settingsFile"`

	// Watch refreshes caches when files under the artifacts directory change.
	Watch bool `json:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on a JSON ledger, an in-process cache and channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// ResolveArtifacts derives every artifact path from a base directory.
func ResolveArtifacts(baseDir string) ArtifactsConfig {
	artifactsDir := filepath.Join(baseDir, "artifacts")
	return ArtifactsConfig{
		BaseDir:       baseDir,
		EntitiesDir:   filepath.Join(artifactsDir, "entities"),
		SummaryFile:   filepath.Join(artifactsDir, "summary.json"),
		SnapshotsFile: filepath.Join(artifactsDir, "snapshots.json"),
		ReportsFile:   filepath.Join(baseDir, "reports.json"),
		SettingsFile:  filepath.Join(baseDir, "config", "app_settings.json"),
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:      TierCommunity,
		Artifacts: ResolveArtifacts("."),
		Ledger: RepositoryConfig{
			Driver:     "file",
			SQLitePath: "./explorer.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			PayloadTTL:   10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "explorer",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Ledger = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "explorer",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		PayloadTTL:     10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the configuration from the environment.
//
//	EXPLORER_TIER=pro         start from ProConfig
//	EXPLORER_BASE_DIR         artifact base directory (ignored if missing)
//	EXPLORER_PORT             HTTP port
//	EXPLORER_WATCH=true       refresh on artifact changes
//	EXPLORER_LEDGER           file, sqlite or postgres
//	EXPLORER_SQLITE_PATH      sqlite ledger location
//	EXPLORER_POSTGRES_*       HOST, PORT, USER, PASSWORD, DB, SSLMODE
//	EXPLORER_REDIS_ADDR       redis address
//	EXPLORER_NATS_URL         NATS url
//	EXPLORER_DEBUG=true       debug logging
func LoadConfig(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if getenv("EXPLORER_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	if dir := getenv("EXPLORER_BASE_DIR"); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			if _, err := os.Stat(abs); err == nil {
				watch := cfg.Artifacts.Watch
				cfg.Artifacts = ResolveArtifacts(abs)
				cfg.Artifacts.Watch = watch
			}
		}
	}
	if port, err := strconv.Atoi(getenv("EXPLORER_PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}
	if getenv("EXPLORER_WATCH") == "true" {
		cfg.Artifacts.Watch = true
	}
	if driver := getenv("EXPLORER_LEDGER"); driver != "" {
		cfg.Ledger.Driver = driver
	}
	if path := getenv("EXPLORER_SQLITE_PATH"); path != "" {
		cfg.Ledger.SQLitePath = path
	}
	if host := getenv("EXPLORER_POSTGRES_HOST"); host != "" {
		cfg.Ledger.PostgresHost = host
	}
	if port, err := strconv.Atoi(getenv("EXPLORER_POSTGRES_PORT")); err == nil && port > 0 {
		cfg.Ledger.PostgresPort = port
	}
	if user := getenv("EXPLORER_POSTGRES_USER"); user != "" {
		cfg.Ledger.PostgresUser = user
	}
	if password := getenv("EXPLORER_POSTGRES_PASSWORD"); password != "" {
		cfg.Ledger.PostgresPassword = password
	}
	if db := getenv("EXPLORER_POSTGRES_DB"); db != "" {
		cfg.Ledger.PostgresDB = db
	}
	if mode := getenv("EXPLORER_POSTGRES_SSLMODE"); mode != "" {
		cfg.Ledger.PostgresSSLMode = mode
	}
	if addr := getenv("EXPLORER_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if url := getenv("EXPLORER_NATS_URL"); url != "" {
		cfg.EventBus.NATSUrl = url
	}
	if getenv("EXPLORER_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return cfg
}
