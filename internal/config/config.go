// Package config handles application configuration loading and validation
// from environment variables and an optional YAML overlay, providing a
// type-safe configuration structure for a coordinator deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the stream/group identity, pool sizing, timeouts, and
// Redis connection settings a coordinator needs, plus the ambient
// settings (logging, admin API, audit trail) this deployment adds.
type Config struct {
	// Stream/group identity
	Stream string // Redis stream key name
	Group  string // This process's group name

	// Redis connection
	RedisAddr     string // host:port
	RedisURL      string // full redis:// URL, takes precedence over Addr if set
	RedisPassword string
	RedisDB       int

	// Connection pool sizing
	PoolSize    int // send-side connection budget
	MaxPoolSize int // read from MAX_POOL_SIZE but not passed on; the coordinator always derives its pool size from the pool sizes

	// Ledger
	LedgerEntryTimeout    time.Duration
	LedgerCleanupInterval time.Duration

	// Consumer (worker) pool
	ConsumerPoolSize         int
	ConsumerExecutionInterval time.Duration

	// Dispatcher pool
	DispatcherPoolSize         int
	DispatcherExecutionInterval time.Duration
	ReclaimMinIdle              time.Duration
	PublishRejectOnNoWorkers    bool

	// Availability
	AvailabilityTTL time.Duration

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// External log sink: ships log lines to a collector endpoint in
	// addition to the local file/stdout core.
	ExternalLogEnabled        bool
	ExternalLogEndpoint       string
	ExternalLogBufferSize     int
	ExternalLogBatchSize      int
	ExternalLogFlushInterval  time.Duration
	ExternalLogRequestTimeout time.Duration
	ExternalLogRetryInterval  time.Duration
	ExternalLogMaxRetries     int
	ExternalLogFallbackLocal  bool

	// Admin API
	AdminListenAddr string
	ManagementToken string
	AdminEnabled    bool

	// Audit trail
	AuditTrailEnabled bool
	AuditDatabasePath string
}

// New builds a Config from environment variables, applying
// DefaultConfig's defaults where a variable is unset.
func New() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Stream = getEnvString("REDIS_IPC_STREAM", cfg.Stream)
	cfg.Group = getEnvString("REDIS_IPC_GROUP", cfg.Group)

	cfg.RedisAddr = getEnvString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisURL = getEnvString("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.PoolSize = getEnvInt("POOL_SIZE", cfg.PoolSize)
	cfg.MaxPoolSize = getEnvInt("MAX_POOL_SIZE", cfg.MaxPoolSize)

	cfg.LedgerEntryTimeout = getEnvDuration("LEDGER_ENTRY_TIMEOUT", cfg.LedgerEntryTimeout)
	cfg.LedgerCleanupInterval = getEnvDuration("LEDGER_CLEANUP_INTERVAL", cfg.LedgerCleanupInterval)

	cfg.ConsumerPoolSize = getEnvInt("CONSUMER_POOL_SIZE", cfg.ConsumerPoolSize)
	cfg.ConsumerExecutionInterval = getEnvDuration("CONSUMER_EXECUTION_INTERVAL", cfg.ConsumerExecutionInterval)

	cfg.DispatcherPoolSize = getEnvInt("DISPATCHER_POOL_SIZE", cfg.DispatcherPoolSize)
	cfg.DispatcherExecutionInterval = getEnvDuration("DISPATCHER_EXECUTION_INTERVAL", cfg.DispatcherExecutionInterval)
	cfg.ReclaimMinIdle = getEnvDuration("DISPATCHER_RECLAIM_MIN_IDLE", cfg.ReclaimMinIdle)
	cfg.PublishRejectOnNoWorkers = getEnvBool("DISPATCHER_PUBLISH_REJECT_ON_NO_WORKERS", cfg.PublishRejectOnNoWorkers)

	cfg.AvailabilityTTL = getEnvDuration("AVAILABILITY_TTL", cfg.AvailabilityTTL)

	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnvString("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups)

	cfg.ExternalLogEnabled = getEnvBool("EXTERNAL_LOG_ENABLED", cfg.ExternalLogEnabled)
	cfg.ExternalLogEndpoint = getEnvString("EXTERNAL_LOG_ENDPOINT", cfg.ExternalLogEndpoint)
	cfg.ExternalLogBufferSize = getEnvInt("EXTERNAL_LOG_BUFFER_SIZE", cfg.ExternalLogBufferSize)
	cfg.ExternalLogBatchSize = getEnvInt("EXTERNAL_LOG_BATCH_SIZE", cfg.ExternalLogBatchSize)
	cfg.ExternalLogFlushInterval = getEnvDuration("EXTERNAL_LOG_FLUSH_INTERVAL", cfg.ExternalLogFlushInterval)
	cfg.ExternalLogRequestTimeout = getEnvDuration("EXTERNAL_LOG_REQUEST_TIMEOUT", cfg.ExternalLogRequestTimeout)
	cfg.ExternalLogRetryInterval = getEnvDuration("EXTERNAL_LOG_RETRY_INTERVAL", cfg.ExternalLogRetryInterval)
	cfg.ExternalLogMaxRetries = getEnvInt("EXTERNAL_LOG_MAX_RETRIES", cfg.ExternalLogMaxRetries)
	cfg.ExternalLogFallbackLocal = getEnvBool("EXTERNAL_LOG_FALLBACK_LOCAL", cfg.ExternalLogFallbackLocal)

	if cfg.ExternalLogEnabled && cfg.ExternalLogEndpoint == "" {
		return nil, fmt.Errorf("EXTERNAL_LOG_ENDPOINT environment variable is required when the external log sink is enabled")
	}

	cfg.AdminListenAddr = getEnvString("ADMIN_LISTEN_ADDR", cfg.AdminListenAddr)
	cfg.ManagementToken = getEnvString("MANAGEMENT_TOKEN", cfg.ManagementToken)
	cfg.AdminEnabled = getEnvBool("ADMIN_ENABLED", cfg.AdminEnabled)

	cfg.AuditTrailEnabled = getEnvBool("AUDIT_TRAIL_ENABLED", cfg.AuditTrailEnabled)
	cfg.AuditDatabasePath = getEnvString("AUDIT_DATABASE_PATH", cfg.AuditDatabasePath)

	if cfg.Stream == "" {
		return nil, fmt.Errorf("REDIS_IPC_STREAM environment variable is required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("REDIS_IPC_GROUP environment variable is required")
	}
	if cfg.AdminEnabled && cfg.ManagementToken == "" {
		return nil, fmt.Errorf("MANAGEMENT_TOKEN environment variable is required when the admin API is enabled")
	}

	return cfg, nil
}

// DefaultConfig returns a Config populated with this system's default
// pool sizes, timeouts, and connection settings, and no stream/group
// identity (callers must supply those).
func DefaultConfig() *Config {
	return &Config{
		RedisAddr: "localhost:6379",

		PoolSize: 10,

		LedgerEntryTimeout:    5 * time.Second,
		LedgerCleanupInterval: time.Second,

		ConsumerPoolSize:          10,
		ConsumerExecutionInterval: time.Millisecond,

		DispatcherPoolSize:          3,
		DispatcherExecutionInterval: time.Millisecond,
		ReclaimMinIdle:              10 * time.Second,
		PublishRejectOnNoWorkers:    false,

		AvailabilityTTL: 24 * time.Hour,

		LogLevel:      "info",
		LogFormat:     "json",
		LogMaxSizeMB:  10,
		LogMaxBackups: 5,

		ExternalLogEnabled:        false,
		ExternalLogBufferSize:     100,
		ExternalLogBatchSize:      10,
		ExternalLogFlushInterval:  time.Second,
		ExternalLogRequestTimeout: 5 * time.Second,
		ExternalLogRetryInterval:  5 * time.Second,
		ExternalLogMaxRetries:     3,
		ExternalLogFallbackLocal:  true,

		AdminListenAddr: ":8090",
		AdminEnabled:    false,

		AuditTrailEnabled: false,
		AuditDatabasePath: "./data/redis-ipc-audit.db",
	}
}

// LoadFromFile reads a YAML overlay and applies it on top of
// DefaultConfig. Fields absent from the file keep their default value.
// Environment variables are not consulted here, and New reads only the
// environment, never a file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
