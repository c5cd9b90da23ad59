package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Event topic table configuration
	Events EventsConfig

	// Reconciler configuration
	Reconcile ReconcileConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	ChainID        int64         `envconfig:"ETH_CHAIN_ID" default:"1"`
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`

	// Endpoints a sync request may select through rpcUrl (comma-separated)
	AllowedRPCURLs []string `envconfig:"ETH_ALLOWED_RPC_URLS"`
}

// IsAllowedRPCURL reports whether a caller-supplied endpoint may be dialed
func (c *EthereumConfig) IsAllowedRPCURL(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	if url == c.RPCURL {
		return true
	}
	for _, allowed := range c.AllowedRPCURLs {
		if strings.TrimSpace(allowed) == url {
			return true
		}
	}
	return false
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"treasury"`
	Password        string        `envconfig:"DB_PASSWORD" default:"treasury"`
	Name            string        `envconfig:"DB_NAME" default:"treasury_sync"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	WriteRateLimit  int           `envconfig:"API_WRITE_RATE_LIMIT_PER_MINUTE" default:"30"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`
}

// IndexerConfig holds ingestion settings shared by the API and the polling daemon
type IndexerConfig struct {
	MetricsPort        int           `envconfig:"INDEXER_METRICS_PORT" default:"8080"`
	BatchSize          int           `envconfig:"INDEXER_BATCH_SIZE" default:"5000"`
	BlockConfirmations int           `envconfig:"INDEXER_BLOCK_CONFIRMATIONS" default:"0"`
	PollInterval       time.Duration `envconfig:"INDEXER_POLL_INTERVAL" default:"12s"`
	WorkerCount        int           `envconfig:"INDEXER_WORKER_COUNT" default:"4"`
}

// EventsConfig points at an optional topic-hash table overriding the built-in one
type EventsConfig struct {
	TopicsFile string `envconfig:"EVENTS_TOPICS_FILE" default:""`
}

// ReconcileConfig holds settings for the stale-treasury reconciler command
type ReconcileConfig struct {
	OwnerAddress  string `envconfig:"RECONCILE_OWNER"`
	LivenessLimit int    `envconfig:"RECONCILE_LIVENESS_WORKERS" default:"8"`
	DryRun        bool   `envconfig:"RECONCILE_DRY_RUN" default:"false"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
