package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is read from the environment. The embedded groups keep their full
// variable names so no key depends on a prefix.
type Config struct {
	HTTPPort           string        `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort           string        `envconfig:"GRPC_PORT" default:"50060"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Store          string `envconfig:"STORE" default:"memory"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"./backoffice.db"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`
	DB

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	MongoURI    string `envconfig:"MONGO_URI"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" default:"backoffice"`

	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	StatusEventTopic string   `envconfig:"KAFKA_STATUS_TOPIC" default:"order-status-events"`
	IntakeTopic      string   `envconfig:"KAFKA_INTAKE_TOPIC" default:"storefront-orders"`
	IntakeGroupID    string   `envconfig:"KAFKA_INTAKE_GROUP" default:"backoffice-intake"`

	Scan
	Courier
	Breaker
}

type DB struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"fashionary"`
}

type Scan struct {
	Cooldown          time.Duration `envconfig:"SCAN_COOLDOWN" default:"500ms"`
	ValidationTimeout time.Duration `envconfig:"SCAN_VALIDATION_TIMEOUT" default:"5s"`
	MaxHistory        int           `envconfig:"SCAN_MAX_HISTORY" default:"500"`
	SessionIdleTTL    time.Duration `envconfig:"SCAN_SESSION_IDLE_TTL" default:"2h"`
	CleanupInterval   time.Duration `envconfig:"SCAN_SESSION_CLEANUP_INTERVAL" default:"1m"`
	CacheTTL          time.Duration `envconfig:"SCAN_CACHE_TTL" default:"30s"`
}

type Courier struct {
	Name  string  `envconfig:"COURIER_NAME" default:"steadfast"`
	RPS   float64 `envconfig:"COURIER_RPS" default:"5"`
	Burst int     `envconfig:"COURIER_BURST" default:"5"`
}

type Breaker struct {
	MaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	OpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE %q, want memory, sqlite or postgres", c.Store)
	}
	if c.Scan.Cooldown <= 0 {
		return fmt.Errorf("SCAN_COOLDOWN must be positive")
	}
	if c.Scan.ValidationTimeout <= 0 {
		return fmt.Errorf("SCAN_VALIDATION_TIMEOUT must be positive")
	}
	if c.Scan.MaxHistory < 0 {
		return fmt.Errorf("SCAN_MAX_HISTORY must not be negative")
	}
	if c.Courier.RPS <= 0 || c.Courier.Burst <= 0 {
		return fmt.Errorf("COURIER_RPS and COURIER_BURST must be positive")
	}
	return nil
}
