// Package config provides configuration loading for alertstream services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigDir names the directory holding config.yaml.
const EnvConfigDir = "ALERTSTREAM_CONFIG_DIR"

const defaultConfigDir = "/etc/alertstream"

// Config is the root configuration for the consumer service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Consumer   ConsumerConfig   `mapstructure:"consumer"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// RegistryConfig selects where source definitions are read from.
type RegistryConfig struct {
	// Backend is one of "postgres", "file" or "memory".
	Backend  string `mapstructure:"backend"`
	FilePath string `mapstructure:"file_path"`
	// Watch triggers a consumer refresh whenever the registry file changes.
	Watch bool `mapstructure:"watch"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	// MigrationsDir overrides the migrations embedded in the binary.
	MigrationsDir string `mapstructure:"migrations_dir"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a postgres:// URL for pgx and golang-migrate.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// OpenSearchConfig holds OpenSearch connection settings
type OpenSearchConfig struct {
	URL             string `mapstructure:"url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TLSSkipVerify   bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix     string `mapstructure:"index_prefix"`
	ShardCount      int    `mapstructure:"shard_count"`
	ReplicaCount    int    `mapstructure:"replica_count"`
	RefreshInterval string `mapstructure:"refresh_interval"`
}

// RedisConfig configures the record deduplication guard.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Enabled  bool          `mapstructure:"enabled"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// NATSConfig holds NATS settings used by nats sources and the live feed forwarder.
type NATSConfig struct {
	URL             string        `mapstructure:"url"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ForwardLiveFeed bool          `mapstructure:"forward_livefeed"`
	LiveFeedSubject string        `mapstructure:"livefeed_subject"`
}

// ConsumerConfig tunes the per-source workers.
type ConsumerConfig struct {
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	LiveFeedCapacity int           `mapstructure:"livefeed_capacity"`
	MinBytes         int           `mapstructure:"min_bytes"`
	MaxBytes         int           `mapstructure:"max_bytes"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	DryRun           bool          `mapstructure:"dry_run"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads $ALERTSTREAM_CONFIG_DIR/config.yaml (or the explicit path when
// non-empty) and applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		configDir := os.Getenv(EnvConfigDir)
		if configDir == "" {
			configDir = defaultConfigDir
		}
		path = filepath.Join(configDir, "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// LOGGING_LEVEL overrides logging.level, and so on.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Registry.Backend {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			errs = append(errs, errors.New("database.postgres.host is required for the postgres registry"))
		}
	case "file":
		if c.Registry.FilePath == "" {
			errs = append(errs, errors.New("registry.file_path is required for the file registry"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q must be postgres, file or memory", c.Registry.Backend))
	}

	if !c.Consumer.DryRun && c.OpenSearch.URL == "" {
		errs = append(errs, errors.New("opensearch.url is required unless consumer.dry_run is set"))
	}
	if c.Consumer.RetryBackoff <= 0 {
		errs = append(errs, errors.New("consumer.retry_backoff must be positive"))
	}
	if c.Consumer.StoreTimeout <= 0 {
		errs = append(errs, errors.New("consumer.store_timeout must be positive"))
	}
	if c.Consumer.LiveFeedCapacity <= 0 {
		errs = append(errs, errors.New("consumer.livefeed_capacity must be positive"))
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when redis is enabled"))
	}
	if c.NATS.ForwardLiveFeed && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when forwarding the live feed"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("registry.backend", "postgres")
	v.SetDefault("registry.file_path", "/etc/alertstream/sources.yaml")
	v.SetDefault("registry.watch", true)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "alertstream")
	v.SetDefault("database.postgres.user", "alertstream")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index_prefix", "alertstream")
	v.SetDefault("opensearch.shard_count", 1)
	v.SetDefault("opensearch.replica_count", 0)
	v.SetDefault("opensearch.refresh_interval", "5s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.dedup_ttl", "24h")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.forward_livefeed", false)
	v.SetDefault("nats.livefeed_subject", "alertstream.livefeed")

	v.SetDefault("consumer.retry_backoff", "1s")
	v.SetDefault("consumer.store_timeout", "30s")
	v.SetDefault("consumer.stop_timeout", "30s")
	v.SetDefault("consumer.livefeed_capacity", 1000)
	v.SetDefault("consumer.min_bytes", 1000)
	v.SetDefault("consumer.max_bytes", 10000000)
	v.SetDefault("consumer.max_wait", "1s")
	v.SetDefault("consumer.dry_run", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
