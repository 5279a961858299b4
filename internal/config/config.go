package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultLocalTableName is the table used when running in local mode without TABLE_NAME.
const DefaultLocalTableName = "LinkTable"

// Storage backends selectable with STORE_BACKEND.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"production"` // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`     // debug, info, warn, error
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// StoreConfig selects the link repository backend and where it lives.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"dynamodb"`

	// Local is the SAM local flag: it points the DynamoDB client at Endpoint
	// instead of the ambient AWS endpoint.
	Local     bool   `envconfig:"AWS_SAM_LOCAL"`
	TableName string `envconfig:"TABLE_NAME"`
	Endpoint  string `envconfig:"DYNAMODB_ENDPOINT" default:"http://localhost:8000"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`

	BoltPath string `envconfig:"BOLT_PATH" default:"links.db"`

	// IDVersion is the UUID version minted for new links: 7 (time-ordered) or 4.
	IDVersion int `envconfig:"ID_VERSION" default:"7"`
}

// ApplyDefaults fills the local-mode table name.
func (c *StoreConfig) ApplyDefaults() {
	if c.Local && c.TableName == "" {
		c.TableName = DefaultLocalTableName
	}
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.IDVersion != 4 && c.IDVersion != 7 {
		return fmt.Errorf("invalid id version: %d (must be 4 or 7)", c.IDVersion)
	}

	switch c.Backend {
	case BackendDynamoDB:
		if c.TableName == "" {
			return fmt.Errorf("table name is required outside local mode (set TABLE_NAME)")
		}
		if c.Region == "" {
			return fmt.Errorf("region cannot be empty")
		}
		if c.Local && c.Endpoint == "" {
			return fmt.Errorf("endpoint is required in local mode")
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt path cannot be empty")
		}
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %s (must be one of: dynamodb, postgres, bolt, memory)", c.Backend)
	}
	return nil
}

// DatabaseConfig holds database connection configuration for the postgres backend.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" required:"true"`
	Port     string `envconfig:"DB_PORT" required:"true"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	Name     string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// ServerConfig holds the local HTTP server configuration used by `linksvc serve`.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            string        `envconfig:"SERVER_PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// Load loads the configuration needed to serve link requests from environment
// variables. The Database section is only read for the postgres backend.
// (.env loading happens in the app package, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, fmt.Errorf("failed to load App config: %w", err)
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid App config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Store); err != nil {
		return nil, fmt.Errorf("failed to load Store config: %w", err)
	}
	cfg.Store.ApplyDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Store config: %w", err)
	}

	if cfg.Store.Backend == BackendPostgres {
		if err := envconfig.Process("", &cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to load Database config: %w", err)
		}
		if err := cfg.Database.Validate(); err != nil {
			return nil, fmt.Errorf("invalid Database config: %w", err)
		}
	}

	return cfg, nil
}

// LoadServer loads the local HTTP server section.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to load Server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid Server config: %w", err)
	}
	return cfg, nil
}
