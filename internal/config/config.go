package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store drivers selected by Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string        `yaml:"database_url" env:"DATABASE_URL" validate:"omitempty,url"`
	SQLitePath   string        `yaml:"sqlite_path" env:"SQLITE_PATH" validate:"required_without=DatabaseURL"`
	RedisURL     string        `yaml:"redis_url" env:"REDIS_URL" validate:"omitempty,url"`
	ServerPort   string        `yaml:"server_port" env:"SERVER_PORT" validate:"required,numeric"`
	UserAgent    string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout      time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT" validate:"gt=0"`
	BatchSize    int           `yaml:"batch_size" env:"IMPORT_BATCH_SIZE" validate:"min=1,max=100000"`
	LockTTL      time.Duration `yaml:"lock_ttl" env:"IMPORT_LOCK_TTL" validate:"gt=0"`
	QueueImports bool          `yaml:"queue_imports" env:"QUEUE_IMPORTS"`
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat    string        `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=logfmt json text"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SQLitePath: "playlistvault.db",
		ServerPort: "8080",
		UserAgent:  "PlaylistVault/1.0",
		Timeout:    30 * time.Second,
		BatchSize:  1000,
		LockTTL:    30 * time.Minute,
		LogLevel:   "info",
		LogFormat:  "logfmt",
	}
}

// Driver reports which store the config selects: postgres when DatabaseURL is set.
func (c *Config) Driver() string {
	if c.DatabaseURL != "" {
		return DriverPostgres
	}
	return DriverSQLite
}

// StoreTarget is the DSN or file path for Driver.
func (c *Config) StoreTarget() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// ErrQueueNeedsRedis is returned when QueueImports is set without RedisURL.
var ErrQueueNeedsRedis = errors.New("queue_imports requires redis_url")

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.QueueImports && c.RedisURL == "" {
		return ErrQueueNeedsRedis
	}
	return nil
}

// Load builds config from environment variables on top of Default.
// If neither DATABASE_URL nor SQLITE_PATH is set, Load first tries .env.local
// and .env from the current directory.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" && os.Getenv("SQLITE_PATH") == "" {
		loadEnvFiles()
	}
	c := Default()
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	if err := setDuration(&c.Timeout, "FETCHER_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := setDuration(&c.LockTTL, "IMPORT_LOCK_TTL"); err != nil {
		return nil, err
	}
	if s := os.Getenv("IMPORT_BATCH_SIZE"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("IMPORT_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	if s := os.Getenv("QUEUE_IMPORTS"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("QUEUE_IMPORTS: %w", err)
		}
		c.QueueImports = b
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func setString(dst *string, key string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func setDuration(dst *time.Duration, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
