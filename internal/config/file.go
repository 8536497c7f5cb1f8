package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL  string `yaml:"database_url"`
	SQLitePath   string `yaml:"sqlite_path"`
	RedisURL     string `yaml:"redis_url"`
	ServerPort   string `yaml:"server_port"`
	UserAgent    string `yaml:"user_agent"`
	Timeout      string `yaml:"timeout"`
	BatchSize    int    `yaml:"batch_size"`
	LockTTL      string `yaml:"lock_ttl"`
	QueueImports bool   `yaml:"queue_imports"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

// LoadFromFile loads config from a YAML file. Unset keys keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c := Default()
	if f.DatabaseURL != "" {
		c.DatabaseURL = f.DatabaseURL
	}
	if f.SQLitePath != "" {
		c.SQLitePath = f.SQLitePath
	}
	c.RedisURL = f.RedisURL
	if f.ServerPort != "" {
		c.ServerPort = f.ServerPort
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.BatchSize != 0 {
		c.BatchSize = f.BatchSize
	}
	c.QueueImports = f.QueueImports
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		c.LogFormat = f.LogFormat
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.LockTTL != "" {
		d, err := time.ParseDuration(f.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock_ttl: %w", err)
		}
		c.LockTTL = d
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
