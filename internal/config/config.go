// Package config loads settings from the environment or a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultDatabaseURL  = "sqlite://vaulttv.db"
	DefaultServerPort   = "8080"
	DefaultUserAgent    = "VaultTV/1.0"
	DefaultTimeout      = 30 * time.Second
	DefaultParseTimeout = 60 * time.Second
)

// ErrMissingDatabaseURL is returned when a config file sets database_url
// to an empty string explicitly.
var ErrMissingDatabaseURL = errors.New("database_url is required")

// Config holds application configuration.
type Config struct {
	DatabaseURL     string
	RedisURL        string
	ServerPort      string
	UserAgent       string
	Timeout         time.Duration
	UpstreamRPS     float64
	LogLevel        string
	LogFormat       string
	ParseWorkers    int
	ParseTimeout    time.Duration
	RefreshInterval time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabaseURL:  DefaultDatabaseURL,
		ServerPort:   DefaultServerPort,
		UserAgent:    DefaultUserAgent,
		Timeout:      DefaultTimeout,
		LogLevel:     "info",
		LogFormat:    "text",
		ParseWorkers: 2,
		ParseTimeout: DefaultParseTimeout,
	}
}

// Load builds config from environment variables. Variables missing from
// the process environment are first filled from .env.local and .env (see
// loadEnvFiles). Unset variables keep their defaults.
func Load() (*Config, error) {
	loadEnvFiles(envSearchDirs()...)
	c := Default()
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	var errs []error
	errs = append(errs,
		setDuration(&c.Timeout, "FETCHER_TIMEOUT"),
		setDuration(&c.ParseTimeout, "PARSE_TIMEOUT"),
		setDuration(&c.RefreshInterval, "REFRESH_INTERVAL"),
	)
	if s := os.Getenv("PARSE_WORKERS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("PARSE_WORKERS: %w", err))
		}
		c.ParseWorkers = n
	}
	if s := os.Getenv("UPSTREAM_RPS"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("UPSTREAM_RPS: %w", err))
		}
		c.UpstreamRPS = f
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// Validate rejects values the rest of the program cannot use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	if c.ParseWorkers <= 0 {
		return fmt.Errorf("parse_workers must be positive, got %d", c.ParseWorkers)
	}
	if c.Timeout <= 0 || c.ParseTimeout <= 0 {
		return errors.New("timeout and parse_timeout must be positive")
	}
	if c.RefreshInterval < 0 || c.UpstreamRPS < 0 {
		return errors.New("refresh_interval and upstream_rps must not be negative")
	}
	return nil
}

// Addr is the listen address for ServerPort.
func (c *Config) Addr() string {
	if strings.Contains(c.ServerPort, ":") {
		return c.ServerPort
	}
	return ":" + c.ServerPort
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
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
