package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with durations as strings ("30s", "1h").
type fileConfig struct {
	DatabaseURL     *string  `yaml:"database_url"`
	RedisURL        string   `yaml:"redis_url"`
	ServerPort      string   `yaml:"server_port"`
	UserAgent       string   `yaml:"user_agent"`
	Timeout         string   `yaml:"timeout"`
	UpstreamRPS     *float64 `yaml:"upstream_rps"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ParseWorkers    *int     `yaml:"parse_workers"`
	ParseTimeout    string   `yaml:"parse_timeout"`
	RefreshInterval string   `yaml:"refresh_interval"`
}

// LoadFromFile loads config from a YAML file. Keys that are absent keep
// their defaults.
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
	if f.DatabaseURL != nil {
		c.DatabaseURL = *f.DatabaseURL
	}
	for _, kv := range []struct {
		dst *string
		v   string
	}{
		{&c.RedisURL, f.RedisURL},
		{&c.ServerPort, f.ServerPort},
		{&c.UserAgent, f.UserAgent},
		{&c.LogLevel, f.LogLevel},
		{&c.LogFormat, f.LogFormat},
	} {
		if kv.v != "" {
			*kv.dst = kv.v
		}
	}
	if f.UpstreamRPS != nil {
		c.UpstreamRPS = *f.UpstreamRPS
	}
	if f.ParseWorkers != nil {
		c.ParseWorkers = *f.ParseWorkers
	}
	for _, kv := range []struct {
		key string
		dst *time.Duration
		v   string
	}{
		{"timeout", &c.Timeout, f.Timeout},
		{"parse_timeout", &c.ParseTimeout, f.ParseTimeout},
		{"refresh_interval", &c.RefreshInterval, f.RefreshInterval},
	} {
		if kv.v == "" {
			continue
		}
		d, err := time.ParseDuration(kv.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kv.key, err)
		}
		*kv.dst = d
	}
	return c, c.Validate()
}
