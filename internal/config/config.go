// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the cohortbridge configuration from a
// YAML file and environment variables. Environment variables take precedence
// over file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cberrors "github.com/cohortbridge/cohortbridge/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete cohortbridge configuration.
type Config struct {
	WebAPI WebAPIConfig `yaml:"webapi"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Drafts DraftsConfig `yaml:"drafts"`
}

// WebAPIConfig configures the upstream OHDSI WebAPI connection.
type WebAPIConfig struct {
	// BaseURL is the WebAPI root, e.g. "https://atlas.example.org/WebAPI".
	// Environment: WEBAPI_BASE_URL
	BaseURL string `yaml:"base_url"`

	// SourceKey is the default CDM source for operations that need one.
	// Environment: WEBAPI_SOURCE_KEY
	SourceKey string `yaml:"source_key,omitempty"`

	// Timeout is the per-request timeout.
	// Environment: WEBAPI_TIMEOUT
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RetryAttempts is the number of retries for idempotent requests.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts,omitempty"`

	// RequestsPerSecond caps the outgoing request rate. Zero disables
	// client-side limiting.
	// Environment: WEBAPI_REQUESTS_PER_SECOND
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// ServerConfig configures the MCP server transports.
type ServerConfig struct {
	// Transport selects how the server speaks MCP: "stdio" or "http".
	// Default: stdio
	Transport string `yaml:"transport,omitempty"`

	// HTTPAddr is the listen address for the http transport.
	// Environment: COHORTBRIDGE_HTTP_ADDR
	// Default: :8765
	HTTPAddr string `yaml:"http_addr,omitempty"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the metrics listener.
	// Environment: COHORTBRIDGE_METRICS_ADDR
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// ToolCallsPerMinute rate-limits tool invocations across the whole
	// server (all sessions share one bucket). Zero selects the default
	// of 240.
	ToolCallsPerMinute int `yaml:"tool_calls_per_minute,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format,omitempty"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source,omitempty"`
}

// DraftsConfig configures the local draft store for in-progress cohort
// definitions.
type DraftsConfig struct {
	// Enabled turns on write-through persistence of session drafts.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Path is the SQLite database file.
	// Environment: COHORTBRIDGE_DRAFTS_PATH
	// Default: <data dir>/drafts.db
	Path string `yaml:"path,omitempty"`
}

// DraftsEnabled reports whether draft persistence is on.
func (d DraftsConfig) DraftsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Default returns a Config with sensible defaults. The WebAPI base URL has
// no default and must come from the file or environment.
func Default() *Config {
	return &Config{
		WebAPI: WebAPIConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Server: ServerConfig{
			Transport:       "stdio",
			HTTPAddr:        ":8765",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Drafts: DraftsConfig{
			Path: filepath.Join(defaultDataDir(), "drafts.db"),
		},
	}
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &cberrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &cberrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults. This allows
// minimal configs (e.g. just a base URL) to work without specifying all
// fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.WebAPI.Timeout == 0 {
		c.WebAPI.Timeout = defaults.WebAPI.Timeout
	}
	if c.WebAPI.RetryAttempts == 0 {
		c.WebAPI.RetryAttempts = defaults.WebAPI.RetryAttempts
	}

	if c.Server.Transport == "" {
		c.Server.Transport = defaults.Server.Transport
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = defaults.Server.HTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Drafts.Path == "" {
		c.Drafts.Path = defaults.Drafts.Path
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("WEBAPI_BASE_URL"); val != "" {
		c.WebAPI.BaseURL = val
	}
	if val := os.Getenv("WEBAPI_SOURCE_KEY"); val != "" {
		c.WebAPI.SourceKey = val
	}
	if val := os.Getenv("WEBAPI_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.WebAPI.Timeout = duration
		}
	}
	if val := os.Getenv("WEBAPI_REQUESTS_PER_SECOND"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			c.WebAPI.RequestsPerSecond = rps
		}
	}

	if val := os.Getenv("COHORTBRIDGE_TRANSPORT"); val != "" {
		c.Server.Transport = strings.ToLower(val)
	}
	if val := os.Getenv("COHORTBRIDGE_HTTP_ADDR"); val != "" {
		c.Server.HTTPAddr = val
	}
	if val := os.Getenv("COHORTBRIDGE_METRICS_ADDR"); val != "" {
		c.Server.MetricsAddr = val
	}
	if val := os.Getenv("COHORTBRIDGE_DRAFTS_PATH"); val != "" {
		c.Drafts.Path = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid. All violations are
// collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.WebAPI.BaseURL) == "" {
		errs = append(errs, "webapi.base_url is required (set WEBAPI_BASE_URL or webapi.base_url)")
	} else if !strings.HasPrefix(c.WebAPI.BaseURL, "http://") && !strings.HasPrefix(c.WebAPI.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("webapi.base_url must start with http:// or https://, got %q", c.WebAPI.BaseURL))
	}
	if c.WebAPI.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("webapi.timeout must be positive, got %v", c.WebAPI.Timeout))
	}
	if c.WebAPI.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("webapi.retry_attempts must be non-negative, got %d", c.WebAPI.RetryAttempts))
	}
	if c.WebAPI.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("webapi.requests_per_second must be non-negative, got %v", c.WebAPI.RequestsPerSecond))
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[c.Server.Transport] {
		errs = append(errs, fmt.Sprintf("server.transport must be one of [stdio, http], got %q", c.Server.Transport))
	}
	if c.Server.Transport == "http" && c.Server.HTTPAddr == "" {
		errs = append(errs, "server.http_addr is required when server.transport is http")
	}
	if c.Server.ToolCallsPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("server.tool_calls_per_minute must be non-negative, got %d", c.Server.ToolCallsPerMinute))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Drafts.DraftsEnabled() && c.Drafts.Path == "" {
		errs = append(errs, "drafts.path is required when drafts are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "cohortbridge")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/cohortbridge-data"
	}

	return filepath.Join(homeDir, ".cohortbridge", "data")
}
