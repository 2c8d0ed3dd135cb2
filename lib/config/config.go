// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the consult server configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Matching   MatchingConfig   `yaml:"matching"`
	Connection ConnectionConfig `yaml:"connection"`
	Journal    JournalConfig    `yaml:"journal"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment.
type ConfigOverrides struct {
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
	Connection *ConnectionConfig `yaml:"connection,omitempty"`
	Journal    *JournalConfig    `yaml:"journal,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the TCP address for HTTP, e.g. ":8080".
	Listen string `yaml:"listen"`

	// WebSocketPath is where clients upgrade to the signaling
	// connection. Default: /ws
	WebSocketPath string `yaml:"websocket_path"`

	// StatusPath serves the operational status counts. Default: /status
	StatusPath string `yaml:"status_path"`

	// MetricsPath serves Prometheus metrics. Empty disables them.
	MetricsPath string `yaml:"metrics_path"`

	// CheckOrigin enables Origin header validation on upgrade. When
	// true, only AllowedOrigins may connect.
	CheckOrigin    bool     `yaml:"check_origin"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// MatchingConfig tunes the waiting room.
type MatchingConfig struct {
	// ConsultMinutes is the expected length of one consultation, used
	// to estimate a requester's wait from its position.
	ConsultMinutes int `yaml:"consult_minutes"`
}

// ConnectionConfig bounds each client connection.
type ConnectionConfig struct {
	// SendQueue is the outbound message buffer per connection. A
	// connection whose buffer fills is closed.
	SendQueue int `yaml:"send_queue"`

	// PingInterval is how often the server pings idle clients.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongTimeout is how long the server waits for any inbound frame
	// (including pongs) before declaring the connection dead.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxMessageBytes is the largest inbound frame accepted.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// RatePerSecond and RateBurst configure the per-connection token
	// bucket for inbound messages. RatePerSecond <= 0 disables it.
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

// JournalConfig configures the out-of-band session journal.
type JournalConfig struct {
	// Path is the journal directory. Each server run writes a new
	// file there named by its start time. Empty disables the journal.
	// Supports ${VAR} and ${VAR:-default} expansion.
	Path string `yaml:"path"`

	// Compression is none, zstd or lz4.
	Compression string `yaml:"compression"`

	// Recipients are age X25519 public keys (age1...). When set, the
	// journal is encrypted to them.
	Recipients []string `yaml:"recipients"`
}

// Default returns the development defaults every loaded file merges
// onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:        ":8080",
			WebSocketPath: "/ws",
			StatusPath:    "/status",
			MetricsPath:   "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
		Matching: MatchingConfig{
			ConsultMinutes: 15,
		},
		Connection: ConnectionConfig{
			SendQueue:       64,
			PingInterval:    20 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageBytes: 64 * 1024,
			RatePerSecond:   50,
			RateBurst:       100,
		},
		Journal: JournalConfig{
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the file named by CONSULT_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("CONSULT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONSULT_CONFIG environment variable not set; " +
			"set it to the path of your consult.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the section for the
// configured environment and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Journal.Path = expandVars(cfg.Journal.Path)

	return cfg, nil
}

// applyEnvironmentOverrides merges the section matching Environment
// over the base values. Only non-zero override fields apply, except
// CheckOrigin which is a bool and always applies when a Server
// override is present.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Server:     &ServerConfig{CheckOrigin: true},
				Connection: &ConnectionConfig{RateBurst: 40},
			}
		}
	}

	if overrides == nil {
		return
	}

	if server := overrides.Server; server != nil {
		if server.Listen != "" {
			c.Server.Listen = server.Listen
		}
		if server.WebSocketPath != "" {
			c.Server.WebSocketPath = server.WebSocketPath
		}
		if server.StatusPath != "" {
			c.Server.StatusPath = server.StatusPath
		}
		if server.MetricsPath != "" {
			c.Server.MetricsPath = server.MetricsPath
		}
		c.Server.CheckOrigin = server.CheckOrigin
		if len(server.AllowedOrigins) > 0 {
			c.Server.AllowedOrigins = server.AllowedOrigins
		}
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}

	if connection := overrides.Connection; connection != nil {
		if connection.SendQueue != 0 {
			c.Connection.SendQueue = connection.SendQueue
		}
		if connection.PingInterval != 0 {
			c.Connection.PingInterval = connection.PingInterval
		}
		if connection.PongTimeout != 0 {
			c.Connection.PongTimeout = connection.PongTimeout
		}
		if connection.WriteTimeout != 0 {
			c.Connection.WriteTimeout = connection.WriteTimeout
		}
		if connection.MaxMessageBytes != 0 {
			c.Connection.MaxMessageBytes = connection.MaxMessageBytes
		}
		if connection.RatePerSecond != 0 {
			c.Connection.RatePerSecond = connection.RatePerSecond
		}
		if connection.RateBurst != 0 {
			c.Connection.RateBurst = connection.RateBurst
		}
	}

	if journal := overrides.Journal; journal != nil {
		if journal.Path != "" {
			c.Journal.Path = journal.Path
		}
		if journal.Compression != "" {
			c.Journal.Compression = journal.Compression
		}
		if len(journal.Recipients) > 0 {
			c.Journal.Recipients = journal.Recipients
		}
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Server.WebSocketPath == "" || c.Server.WebSocketPath[0] != '/' {
		errs = append(errs, fmt.Errorf("server.websocket_path must start with /: %q", c.Server.WebSocketPath))
	}
	if c.Server.CheckOrigin && len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("server.check_origin requires server.allowed_origins"))
	}
	if c.Matching.ConsultMinutes <= 0 {
		errs = append(errs, fmt.Errorf("matching.consult_minutes must be positive, got %d", c.Matching.ConsultMinutes))
	}
	if c.Connection.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("connection.send_queue must be positive, got %d", c.Connection.SendQueue))
	}
	if c.Connection.PingInterval <= 0 || c.Connection.PongTimeout <= c.Connection.PingInterval {
		errs = append(errs, fmt.Errorf("connection.pong_timeout (%s) must exceed a positive ping_interval (%s)",
			c.Connection.PongTimeout, c.Connection.PingInterval))
	}
	if c.Connection.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("connection.max_message_bytes must be positive"))
	}
	if c.Connection.RatePerSecond > 0 && c.Connection.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("connection.rate_burst must be positive when rate_per_second is set"))
	}
	switch c.Journal.Compression {
	case "", "none", "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("journal.compression must be none, zstd or lz4, got %q", c.Journal.Compression))
	}

	return errors.Join(errs...)
}
