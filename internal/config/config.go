// Package config provides configuration management for the transformer
// service using Viper for flexible loading from files, environment
// variables, and command-line flags.
//
// Configuration sources, highest priority first: command-line flags, the
// TRANSFORMER_CONFIG_FILE environment variable, individual TRANSFORMER_*
// environment variables, and a transformer.yml configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration of the service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Stylesheets StylesheetsConfig `mapstructure:"stylesheets"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StylesheetsConfig holds the stylesheet store and scratch settings.
type StylesheetsConfig struct {
	// Dir is the durable stylesheet store directory.
	Dir string `mapstructure:"dir"`
	// ScratchDir receives request-unique transform inputs and failed
	// conversion artifacts kept for diagnosis.
	ScratchDir string `mapstructure:"scratch_dir"`
	// Watch enables the fsnotify watcher that reloads the registry when
	// the store directory changes on disk.
	Watch bool `mapstructure:"watch"`
	// WatchDebounce groups rapid file events before a reload.
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// FetchConfig bounds remote document and stylesheet retrieval.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig carries the API keys accepted on protected routes.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from viper's current state and applies defaults
// and validation.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 1745
	}
	if config.Stylesheets.Dir == "" {
		config.Stylesheets.Dir = "./saved-xsl"
	}
	if config.Stylesheets.ScratchDir == "" {
		config.Stylesheets.ScratchDir = filepath.Join(os.TempDir(), "transformer")
	}
	if config.Stylesheets.WatchDebounce <= 0 {
		config.Stylesheets.WatchDebounce = 300 * time.Millisecond
	}
	if config.Fetch.Timeout <= 0 {
		config.Fetch.Timeout = 30 * time.Second
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Stylesheets.Dir == "" {
		return fmt.Errorf("stylesheets.dir must not be empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q not supported (text, json)", c.Log.Format)
	}
	return nil
}

// Redacted returns a copy of the configuration safe to expose over the
// settings endpoint: API keys are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.APIKeys = make([]string, len(c.Auth.APIKeys))
	for i := range c.Auth.APIKeys {
		out.Auth.APIKeys[i] = "****"
	}
	return out
}
