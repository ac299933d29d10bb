// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Parlor server.
//
// Configuration is loaded from a single YAML file specified by the
// PARLOR_CONFIG environment variable or the --config flag. There is
// no automatic discovery; the config file is the single source of
// truth and command-line flags override individual values explicitly.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the Parlor server configuration.
type Config struct {
	// Server configures the signaling listener.
	Server ServerConfig `yaml:"server"`

	// Storage configures message persistence.
	Storage StorageConfig `yaml:"storage"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// ServerConfig configures the signaling websocket listener.
type ServerConfig struct {
	// Host is the listen address. Default: all interfaces.
	Host string `yaml:"host"`

	// Port is the listen port. Default: 8080.
	Port int `yaml:"port"`
}

// StorageConfig configures message persistence.
type StorageConfig struct {
	// Database is the SQLite database path. Default:
	// parlor.db in the working directory.
	Database string `yaml:"database"`

	// PersistP2P enables persisting chat broadcasts relayed through
	// the server. When disabled the server is a pure relay: messages
	// are acked after relay acceptance and nothing is written.
	PersistP2P bool `yaml:"persist_p2p"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration, used as the base before
// the config file and flags are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "",
			Port: 8080,
		},
		Storage: StorageConfig{
			Database:   "parlor.db",
			PersistP2P: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the PARLOR_CONFIG environment
// variable. Returns defaults when the variable is unset, since the
// server is fully operable from flags alone.
func Load() (*Config, error) {
	configPath := os.Getenv("PARLOR_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applied on
// top of the defaults. Unknown keys are an error so that typos in a
// config file fail loudly instead of silently using defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Storage.PersistP2P && c.Storage.Database == "" {
		return fmt.Errorf("storage.database is required when storage.persist_p2p is enabled")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
