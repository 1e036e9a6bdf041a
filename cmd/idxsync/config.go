// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/idxsync/internal/errors"
)

const (
	defaultConfigDir  = ".idxsync"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config represents the .idxsync/project.yaml configuration file.
type Config struct {
	Version   string         `yaml:"version"`
	ProjectID string         `yaml:"project_id"`
	Server    ServerConfig   `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig `yaml:"indexing"`
}

// ServerConfig points the sync client at a reconciler server.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// EmbeddingConfig selects the AI provider the reconciler's server process
// calls during phase-2, mirroring the teacher's embedding-provider options.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama, mock
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// IndexingConfig contains indexing and watch behavior settings.
type IndexingConfig struct {
	MaxChunkSize     int      `yaml:"max_chunk_size"`
	MinChunkSize     int      `yaml:"min_chunk_size"`
	FallbackLineSize int      `yaml:"fallback_line_size"`
	FallbackOverlap  int      `yaml:"fallback_overlap"`
	Exclude          []string `yaml:"exclude"`
	LocalDataDir     string   `yaml:"local_data_dir,omitempty"`
	WatchDebounce    time.Duration `yaml:"watch_debounce,omitempty"`
}

// DefaultConfig returns a config with sensible defaults for local
// development: a local reconciler server and the Ollama embedding provider
// at its default local address.
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		Server: ServerConfig{
			BaseURL:        getEnv("IDXSYNC_BASE_URL", "http://localhost:8090"),
			RequestTimeout: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			BaseURL:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Dimensions: 768,
		},
		Indexing: IndexingConfig{
			MaxChunkSize:     4000,
			MinChunkSize:     64,
			FallbackLineSize: 60,
			FallbackOverlap:  10,
			Exclude: []string{
				".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**",
			},
			WatchDebounce: 2 * time.Second,
		},
	}
}

// LoadConfig loads configuration from configPath, or finds it by searching
// upward from the current directory, applying environment overrides after.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("IDXSYNC_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'idxsync init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'idxsync init --force' to regenerate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveConfig writes cfg to configPath as YAML, creating the parent
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}
	return nil
}

// ConfigPath returns <dir>/.idxsync/project.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns <dir>/.idxsync.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// findConfigFile searches for .idxsync/project.yaml in the current and
// parent directories.
func findConfigFile() (string, error) {
	if configPath := os.Getenv("IDXSYNC_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", errors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("IDXSYNC_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the IDXSYNC_CONFIG_PATH environment variable or run 'idxsync init' to create a config",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}

	for {
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .idxsync/project.yaml file found in current directory or any parent directory",
		"Run 'idxsync init' to create a new configuration",
		nil,
	)
}

// applyEnvOverrides lets environment variables override file-based
// configuration without editing project.yaml.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("IDXSYNC_BASE_URL"); url != "" {
		c.Server.BaseURL = url
	}
	if id := os.Getenv("IDXSYNC_PROJECT_ID"); id != "" {
		c.ProjectID = id
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
