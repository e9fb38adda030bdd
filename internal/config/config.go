// Package config manages aliasmig configuration and the .aliasmig directory.
// It handles loading, saving, and initializing the project configuration,
// and resolves cluster credentials from a dotenv file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/core"
)

const (
	Dir          = ".aliasmig"
	ConfigFile   = "config"
	DatabaseFile = "schemas.db"
	EnvFile      = ".env"
)

// Environment variables holding credentials. They are never written to the
// config file.
const (
	EnvUsername = "ALIASMIG_USERNAME"
	EnvPassword = "ALIASMIG_PASSWORD"
	EnvAPIKey   = "ALIASMIG_API_KEY"
)

const (
	DefaultClusterURL     = "http://localhost:9200"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "auto"
	DefaultPollInterval   = "5s"
	DefaultReindexTimeout = "168h"
)

// Rules overrides the immutable settings and field property lists.
// An empty list keeps the built-in default.
type Rules struct {
	ImmutableSettings        []string `toml:"immutable_settings,omitempty"`
	ImmutableFieldProperties []string `toml:"immutable_field_properties,omitempty"`
}

// Config represents the aliasmig configuration
type Config struct {
	ClusterURLs    []string `toml:"cluster_urls"`
	Username       string   `toml:"username,omitempty"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"` // auto, console or json
	PollInterval   string   `toml:"poll_interval"`
	ReindexTimeout string   `toml:"reindex_timeout"`
	Rules          Rules    `toml:"rules"`

	Password string `toml:"-"`
	APIKey   string `toml:"-"`

	path string // path to .aliasmig directory
}

// FindRoot finds the .aliasmig directory by walking up from current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, Dir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an aliasmig project (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the nearest .aliasmig directory
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration stored in the given .aliasmig directory.
func LoadFrom(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = root
	cfg.applyDefaults()

	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.ClusterURLs) == 0 {
		c.ClusterURLs = []string{DefaultClusterURL}
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReindexTimeout == "" {
		c.ReindexTimeout = DefaultReindexTimeout
	}
}

// loadSecrets reads credentials from .aliasmig/.env; variables already set
// in the process environment win over the file.
func (c *Config) loadSecrets() error {
	values := map[string]string{}

	envPath := filepath.Join(c.path, EnvFile)
	if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
		values, err = godotenv.Read(envPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", envPath, err)
		}
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to access %s: %w", envPath, err)
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}

	if v := lookup(EnvUsername); v != "" {
		c.Username = v
	}
	c.Password = lookup(EnvPassword)
	c.APIKey = lookup(EnvAPIKey)
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Path returns the path to the .aliasmig directory
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the bbolt schema database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// ClusterConfig returns the connection settings for the cluster client
func (c *Config) ClusterConfig() cluster.Config {
	return cluster.Config{
		Addresses: c.ClusterURLs,
		Username:  c.Username,
		Password:  c.Password,
		APIKey:    c.APIKey,
	}
}

// MigrationOptions converts the config into migrator options.
func (c *Config) MigrationOptions() (core.Options, error) {
	opts := core.DefaultOptions()

	poll, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return opts, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	timeout, err := time.ParseDuration(c.ReindexTimeout)
	if err != nil {
		return opts, fmt.Errorf("invalid reindex_timeout %q: %w", c.ReindexTimeout, err)
	}
	if poll <= 0 || timeout <= 0 {
		return opts, fmt.Errorf("poll_interval and reindex_timeout must be positive")
	}
	opts.PollInterval = poll
	opts.ReindexTimeout = timeout

	if len(c.Rules.ImmutableSettings) > 0 {
		opts.Rules.ImmutableSettings = c.Rules.ImmutableSettings
	}
	if len(c.Rules.ImmutableFieldProperties) > 0 {
		opts.Rules.ImmutableFieldProperties = c.Rules.ImmutableFieldProperties
	}
	return opts, nil
}

// Initialize creates a new .aliasmig directory in dir with an initial configuration
func Initialize(dir, clusterURL string) (*Config, error) {
	root := filepath.Join(dir, Dir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("aliasmig project already exists")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	cfg := &Config{path: root}
	if clusterURL != "" {
		cfg.ClusterURLs = []string{clusterURL}
	}
	cfg.applyDefaults()

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(root)
		return nil, err
	}

	return cfg, nil
}
