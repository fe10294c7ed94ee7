// Package config provides unified configuration for Plume repositories: the
// project namespace, the registry location, and the online store backend.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Online store backend types.
const (
	StoreTypeSQLite = "sqlite"
	StoreTypeBolt   = "bolt"
	StoreTypeMemory = "memory"
)

// Config holds the configuration for one feature repository.
type Config struct {
	// Project is the namespace prefixed onto physical table names.
	Project string `json:"project" yaml:"project"`

	// RepoPath is the repository root against which relative storage
	// paths resolve. Defaults to the config file's directory, or the
	// working directory when no file is used.
	RepoPath string `json:"repo_path" yaml:"repo_path"`

	// Registry configures where the schema snapshot lives.
	Registry RegistryConfig `json:"registry" yaml:"registry"`

	// OnlineStore configures the serving backend.
	OnlineStore OnlineStoreConfig `json:"online_store" yaml:"online_store"`
}

// RegistryConfig holds registry storage configuration. When S3.Bucket is set
// the registry lives in S3; otherwise it is a local file at Path.
type RegistryConfig struct {
	// Path is the registry file, resolved against the repo root when
	// relative.
	Path string `json:"path" yaml:"path"`

	// S3 holds the remote registry location, if any.
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 registry configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Key is the object key of the registry snapshot.
	Key string `json:"key" yaml:"key"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is a custom endpoint for S3-compatible storage.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// OnlineStoreConfig holds online store backend configuration.
type OnlineStoreConfig struct {
	// Type selects the backend: sqlite, bolt, memory.
	Type string `json:"type" yaml:"type"`

	// Path is the backend's database file, resolved against the repo
	// root when relative. Unused by the memory backend.
	Path string `json:"path" yaml:"path"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Project: "default",
		Registry: RegistryConfig{
			Path: "data/registry.db",
		},
		OnlineStore: OnlineStoreConfig{
			Type: StoreTypeSQLite,
			Path: "data/online.db",
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML or JSON
// file, then PLUME_* environment variables. A .env file in the working
// directory is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}

		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse YAML: %w", err)
			}
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse JSON: %w", err)
			}
		default:
			return nil, fmt.Errorf("config: unsupported file format: %s", ext)
		}

		if cfg.RepoPath == "" {
			abs, err := filepath.Abs(filepath.Dir(path))
			if err != nil {
				return nil, fmt.Errorf("config: resolve repo path: %w", err)
			}
			cfg.RepoPath = abs
		}
	}

	loadFromEnv(cfg)

	if cfg.RepoPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolve working directory: %w", err)
		}
		cfg.RepoPath = wd
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv overrides configuration from PLUME_* environment variables.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PLUME_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("PLUME_REPO_PATH"); v != "" {
		cfg.RepoPath = v
	}
	if v := os.Getenv("PLUME_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}
	if v := os.Getenv("PLUME_REGISTRY_S3_BUCKET"); v != "" {
		cfg.Registry.S3.Bucket = v
	}
	if v := os.Getenv("PLUME_REGISTRY_S3_KEY"); v != "" {
		cfg.Registry.S3.Key = v
	}
	if v := os.Getenv("PLUME_REGISTRY_S3_REGION"); v != "" {
		cfg.Registry.S3.Region = v
	}
	if v := os.Getenv("PLUME_ONLINE_STORE_TYPE"); v != "" {
		cfg.OnlineStore.Type = v
	}
	if v := os.Getenv("PLUME_ONLINE_STORE_PATH"); v != "" {
		cfg.OnlineStore.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("config: project is required")
	}
	if strings.ContainsAny(c.Project, " \t;'\"") {
		return fmt.Errorf("config: project %q may not contain whitespace or quoting characters", c.Project)
	}

	switch c.OnlineStore.Type {
	case StoreTypeSQLite, StoreTypeBolt:
		if c.OnlineStore.Path == "" {
			return fmt.Errorf("config: online_store.path is required for the %s backend", c.OnlineStore.Type)
		}
	case StoreTypeMemory:
		// No path needed.
	default:
		return fmt.Errorf("config: invalid online store type: %s (must be sqlite, bolt, or memory)", c.OnlineStore.Type)
	}

	if c.Registry.S3.Bucket == "" && c.Registry.Path == "" {
		return fmt.Errorf("config: registry.path or registry.s3.bucket is required")
	}
	if c.Registry.S3.Bucket != "" && c.Registry.S3.Key == "" {
		return fmt.Errorf("config: registry.s3.key is required when registry.s3.bucket is set")
	}
	return nil
}
