package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "default", cfg.Project)
	assert.Equal(t, StoreTypeSQLite, cfg.OnlineStore.Type)
	assert.Equal(t, "data/online.db", cfg.OnlineStore.Path)
	assert.Equal(t, "data/registry.db", cfg.Registry.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plume.yaml")
	content := `
project: rides
online_store:
  type: bolt
  path: store/online.boltdb
registry:
  path: store/registry.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rides", cfg.Project)
	assert.Equal(t, StoreTypeBolt, cfg.OnlineStore.Type)
	assert.Equal(t, "store/online.boltdb", cfg.OnlineStore.Path)
	assert.Equal(t, dir, cfg.RepoPath, "repo path defaults to the config file's directory")
}

func TestLoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plume.json")
	content := `{"project": "rides", "online_store": {"type": "memory"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rides", cfg.Project)
	assert.Equal(t, StoreTypeMemory, cfg.OnlineStore.Type)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plume.toml")
	require.NoError(t, os.WriteFile(path, []byte("project = 'x'"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLUME_PROJECT", "env_project")
	t.Setenv("PLUME_ONLINE_STORE_TYPE", "memory")
	t.Setenv("PLUME_REPO_PATH", "/srv/plume")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env_project", cfg.Project)
	assert.Equal(t, StoreTypeMemory, cfg.OnlineStore.Type)
	assert.Equal(t, "/srv/plume", cfg.RepoPath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"missing project", func(c *Config) { c.Project = "" }, true},
		{"project with quote", func(c *Config) { c.Project = `pro"ject` }, true},
		{"unknown store type", func(c *Config) { c.OnlineStore.Type = "redis" }, true},
		{"sqlite without path", func(c *Config) { c.OnlineStore.Path = "" }, true},
		{"memory without path", func(c *Config) { c.OnlineStore.Type = StoreTypeMemory; c.OnlineStore.Path = "" }, false},
		{"no registry at all", func(c *Config) { c.Registry.Path = "" }, true},
		{"s3 bucket without key", func(c *Config) { c.Registry.S3.Bucket = "b" }, true},
		{"s3 bucket with key", func(c *Config) { c.Registry.S3.Bucket = "b"; c.Registry.S3.Key = "registry.db" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
