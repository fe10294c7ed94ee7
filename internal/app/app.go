// Package app assembles a feature repository's collaborators from
// configuration: the online store backend and the registry store.
package app

import (
	"context"
	"fmt"

	"github.com/plumedb/plume/internal/config"
	"github.com/plumedb/plume/internal/onlinestore"
	"github.com/plumedb/plume/internal/onlinestore/bolt"
	"github.com/plumedb/plume/internal/onlinestore/memory"
	"github.com/plumedb/plume/internal/onlinestore/sqlite"
	"github.com/plumedb/plume/internal/registry"
)

// OpenOnlineStore builds the configured online store backend. Backends open
// their storage lazily; this never touches disk.
func OpenOnlineStore(cfg *config.Config) (onlinestore.Store, error) {
	switch cfg.OnlineStore.Type {
	case config.StoreTypeSQLite:
		return sqlite.New(sqlite.Config{
			Path:     cfg.OnlineStore.Path,
			RepoPath: cfg.RepoPath,
			Project:  cfg.Project,
		}), nil
	case config.StoreTypeBolt:
		return bolt.New(bolt.Config{
			Path:     cfg.OnlineStore.Path,
			RepoPath: cfg.RepoPath,
			Project:  cfg.Project,
		}), nil
	case config.StoreTypeMemory:
		return memory.New(cfg.Project), nil
	default:
		return nil, fmt.Errorf("app: unknown online store type %q", cfg.OnlineStore.Type)
	}
}

// OpenRegistry builds the configured registry store: S3 when a bucket is
// configured, a local file otherwise.
func OpenRegistry(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	if cfg.Registry.S3.Bucket != "" {
		return registry.NewS3Store(ctx, cfg.Registry.S3.Bucket, cfg.Registry.S3.Key, registry.S3Config{
			Region:       cfg.Registry.S3.Region,
			Endpoint:     cfg.Registry.S3.Endpoint,
			UsePathStyle: cfg.Registry.S3.UsePathStyle,
		})
	}
	return registry.NewFileStore(cfg.Registry.Path, cfg.RepoPath), nil
}
