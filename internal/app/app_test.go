package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumedb/plume/internal/config"
	"github.com/plumedb/plume/internal/registry"
)

func TestOpenOnlineStoreByType(t *testing.T) {
	for _, storeType := range []string{config.StoreTypeSQLite, config.StoreTypeBolt, config.StoreTypeMemory} {
		cfg := config.DefaultConfig()
		cfg.RepoPath = t.TempDir()
		cfg.OnlineStore.Type = storeType

		store, err := OpenOnlineStore(cfg)
		require.NoError(t, err, storeType)
		require.NotNil(t, store, storeType)
		assert.NoError(t, store.Close())
	}
}

func TestOpenOnlineStoreUnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OnlineStore.Type = "redis"
	_, err := OpenOnlineStore(cfg)
	assert.Error(t, err)
}

func TestOpenRegistryDefaultsToFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RepoPath = t.TempDir()

	store, err := OpenRegistry(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := store.(*registry.FileStore)
	assert.True(t, ok)
}
