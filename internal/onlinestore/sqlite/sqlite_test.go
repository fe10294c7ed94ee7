package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumedb/plume/internal/onlinestore"
	"github.com/plumedb/plume/pkg/types"
)

const testTable = "driver_hourly"

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	repoPath := t.TempDir()

	store := New(Config{Path: "data/online.db", RepoPath: repoPath, Project: "proj"})
	t.Cleanup(func() { store.Close() })

	err := store.Reconcile(context.Background(), nil, []string{testTable}, nil, nil, false)
	if err != nil {
		t.Fatalf("failed to reconcile store: %v", err)
	}
	return store, repoPath
}

func driverKey(id int64) types.EntityKey {
	return types.EntityKey{"driver_id": types.Int64Value(id)}
}

func writeDriver(t *testing.T, store *Store, id int64, convRate float64, eventTS time.Time) {
	t.Helper()
	rows := []onlinestore.Row{{
		EntityKey: driverKey(id),
		Features:  map[string]types.Value{"conv_rate": types.Float64Value(convRate)},
		EventTS:   eventTS,
	}}
	if err := store.WriteBatch(context.Background(), testTable, rows, nil); err != nil {
		t.Fatalf("failed to write batch: %v", err)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	store, _ := setupStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeDriver(t, store, 1001, 0.5, t0)

	results, err := store.ReadBatch(context.Background(), testTable, []types.EntityKey{driverKey(1001)}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NotNil(t, results[0].EventTS)
	assert.True(t, results[0].EventTS.Equal(t0))
	require.NotNil(t, results[0].Features)
	assert.True(t, results[0].Features["conv_rate"].Equal(types.Float64Value(0.5)))
}

func TestOverwriteIgnoresEventTimestampOrder(t *testing.T) {
	store, _ := setupStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeDriver(t, store, 1001, 0.5, t0)

	// A later write with an earlier event timestamp still wins; the store
	// never compares timestamps before overwriting.
	earlier := t0.Add(-time.Second)
	writeDriver(t, store, 1001, 0.7, earlier)

	results, err := store.ReadBatch(context.Background(), testTable, []types.EntityKey{driverKey(1001)}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].EventTS)
	assert.True(t, results[0].EventTS.Equal(earlier))
	assert.True(t, results[0].Features["conv_rate"].Equal(types.Float64Value(0.7)))
}

func TestReadMissingKey(t *testing.T) {
	store, _ := setupStore(t)

	results, err := store.ReadBatch(context.Background(), testTable, []types.EntityKey{driverKey(404)}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].EventTS)
	assert.Nil(t, results[0].Features)
}

func TestReadPreservesInputOrderAndDuplicates(t *testing.T) {
	store, _ := setupStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeDriver(t, store, 1001, 0.5, t0)
	writeDriver(t, store, 1002, 0.6, t0)

	keys := []types.EntityKey{
		driverKey(1002),
		driverKey(404),
		driverKey(1001),
		driverKey(1002), // duplicate
	}
	results, err := store.ReadBatch(context.Background(), testTable, keys, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Features["conv_rate"].Equal(types.Float64Value(0.6)))
	assert.Nil(t, results[1].Features)
	assert.True(t, results[2].Features["conv_rate"].Equal(types.Float64Value(0.5)))
	assert.True(t, results[3].Features["conv_rate"].Equal(types.Float64Value(0.6)))
}

func TestReadRequestedFeatureSubset(t *testing.T) {
	store, _ := setupStore(t)
	rows := []onlinestore.Row{{
		EntityKey: driverKey(1001),
		Features: map[string]types.Value{
			"conv_rate":  types.Float64Value(0.5),
			"trip_count": types.Int64Value(12),
		},
		EventTS: time.Now(),
	}}
	require.NoError(t, store.WriteBatch(context.Background(), testTable, rows, nil))

	results, err := store.ReadBatch(context.Background(), testTable,
		[]types.EntityKey{driverKey(1001)}, []string{"trip_count"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Features, 1)
	assert.True(t, results[0].Features["trip_count"].Equal(types.Int64Value(12)))
}

func TestWriteBatchStoresCreatedTimestamp(t *testing.T) {
	store, _ := setupStore(t)
	created := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	rows := []onlinestore.Row{{
		EntityKey: driverKey(1001),
		Features:  map[string]types.Value{"conv_rate": types.Float64Value(0.5)},
		EventTS:   created.Add(-5 * time.Minute),
		CreatedTS: &created,
	}}
	assert.NoError(t, store.WriteBatch(context.Background(), testTable, rows, nil))
}

func TestProgressCalledOncePerBatch(t *testing.T) {
	store, _ := setupStore(t)

	var calls, reported int
	progress := func(rows int) {
		calls++
		reported = rows
	}

	rows := []onlinestore.Row{
		{EntityKey: driverKey(1), Features: map[string]types.Value{"conv_rate": types.Float64Value(0.1)}, EventTS: time.Now()},
		{EntityKey: driverKey(2), Features: map[string]types.Value{"conv_rate": types.Float64Value(0.2)}, EventTS: time.Now()},
		{EntityKey: driverKey(3), Features: map[string]types.Value{"conv_rate": types.Float64Value(0.3)}, EventTS: time.Now()},
	}
	require.NoError(t, store.WriteBatch(context.Background(), testTable, rows, progress))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, reported)
}

func TestWriteBatchAtomicOnEncodeFailure(t *testing.T) {
	store, _ := setupStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeDriver(t, store, 1001, 0.5, t0)

	// The second row's feature value has no defined encoding; the whole
	// batch must be rejected with the table unchanged.
	rows := []onlinestore.Row{
		{EntityKey: driverKey(1001), Features: map[string]types.Value{"conv_rate": types.Float64Value(0.9)}, EventTS: t0.Add(time.Hour)},
		{EntityKey: driverKey(1002), Features: map[string]types.Value{"conv_rate": {}}, EventTS: t0.Add(time.Hour)},
	}
	err := store.WriteBatch(context.Background(), testTable, rows, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnsupportedType))

	results, err := store.ReadBatch(context.Background(), testTable,
		[]types.EntityKey{driverKey(1001), driverKey(1002)}, nil)
	require.NoError(t, err)
	assert.True(t, results[0].Features["conv_rate"].Equal(types.Float64Value(0.5)), "first row must be unchanged")
	assert.True(t, results[0].EventTS.Equal(t0))
	assert.Nil(t, results[1].Features, "second row must not exist")
}

func TestReconcileIsIdempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	// Second run with identical arguments: no error, no duplicate state.
	require.NoError(t, store.Reconcile(ctx, nil, []string{testTable}, nil, nil, false))

	writeDriver(t, store, 1001, 0.5, time.Now())
	require.NoError(t, store.Reconcile(ctx, nil, []string{testTable}, nil, nil, false))

	results, err := store.ReadBatch(ctx, testTable, []types.EntityKey{driverKey(1001)}, nil)
	require.NoError(t, err)
	assert.NotNil(t, results[0].Features, "reconcile must not clobber existing rows")
}

func TestReconcileDropsDeletedTables(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	writeDriver(t, store, 1001, 0.5, time.Now())
	require.NoError(t, store.Reconcile(ctx, []string{testTable}, nil, nil, nil, false))

	_, err := store.ReadBatch(ctx, testTable, []types.EntityKey{driverKey(1001)}, nil)
	assert.Error(t, err, "reads against a dropped table must fail")

	// Dropping an already-dropped table is fine.
	assert.NoError(t, store.Reconcile(ctx, []string{testTable}, nil, nil, nil, false))
}

func TestTeardownIsIdempotent(t *testing.T) {
	store, repoPath := setupStore(t)
	ctx := context.Background()

	writeDriver(t, store, 1001, 0.5, time.Now())

	require.NoError(t, store.Teardown(ctx, []string{testTable}, nil))
	_, err := os.Stat(filepath.Join(repoPath, "data", "online.db"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Second teardown against already-destroyed storage must not error.
	assert.NoError(t, store.Teardown(ctx, []string{testTable}, nil))
}

func TestReadBeforeInitializeReturnsStoreNotFound(t *testing.T) {
	store := New(Config{Path: "data/online.db", RepoPath: t.TempDir(), Project: "proj"})

	_, err := store.ReadBatch(context.Background(), testTable, []types.EntityKey{driverKey(1)}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreNotFound))
}

func TestAbsolutePathIsUsedAsIs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "absolute.db")
	store := New(Config{Path: dbPath, RepoPath: "/nonexistent/repo", Project: "proj"})
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Reconcile(context.Background(), nil, []string{testTable}, nil, nil, false))
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
