// Package onlinestore defines the contract every online feature store backend
// honors: batched upsert writes, batched keyed reads, schema reconciliation,
// and teardown. Backends are selected by configuration; callers depend only on
// the Store interface.
package onlinestore

import (
	"context"
	"fmt"
	"time"

	"github.com/plumedb/plume/pkg/types"
)

// Row is one materialized feature row bound for an online table.
type Row struct {
	// EntityKey addresses the row; its encoded form is the storage
	// primary key.
	EntityKey types.EntityKey

	// Features maps feature name to value.
	Features map[string]types.Value

	// EventTS is when the feature values were observed.
	EventTS time.Time

	// CreatedTS is when the row was produced by ingestion, if known.
	CreatedTS *time.Time
}

// ReadResult is the outcome of looking up one entity key. Both fields are nil
// when no row is stored for the key.
type ReadResult struct {
	EventTS  *time.Time
	Features map[string]types.Value
}

// ProgressFunc reports write progress. It is invoked exactly once per
// WriteBatch call, after the whole batch has committed.
type ProgressFunc func(rows int)

// Store is the online store contract. Implementations are not safe for
// concurrent use from multiple goroutines; callers serialize calls or hold one
// store per goroutine. Every operation runs to completion or returns an error;
// there are no internal retries.
type Store interface {
	// WriteBatch upserts rows into table. Each row overwrites any stored
	// row with the same encoded entity key unconditionally; there is no
	// event timestamp comparison, the last write wins regardless of
	// temporal order. The batch is atomic: on any failure no row of the
	// call is left persisted.
	WriteBatch(ctx context.Context, table string, rows []Row, progress ProgressFunc) error

	// ReadBatch looks up feature values for each key, returning one result
	// per input key in input order, duplicates included. A key with no
	// stored row yields a zero ReadResult. The backend is consulted in a
	// single round trip for the whole batch. requestedFeatures, when
	// non-nil, restricts the returned feature mappings to that subset.
	ReadBatch(ctx context.Context, table string, keys []types.EntityKey, requestedFeatures []string) ([]ReadResult, error)

	// Reconcile brings physical storage into agreement with the desired
	// schema: create-if-absent for every table to keep, drop-if-present
	// for every table to delete. Idempotent.
	Reconcile(ctx context.Context, tablesToDelete, tablesToKeep, entitiesToDelete, entitiesToKeep []string, partial bool) error

	// Teardown irreversibly destroys all physical storage owned by the
	// store. Missing storage is not an error.
	Teardown(ctx context.Context, tables, entities []string) error

	// Close releases the backend connection, if one was opened.
	Close() error
}

// TableID returns the physical table name for a feature table within a
// project namespace.
func TableID(project, table string) string {
	return fmt.Sprintf("%s_%s", project, table)
}

// FilterFeatures restricts a decoded feature mapping to the requested subset.
// A nil request means all features.
func FilterFeatures(features map[string]types.Value, requested []string) map[string]types.Value {
	if requested == nil {
		return features
	}
	out := make(map[string]types.Value, len(requested))
	for _, name := range requested {
		if v, ok := features[name]; ok {
			out[name] = v
		}
	}
	return out
}
