// Package memory implements the online store contract on sharded in-process
// maps. Nothing is persisted; it serves tests, local development, and as the
// smallest possible demonstration of the contract. Rows are striped across
// shards by a murmur3 hash of the encoded entity key, so concurrent readers
// under test load rarely contend on one lock.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/plumedb/plume/internal/onlinestore"
	"github.com/plumedb/plume/internal/payload"
	"github.com/plumedb/plume/pkg/serialize"
	"github.com/plumedb/plume/pkg/types"
)

const shardCount = 16

type record struct {
	value   []byte
	eventTS time.Time
}

type shard struct {
	mu   sync.RWMutex
	rows map[string]record
}

type memTable struct {
	shards [shardCount]*shard
}

func newMemTable() *memTable {
	t := &memTable{}
	for i := range t.shards {
		t.shards[i] = &shard{rows: make(map[string]record)}
	}
	return t
}

func (t *memTable) shardFor(encodedKey []byte) *shard {
	return t.shards[murmur3.Sum32(encodedKey)%shardCount]
}

// Store is an in-memory online store.
type Store struct {
	project string
	mu      sync.RWMutex
	tables  map[string]*memTable
}

// New creates an empty in-memory store for the given project namespace.
func New(project string) *Store {
	return &Store{project: project, tables: make(map[string]*memTable)}
}

func (s *Store) table(table string) (*memTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[onlinestore.TableID(s.project, table)]
	if !ok {
		return nil, fmt.Errorf("memory: no such table %s", onlinestore.TableID(s.project, table))
	}
	return t, nil
}

// WriteBatch upserts rows. All rows are serialized before any shard is
// touched, so a row that fails to encode leaves the table unchanged.
func (s *Store) WriteBatch(ctx context.Context, table string, rows []onlinestore.Row, progress onlinestore.ProgressFunc) error {
	type encodedRow struct {
		key []byte
		rec record
	}
	encoded := make([]encodedRow, 0, len(rows))
	for i, row := range rows {
		key, err := serialize.EncodeKey(row.EntityKey)
		if err != nil {
			return fmt.Errorf("memory: row %d: %w", i, err)
		}
		value, err := payload.Encode(row.Features)
		if err != nil {
			return fmt.Errorf("memory: row %d: %w", i, err)
		}
		encoded = append(encoded, encodedRow{key: key, rec: record{value: value, eventTS: row.EventTS.UTC()}})
	}

	t, err := s.table(table)
	if err != nil {
		return err
	}
	for _, er := range encoded {
		sh := t.shardFor(er.key)
		sh.mu.Lock()
		sh.rows[string(er.key)] = er.rec
		sh.mu.Unlock()
	}

	if progress != nil {
		progress(len(rows))
	}
	return nil
}

// ReadBatch resolves each key against its shard and returns results in the
// caller's key order.
func (s *Store) ReadBatch(ctx context.Context, table string, keys []types.EntityKey, requestedFeatures []string) ([]onlinestore.ReadResult, error) {
	results := make([]onlinestore.ReadResult, 0, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	for i, key := range keys {
		encoded, err := serialize.EncodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("memory: key %d: %w", i, err)
		}

		sh := t.shardFor(encoded)
		sh.mu.RLock()
		rec, ok := sh.rows[string(encoded)]
		sh.mu.RUnlock()
		if !ok {
			results = append(results, onlinestore.ReadResult{})
			continue
		}

		features, err := payload.Decode(rec.value)
		if err != nil {
			return nil, fmt.Errorf("memory: table %s: %w", table, err)
		}
		ts := rec.eventTS
		results = append(results, onlinestore.ReadResult{
			EventTS:  &ts,
			Features: onlinestore.FilterFeatures(features, requestedFeatures),
		})
	}
	return results, nil
}

// Reconcile creates missing tables and drops deleted ones. Existing tables
// keep their rows.
func (s *Store) Reconcile(ctx context.Context, tablesToDelete, tablesToKeep, entitiesToDelete, entitiesToKeep []string, partial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range tablesToKeep {
		id := onlinestore.TableID(s.project, table)
		if _, ok := s.tables[id]; !ok {
			s.tables[id] = newMemTable()
		}
	}
	for _, table := range tablesToDelete {
		delete(s.tables, onlinestore.TableID(s.project, table))
	}
	return nil
}

// Teardown discards all tables.
func (s *Store) Teardown(ctx context.Context, tables, entities []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]*memTable)
	return nil
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error {
	return nil
}
