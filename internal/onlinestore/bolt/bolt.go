// Package bolt implements the online store contract on a bbolt file, one
// bucket per feature table. It exists alongside the SQLite backend to keep
// the contract honest about being backend-pluggable: bbolt has native
// last-write-wins puts and transactional batches, so the same semantics fall
// out of a much smaller mechanism.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bbolt "go.etcd.io/bbolt"

	"github.com/plumedb/plume/internal/onlinestore"
	"github.com/plumedb/plume/internal/payload"
	"github.com/plumedb/plume/pkg/serialize"
	"github.com/plumedb/plume/pkg/types"
)

// Config holds the bbolt backend configuration.
type Config struct {
	// Path is the database file. Relative paths resolve against RepoPath.
	Path string

	// RepoPath is the repository root used to resolve relative paths.
	RepoPath string

	// Project namespaces bucket names as {project}_{table}.
	Project string
}

// record is the stored envelope for one row. bbolt values are single byte
// strings, so the timestamps ride along with the feature payload.
type record struct {
	Value     []byte `msgpack:"v"`
	EventTS   int64  `msgpack:"e"` // unix nanoseconds, UTC
	CreatedTS *int64 `msgpack:"c,omitempty"`
}

// Store is a bbolt-backed online store. The database handle is opened lazily
// and shared by all calls; callers serialize access.
type Store struct {
	cfg Config
	db  *bbolt.DB
}

// New creates a bbolt online store without touching the file.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) dbPath() string {
	if filepath.IsAbs(s.cfg.Path) || s.cfg.RepoPath == "" {
		return s.cfg.Path
	}
	return filepath.Join(s.cfg.RepoPath, s.cfg.Path)
}

func (s *Store) conn() (*bbolt.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	path := s.dbPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("bolt: create data directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	s.db = db
	return db, nil
}

func (s *Store) bucketName(table string) []byte {
	return []byte(onlinestore.TableID(s.cfg.Project, table))
}

// WriteBatch upserts rows inside one bbolt update transaction; every put
// commits together or the whole batch rolls back. Rows are serialized before
// the transaction opens so an encoding failure leaves storage untouched.
func (s *Store) WriteBatch(ctx context.Context, table string, rows []onlinestore.Row, progress onlinestore.ProgressFunc) error {
	type encodedRow struct {
		key []byte
		rec []byte
	}
	encoded := make([]encodedRow, 0, len(rows))
	for i, row := range rows {
		key, err := serialize.EncodeKey(row.EntityKey)
		if err != nil {
			return fmt.Errorf("bolt: row %d: %w", i, err)
		}
		value, err := payload.Encode(row.Features)
		if err != nil {
			return fmt.Errorf("bolt: row %d: %w", i, err)
		}
		rec := record{Value: value, EventTS: row.EventTS.UTC().UnixNano()}
		if row.CreatedTS != nil {
			created := row.CreatedTS.UTC().UnixNano()
			rec.CreatedTS = &created
		}
		blob, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("bolt: row %d: marshal record: %w", i, err)
		}
		encoded = append(encoded, encodedRow{key: key, rec: blob})
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	name := s.bucketName(table)
	err = db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if bucket == nil {
			return fmt.Errorf("bolt: no such table %s", name)
		}
		for _, er := range encoded {
			if err := bucket.Put(er.key, er.rec); err != nil {
				return fmt.Errorf("bolt: put into %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if progress != nil {
		progress(len(rows))
	}
	return nil
}

// ReadBatch resolves all keys inside one read transaction and maps results
// back onto the caller's key order.
func (s *Store) ReadBatch(ctx context.Context, table string, keys []types.EntityKey, requestedFeatures []string) ([]onlinestore.ReadResult, error) {
	results := make([]onlinestore.ReadResult, 0, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	if s.db == nil {
		if _, err := os.Stat(s.dbPath()); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bolt: database %q: %w (have you run \"plume apply\"?)",
				s.dbPath(), types.ErrStoreNotFound)
		}
	}

	encodedKeys := make([][]byte, len(keys))
	for i, key := range keys {
		b, err := serialize.EncodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("bolt: key %d: %w", i, err)
		}
		encodedKeys[i] = b
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	name := s.bucketName(table)
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if bucket == nil {
			return fmt.Errorf("bolt: no such table %s", name)
		}
		for _, key := range encodedKeys {
			blob := bucket.Get(key)
			if blob == nil {
				results = append(results, onlinestore.ReadResult{})
				continue
			}
			var rec record
			if err := msgpack.Unmarshal(blob, &rec); err != nil {
				return fmt.Errorf("bolt: table %s: unmarshal record: %w", name, err)
			}
			features, err := payload.Decode(rec.Value)
			if err != nil {
				return fmt.Errorf("bolt: table %s: %w", name, err)
			}
			ts := time.Unix(0, rec.EventTS).UTC()
			results = append(results, onlinestore.ReadResult{
				EventTS:  &ts,
				Features: onlinestore.FilterFeatures(features, requestedFeatures),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Reconcile creates buckets for tables to keep and deletes buckets for
// tables to delete. Safe to call repeatedly.
func (s *Store) Reconcile(ctx context.Context, tablesToDelete, tablesToKeep, entitiesToDelete, entitiesToKeep []string, partial bool) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		for _, table := range tablesToKeep {
			if _, err := tx.CreateBucketIfNotExists(s.bucketName(table)); err != nil {
				return fmt.Errorf("bolt: create table %s: %w", table, err)
			}
		}
		for _, table := range tablesToDelete {
			err := tx.DeleteBucket(s.bucketName(table))
			if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("bolt: drop table %s: %w", table, err)
			}
		}
		return nil
	})
}

// Teardown closes the handle and unlinks the database file; a missing file is
// not an error.
func (s *Store) Teardown(ctx context.Context, tables, entities []string) error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.dbPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("bolt: remove %s: %w", s.dbPath(), err)
	}
	return nil
}

// Close releases the database handle, if one was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("bolt: close: %w", err)
	}
	return nil
}
