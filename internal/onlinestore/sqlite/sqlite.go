// Package sqlite implements the online store contract on a single SQLite
// file, one physical table per feature table. It is the reference embedded
// backend: suitable for local serving and development, with concurrency
// delegated entirely to SQLite's own file locking.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/plumedb/plume/internal/onlinestore"
	"github.com/plumedb/plume/internal/payload"
	"github.com/plumedb/plume/pkg/serialize"
	"github.com/plumedb/plume/pkg/types"
)

// Config holds the SQLite backend configuration.
type Config struct {
	// Path is the database file. Relative paths resolve against RepoPath.
	Path string

	// RepoPath is the repository root used to resolve relative paths.
	RepoPath string

	// Project namespaces physical table names as {project}_{table}.
	Project string
}

// Store is a SQLite-backed online store. The database connection is opened
// lazily on first use and lives until Teardown or Close. The single cached
// connection is shared by all calls and is not safe for concurrent use.
type Store struct {
	cfg Config
	db  *sql.DB
}

// New creates a SQLite online store. No file is touched until the first
// operation needs the database.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) dbPath() string {
	if filepath.IsAbs(s.cfg.Path) || s.cfg.RepoPath == "" {
		return s.cfg.Path
	}
	return filepath.Join(s.cfg.RepoPath, s.cfg.Path)
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	path := s.dbPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// SQLite supports one writer at a time; cap the pool at a single
	// connection to avoid SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	return db, nil
}

type encodedRow struct {
	key     []byte
	value   []byte
	eventTS time.Time
	created sql.NullTime
}

// encodeRows serializes a batch up front, before any database work, so that
// an encoding failure leaves the table untouched.
func encodeRows(rows []onlinestore.Row) ([]encodedRow, error) {
	out := make([]encodedRow, 0, len(rows))
	for i, row := range rows {
		key, err := serialize.EncodeKey(row.EntityKey)
		if err != nil {
			return nil, fmt.Errorf("sqlite: row %d: %w", i, err)
		}
		value, err := payload.Encode(row.Features)
		if err != nil {
			return nil, fmt.Errorf("sqlite: row %d: %w", i, err)
		}
		er := encodedRow{key: key, value: value, eventTS: row.EventTS.UTC()}
		if row.CreatedTS != nil {
			er.created = sql.NullTime{Time: row.CreatedTS.UTC(), Valid: true}
		}
		out = append(out, er)
	}
	return out, nil
}

// WriteBatch upserts rows in one transaction. SQLite predates UPSERT syntax
// in some deployed versions, so the upsert is emulated: an UPDATE matching
// the primary key followed by INSERT OR IGNORE.
func (s *Store) WriteBatch(ctx context.Context, table string, rows []onlinestore.Row, progress onlinestore.ProgressFunc) error {
	encoded, err := encodeRows(rows)
	if err != nil {
		return err
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	tableID := onlinestore.TableID(s.cfg.Project, table)
	updateSQL := fmt.Sprintf(
		`UPDATE %s SET value = ?, event_ts = ?, created_ts = ? WHERE entity_key = ?`, tableID)
	insertSQL := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (entity_key, value, event_ts, created_ts) VALUES (?, ?, ?, ?)`, tableID)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin write batch: %w", err)
	}

	for _, er := range encoded {
		if _, err := tx.ExecContext(ctx, updateSQL, er.value, er.eventTS, er.created, er.key); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: update %s: %w", tableID, err)
		}
		if _, err := tx.ExecContext(ctx, insertSQL, er.key, er.value, er.eventTS, er.created); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: insert %s: %w", tableID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit write batch: %w", err)
	}

	if progress != nil {
		progress(len(rows))
	}
	return nil
}

// ReadBatch fetches all requested keys in one query, groups the result set by
// encoded key client-side, and projects it back onto the caller's key order.
func (s *Store) ReadBatch(ctx context.Context, table string, keys []types.EntityKey, requestedFeatures []string) ([]onlinestore.ReadResult, error) {
	results := make([]onlinestore.ReadResult, 0, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	if s.db == nil {
		if _, err := os.Stat(s.dbPath()); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("sqlite: database %q: %w (have you run \"plume apply\"?)",
				s.dbPath(), types.ErrStoreNotFound)
		}
	}

	encodedKeys := make([][]byte, len(keys))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		b, err := serialize.EncodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("sqlite: key %d: %w", i, err)
		}
		encodedKeys[i] = b
		args[i] = b
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	tableID := onlinestore.TableID(s.cfg.Project, table)
	query := fmt.Sprintf(
		`SELECT entity_key, value, event_ts FROM %s WHERE entity_key IN (%s) ORDER BY entity_key`,
		tableID, strings.TrimRight(strings.Repeat("?,", len(keys)), ","))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read %s: %w", tableID, err)
	}
	defer rows.Close()

	type storedRow struct {
		value   []byte
		eventTS time.Time
	}
	found := make(map[string]storedRow, len(keys))
	for rows.Next() {
		var key, value []byte
		var eventTS time.Time
		if err := rows.Scan(&key, &value, &eventTS); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", tableID, err)
		}
		found[string(key)] = storedRow{value: value, eventTS: eventTS}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read %s: %w", tableID, err)
	}

	for i := range keys {
		sr, ok := found[string(encodedKeys[i])]
		if !ok {
			results = append(results, onlinestore.ReadResult{})
			continue
		}
		features, err := payload.Decode(sr.value)
		if err != nil {
			return nil, fmt.Errorf("sqlite: table %s: %w", tableID, err)
		}
		ts := sr.eventTS
		results = append(results, onlinestore.ReadResult{
			EventTS:  &ts,
			Features: onlinestore.FilterFeatures(features, requestedFeatures),
		})
	}
	return results, nil
}

// Reconcile creates backing tables and their entity-key indexes for every
// table to keep and drops tables to delete. Safe to call repeatedly with the
// same arguments.
func (s *Store) Reconcile(ctx context.Context, tablesToDelete, tablesToKeep, entitiesToDelete, entitiesToKeep []string, partial bool) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	for _, table := range tablesToKeep {
		tableID := onlinestore.TableID(s.cfg.Project, table)
		createSQL := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (entity_key BLOB, value BLOB, event_ts timestamp, created_ts timestamp, PRIMARY KEY(entity_key))`,
			tableID)
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("sqlite: create %s: %w", tableID, err)
		}
		indexSQL := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_ek ON %s (entity_key)`, tableID, tableID)
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("sqlite: index %s: %w", tableID, err)
		}
	}

	for _, table := range tablesToDelete {
		tableID := onlinestore.TableID(s.cfg.Project, table)
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableID)); err != nil {
			return fmt.Errorf("sqlite: drop %s: %w", tableID, err)
		}
	}

	// Entities have no physical storage of their own; rows are keyed by
	// the encoded entity key alone.
	return nil
}

// Teardown closes the connection and unlinks the database file. A file that
// is already gone is not an error.
func (s *Store) Teardown(ctx context.Context, tables, entities []string) error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.dbPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sqlite: remove %s: %w", s.dbPath(), err)
	}
	return nil
}

// Close releases the cached connection, if one was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}
