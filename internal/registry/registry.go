// Package registry stores the feature schema snapshot that drives online
// store reconciliation: which feature tables exist and which typed fields
// make up their entity keys. The snapshot is versioned on every write and can
// live on the local filesystem or in S3.
package registry

import (
	"context"
	"time"

	"github.com/plumedb/plume/pkg/types"
)

// FieldSchema names one typed field of a table: an entity-key field or a
// feature. Type holds the textual name as written in definition files.
type FieldSchema struct {
	Name string `yaml:"name" msgpack:"name"`
	Type string `yaml:"type" msgpack:"type"`
}

// ValueType resolves the field's textual type name.
func (f FieldSchema) ValueType() (types.ValueType, error) {
	return types.ParseValueType(f.Type)
}

// TableSchema describes one feature table.
type TableSchema struct {
	Name         string        `yaml:"name" msgpack:"name"`
	EntityFields []FieldSchema `yaml:"entity_fields" msgpack:"entity_fields"`
	Features     []FieldSchema `yaml:"features" msgpack:"features"`
}

// Snapshot is the registry's full state at one version. VersionID and
// LastUpdated are stamped by the store on every write.
type Snapshot struct {
	VersionID   string        `yaml:"version_id" msgpack:"version_id"`
	LastUpdated time.Time     `yaml:"last_updated" msgpack:"last_updated"`
	Project     string        `yaml:"project" msgpack:"project"`
	Tables      []TableSchema `yaml:"tables" msgpack:"tables"`
}

// TableNames returns the names of all tables in the snapshot.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Table returns the schema for the named table, or nil.
func (s *Snapshot) Table(name string) *TableSchema {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Diff compares the previously applied snapshot with the desired one and
// returns the table sets for reconciliation: every desired table is kept,
// every previously applied table absent from the desired state is deleted.
// prev may be nil when nothing was applied before.
func Diff(prev, next *Snapshot) (keep, del []string) {
	keep = next.TableNames()

	if prev == nil {
		return keep, nil
	}
	desired := make(map[string]bool, len(keep))
	for _, name := range keep {
		desired[name] = true
	}
	for _, name := range prev.TableNames() {
		if !desired[name] {
			del = append(del, name)
		}
	}
	return keep, del
}

// Store persists registry snapshots. A load from storage that was never
// written fails with types.ErrStoreNotFound.
type Store interface {
	// GetSnapshot loads the current snapshot.
	GetSnapshot(ctx context.Context) (*Snapshot, error)

	// UpdateSnapshot persists the snapshot, stamping a fresh VersionID
	// and LastUpdated before writing.
	UpdateSnapshot(ctx context.Context, snap *Snapshot) error

	// Teardown deletes the stored snapshot. Missing storage is not an
	// error.
	Teardown(ctx context.Context) error
}
