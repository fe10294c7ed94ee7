package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func snapshotWith(tables ...string) *Snapshot {
	snap := &Snapshot{Project: "proj"}
	for _, name := range tables {
		snap.Tables = append(snap.Tables, TableSchema{
			Name:         name,
			EntityFields: []FieldSchema{{Name: "driver_id", Type: "int64"}},
		})
	}
	return snap
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		prev     *Snapshot
		next     *Snapshot
		wantKeep []string
		wantDel  []string
	}{
		{
			name:     "first apply",
			prev:     nil,
			next:     snapshotWith("a", "b"),
			wantKeep: []string{"a", "b"},
			wantDel:  nil,
		},
		{
			name:     "no change",
			prev:     snapshotWith("a", "b"),
			next:     snapshotWith("a", "b"),
			wantKeep: []string{"a", "b"},
			wantDel:  nil,
		},
		{
			name:     "table removed",
			prev:     snapshotWith("a", "b"),
			next:     snapshotWith("a"),
			wantKeep: []string{"a"},
			wantDel:  []string{"b"},
		},
		{
			name:     "table added and removed",
			prev:     snapshotWith("a", "b"),
			next:     snapshotWith("b", "c"),
			wantKeep: []string{"b", "c"},
			wantDel:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep, del := Diff(tt.prev, tt.next)
			assert.Equal(t, tt.wantKeep, keep)
			assert.Equal(t, tt.wantDel, del)
		})
	}
}

func TestFieldSchemaValueType(t *testing.T) {
	vt, err := FieldSchema{Name: "driver_id", Type: "int64"}.ValueType()
	assert.NoError(t, err)
	assert.EqualValues(t, 9, vt)

	_, err = FieldSchema{Name: "x", Type: "decimal"}.ValueType()
	assert.Error(t, err)
}

func TestSnapshotTableLookup(t *testing.T) {
	snap := snapshotWith("driver_hourly")
	assert.NotNil(t, snap.Table("driver_hourly"))
	assert.Nil(t, snap.Table("missing"))
	assert.Equal(t, []string{"driver_hourly"}, snap.TableNames())
}
