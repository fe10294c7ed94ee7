package serialize

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/plumedb/plume/pkg/types"
)

// FieldColumn is one entity-key field of a columnar batch: a name, a declared
// value type, and one value per row.
type FieldColumn struct {
	Name   string
	Type   types.ValueType
	Values []types.Value
}

func appendTypeTag(dst []byte, t types.ValueType) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(t))
}

// EncodeKeyPrefix encodes the field-name portion of an entity key: field names
// sorted ascending, each emitted as the string type tag followed by the name's
// UTF-8 bytes. The result prefixes every key produced by EncodeKey for the
// same field set, independent of field values, so it can drive prefix scans.
func EncodeKeyPrefix(fieldNames []string) []byte {
	sorted := make([]string, len(fieldNames))
	copy(sorted, fieldNames)
	sort.Strings(sorted)

	var out []byte
	for _, name := range sorted {
		out = appendTypeTag(out, types.TypeString)
		out = append(out, name...)
	}
	return out
}

// keyHeader emits one entry per field, in the caller's (already sorted) order:
// the string type tag, the name bytes, and the field's value type tag. The
// header is identical for every row of one schema, so batch encoding computes
// it once.
func keyHeader(names []string, valueTypes []types.ValueType) []byte {
	var out []byte
	for i, name := range names {
		out = appendTypeTag(out, types.TypeString)
		out = append(out, name...)
		out = appendTypeTag(out, valueTypes[i])
	}
	return out
}

// EncodeKey encodes an entity key to its canonical byte string: the key header
// followed by each field's encoded value, fields ordered by name ascending.
// Sorting makes the result independent of how the input map was built; the
// same (name, value) content always yields the same bytes. This is the sole
// identity used for storage lookups, on both the write and the read path.
func EncodeKey(key types.EntityKey) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("serialize: entity key has no fields")
	}

	names := key.FieldNames()
	sort.Strings(names)

	valueTypes := make([]types.ValueType, len(names))
	for i, name := range names {
		valueTypes[i] = key[name].Type()
	}

	out := keyHeader(names, valueTypes)
	for _, name := range names {
		b, err := EncodeValue(key[name])
		if err != nil {
			return nil, fmt.Errorf("serialize: field %q: %w", name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodeKeyBatch encodes a columnar batch of entity keys, one byte string per
// row. Row i is byte-identical to EncodeKey applied to row i's fields as a
// mapping; the batch form only saves recomputing the shared header. Every
// column must carry the same number of values, and each value must match its
// column's declared type.
func EncodeKeyBatch(cols []FieldColumn) ([][]byte, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("serialize: key batch has no field columns")
	}

	numRows := len(cols[0].Values)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if len(c.Values) != numRows {
			return nil, fmt.Errorf("serialize: column %q has %d values, want %d", c.Name, len(c.Values), numRows)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("serialize: duplicate field column %q", c.Name)
		}
		seen[c.Name] = true
	}

	sorted := make([]FieldColumn, len(cols))
	copy(sorted, cols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	names := make([]string, len(sorted))
	valueTypes := make([]types.ValueType, len(sorted))
	for i, c := range sorted {
		names[i] = c.Name
		valueTypes[i] = c.Type
	}
	header := keyHeader(names, valueTypes)

	// Encode column-wise first, matching the columnar input layout.
	encoded := make([][][]byte, len(sorted))
	for ci, c := range sorted {
		encoded[ci] = make([][]byte, numRows)
		for ri, v := range c.Values {
			if v.Type() != c.Type {
				return nil, fmt.Errorf("serialize: column %q declares %s but row %d holds %s",
					c.Name, c.Type, ri, v.Type())
			}
			b, err := EncodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("serialize: column %q row %d: %w", c.Name, ri, err)
			}
			encoded[ci][ri] = b
		}
	}

	// Assemble row-wise. Each row gets its own freshly allocated buffer;
	// rows must never share an accumulator.
	keys := make([][]byte, numRows)
	for ri := 0; ri < numRows; ri++ {
		size := len(header)
		for ci := range sorted {
			size += len(encoded[ci][ri])
		}
		buf := make([]byte, 0, size)
		buf = append(buf, header...)
		for ci := range sorted {
			buf = append(buf, encoded[ci][ri]...)
		}
		keys[ri] = buf
	}
	return keys, nil
}
