// Package serialize implements the canonical binary encoding for entity keys
// and scalar values. Encoded keys are used as opaque storage primary keys and
// scan prefixes, so the encoding must be byte-for-byte deterministic across
// processes, hosts, and SDK implementations. There is no decode path for keys.
package serialize

import (
	"encoding/binary"
	"fmt"

	"github.com/plumedb/plume/pkg/types"
)

// EncodeValue encodes a single scalar as a length-prefixed byte string: a
// little-endian uint32 payload length followed by the payload. Strings encode
// as their UTF-8 bytes, bytes pass through unchanged, int32 as exactly 4 and
// int64 as exactly 8 little-endian two's-complement bytes regardless of the
// host word size. Any other type is a fatal encoding error.
func EncodeValue(v types.Value) ([]byte, error) {
	var payload []byte
	switch v.Type() {
	case types.TypeString:
		payload = []byte(v.StringVal())
	case types.TypeBytes:
		payload = v.BytesVal()
	case types.TypeInt32:
		payload = binary.LittleEndian.AppendUint32(nil, uint32(v.Int32Val()))
	case types.TypeInt64:
		payload = binary.LittleEndian.AppendUint64(nil, uint64(v.Int64Val()))
	default:
		return nil, fmt.Errorf("serialize: cannot encode %s value: %w", v.Type(), types.ErrUnsupportedType)
	}

	out := make([]byte, 0, 4+len(payload))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...), nil
}

// EncodeRow applies EncodeValue element-wise, preserving the caller's column
// order. The caller is responsible for that order matching its key header.
func EncodeRow(values []types.Value) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("serialize: column %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
