// Package payload serializes feature value mappings into the opaque byte
// blobs stored in online store rows. The format is msgpack compressed with
// Snappy; unlike encoded entity keys it is a local storage format, never used
// as a lookup identity, so it carries no cross-process determinism obligation.
package payload

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plumedb/plume/pkg/types"
)

// wireValue is the msgpack envelope for a single typed value. Exactly one
// payload field is meaningful, selected by Kind.
type wireValue struct {
	Kind uint32  `msgpack:"k"`
	Str  string  `msgpack:"s,omitempty"`
	Bin  []byte  `msgpack:"b,omitempty"`
	Num  int64   `msgpack:"n,omitempty"`
	Flt  float64 `msgpack:"f,omitempty"`
}

// Encode serializes a feature name → value mapping. Values of a type without
// a defined encoding are rejected, never coerced.
func Encode(features map[string]types.Value) ([]byte, error) {
	wire := make(map[string]wireValue, len(features))
	for name, v := range features {
		wv := wireValue{Kind: uint32(v.Type())}
		switch v.Type() {
		case types.TypeString:
			wv.Str = v.StringVal()
		case types.TypeBytes:
			wv.Bin = v.BytesVal()
		case types.TypeInt32:
			wv.Num = int64(v.Int32Val())
		case types.TypeInt64:
			wv.Num = v.Int64Val()
		case types.TypeFloat64:
			wv.Flt = v.Float64Val()
		default:
			return nil, fmt.Errorf("payload: feature %q: %w", name, types.ErrUnsupportedType)
		}
		wire[name] = wv
	}

	raw, err := msgpack.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("payload: marshal: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode deserializes a feature payload produced by Encode.
func Decode(blob []byte) (map[string]types.Value, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("payload: decompress: %w", err)
	}

	var wire map[string]wireValue
	if err := msgpack.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("payload: unmarshal: %w", err)
	}

	features := make(map[string]types.Value, len(wire))
	for name, wv := range wire {
		switch types.ValueType(wv.Kind) {
		case types.TypeString:
			features[name] = types.StringValue(wv.Str)
		case types.TypeBytes:
			features[name] = types.BytesValue(wv.Bin)
		case types.TypeInt32:
			features[name] = types.Int32Value(int32(wv.Num))
		case types.TypeInt64:
			features[name] = types.Int64Value(wv.Num)
		case types.TypeFloat64:
			features[name] = types.Float64Value(wv.Flt)
		default:
			return nil, fmt.Errorf("payload: feature %q has kind %d: %w", name, wv.Kind, types.ErrUnsupportedType)
		}
	}
	return features, nil
}
