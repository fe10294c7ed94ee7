// Package types provides core data types for Plume.
package types

import (
	"fmt"
	"math"
)

// ValueType identifies the logical type of a feature or entity-key value.
// The numeric values follow the Arrow logical-type ids used by other Plume
// SDKs, so keys encoded by any implementation are byte-compatible.
type ValueType uint32

const (
	// TypeInvalid is the zero value; it has no encoding.
	TypeInvalid ValueType = 0

	// TypeInt32 is a 32-bit signed integer.
	TypeInt32 ValueType = 7

	// TypeInt64 is a 64-bit signed integer.
	TypeInt64 ValueType = 9

	// TypeFloat64 is a 64-bit IEEE 754 float. Floats carry feature values
	// only; they have no entity-key encoding.
	TypeFloat64 ValueType = 12

	// TypeString is a UTF-8 string.
	TypeString ValueType = 13

	// TypeBytes is a raw byte string.
	TypeBytes ValueType = 14
)

// String returns a human-readable name for the value type.
func (t ValueType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("invalid(%d)", uint32(t))
	}
}

// ParseValueType converts a type name as written in feature definition files
// ("int32", "int64", "float64", "string", "bytes") to its ValueType.
func ParseValueType(name string) (ValueType, error) {
	switch name {
	case "int32":
		return TypeInt32, nil
	case "int64":
		return TypeInt64, nil
	case "float64":
		return TypeFloat64, nil
	case "string":
		return TypeString, nil
	case "bytes":
		return TypeBytes, nil
	default:
		return TypeInvalid, fmt.Errorf("unknown value type %q", name)
	}
}

// Value is a typed scalar: exactly one variant is set, identified by Type.
// The zero Value has TypeInvalid and is rejected by every encoder.
type Value struct {
	typ ValueType
	str string
	bin []byte
	num int64 // backs both int32 and int64 variants
}

// StringValue returns a Value holding a UTF-8 string.
func StringValue(s string) Value {
	return Value{typ: TypeString, str: s}
}

// BytesValue returns a Value holding raw bytes. The slice is not copied.
func BytesValue(b []byte) Value {
	return Value{typ: TypeBytes, bin: b}
}

// Int32Value returns a Value holding a 32-bit signed integer.
func Int32Value(v int32) Value {
	return Value{typ: TypeInt32, num: int64(v)}
}

// Int64Value returns a Value holding a 64-bit signed integer.
func Int64Value(v int64) Value {
	return Value{typ: TypeInt64, num: v}
}

// Float64Value returns a Value holding a 64-bit float.
func Float64Value(v float64) Value {
	return Value{typ: TypeFloat64, num: int64(math.Float64bits(v))}
}

// Type returns the variant tag of the value.
func (v Value) Type() ValueType {
	return v.typ
}

// StringVal returns the string variant. Valid only when Type is TypeString.
func (v Value) StringVal() string {
	return v.str
}

// BytesVal returns the bytes variant. Valid only when Type is TypeBytes.
func (v Value) BytesVal() []byte {
	return v.bin
}

// Int32Val returns the int32 variant. Valid only when Type is TypeInt32.
func (v Value) Int32Val() int32 {
	return int32(v.num)
}

// Int64Val returns the int64 variant. Valid only when Type is TypeInt64.
func (v Value) Int64Val() int64 {
	return v.num
}

// Float64Val returns the float64 variant. Valid only when Type is TypeFloat64.
func (v Value) Float64Val() float64 {
	return math.Float64frombits(uint64(v.num))
}

// Native returns the value as its native Go type, or nil for the zero Value.
func (v Value) Native() interface{} {
	switch v.typ {
	case TypeInt32:
		return int32(v.num)
	case TypeInt64:
		return v.num
	case TypeFloat64:
		return v.Float64Val()
	case TypeString:
		return v.str
	case TypeBytes:
		return v.bin
	default:
		return nil
	}
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeBytes:
		return string(v.bin) == string(other.bin)
	case TypeString:
		return v.str == other.str
	default:
		return v.num == other.num
	}
}
