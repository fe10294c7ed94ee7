package types

import "errors"

// Encoding and storage errors
var (
	// ErrUnsupportedType is returned when a value's type has no defined
	// encoding. Encoders fail closed on it; there is no coercion.
	ErrUnsupportedType = errors.New("unsupported value type")

	// ErrStoreNotFound is returned when backing storage (a registry file,
	// an online store database) is absent on a load path. It distinguishes
	// "never initialized" from "corrupt"; teardown paths swallow it.
	ErrStoreNotFound = errors.New("store not found")
)
