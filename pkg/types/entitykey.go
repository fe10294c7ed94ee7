package types

// EntityKey is the set of typed identifier fields that addresses one row of
// feature values. Canonical identity is the (name, value) content, never the
// construction order: the key codec sorts field names before encoding, so two
// EntityKeys with equal content always encode to identical bytes.
type EntityKey map[string]Value

// FieldNames returns the field names in unspecified order.
func (k EntityKey) FieldNames() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	return names
}
