package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinitions reads a feature definitions file (YAML) into a Snapshot
// representing the desired state. Version fields are left unset; the registry
// store stamps them on write.
func LoadDefinitions(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read definitions: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("registry: parse definitions: %w", err)
	}

	if err := validateDefinitions(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func validateDefinitions(snap *Snapshot) error {
	seen := make(map[string]bool, len(snap.Tables))
	for _, table := range snap.Tables {
		if table.Name == "" {
			return fmt.Errorf("registry: definitions contain a table without a name")
		}
		if seen[table.Name] {
			return fmt.Errorf("registry: duplicate table %q", table.Name)
		}
		seen[table.Name] = true

		if len(table.EntityFields) == 0 {
			return fmt.Errorf("registry: table %q has no entity fields", table.Name)
		}
		for _, field := range append(append([]FieldSchema{}, table.EntityFields...), table.Features...) {
			if field.Name == "" {
				return fmt.Errorf("registry: table %q has a field without a name", table.Name)
			}
			if _, err := field.ValueType(); err != nil {
				return fmt.Errorf("registry: table %q field %q: %w", table.Name, field.Name, err)
			}
		}
	}
	return nil
}
