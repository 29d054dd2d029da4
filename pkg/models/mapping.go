package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MappingSchema describes how columns of a source partition file map onto
// the raw table.
type MappingSchema struct {
	Entity          string        `json:"entity"`
	PartitionColumn string        `json:"partitionColumn"`
	Fields          []FieldConfig `json:"fields"`
}

type FieldConfig struct {
	Source    string `json:"source"`
	SQLColumn string `json:"sql"`
	Type      string `json:"type"`
	Format    string `json:"format,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
}

// Columns returns the raw table columns in load order, partition column last.
func (m *MappingSchema) Columns() []string {
	cols := make([]string, 0, len(m.Fields)+1)
	for _, f := range m.Fields {
		cols = append(cols, f.SQLColumn)
	}
	return append(cols, m.PartitionColumn)
}

func (m *MappingSchema) Validate() error {
	if m.PartitionColumn == "" {
		return fmt.Errorf("mapping %q: partitionColumn is required", m.Entity)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("mapping %q: no fields", m.Entity)
	}
	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		if f.Source == "" || f.SQLColumn == "" {
			return fmt.Errorf("mapping %q: field %d needs source and sql", m.Entity, i)
		}
		switch f.Type {
		case "int", "float", "string", "datetime":
		default:
			return fmt.Errorf("mapping %q: field %s has unsupported type %q", m.Entity, f.Source, f.Type)
		}
		col := strings.ToLower(f.SQLColumn)
		if seen[col] || col == strings.ToLower(m.PartitionColumn) {
			return fmt.Errorf("mapping %q: column %s mapped twice", m.Entity, f.SQLColumn)
		}
		seen[col] = true
	}
	return nil
}

func LoadMapping(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
