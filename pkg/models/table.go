package models

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var defaultTables []byte

// Field is one canonical key with the label spellings known to mean it.
type Field struct {
	Key      Key      `yaml:"key"`
	Label    string   `yaml:"label"`
	Variants []string `yaml:"variants"`
}

// Table is the canonical field table of one statement kind.
type Table struct {
	Kind   Kind     `yaml:"kind"`
	Title  string   `yaml:"title"`
	Sheets []string `yaml:"sheets"`
	Fields []Field  `yaml:"fields"`
}

// Keys returns the table keys in enumeration order.
func (t Table) Keys() []Key {
	keys := make([]Key, len(t.Fields))
	for i, f := range t.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Label returns the display label for key, or the key itself.
func (t Table) Label(key Key) string {
	for _, f := range t.Fields {
		if f.Key == key {
			return f.Label
		}
	}
	return string(key)
}

// Tables holds one table per statement kind.
type Tables map[Kind]Table

type tablesFile struct {
	Statements []Table `yaml:"statements"`
}

// DefaultTables returns the field tables shipped with the code.
func DefaultTables() Tables {
	t, err := ParseTables(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded field tables: %v", err))
	}
	return t
}

// LoadTables reads field tables from a YAML file. An empty path returns the
// embedded defaults.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates YAML field tables. Every statement kind
// must be present exactly once and every field needs at least one variant.
func ParseTables(data []byte) (Tables, error) {
	var file tablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse field tables: %w", err)
	}

	tables := make(Tables, len(file.Statements))
	for _, t := range file.Statements {
		if _, dup := tables[t.Kind]; dup {
			return nil, fmt.Errorf("field tables: %s defined twice", t.Kind)
		}
		seen := make(map[Key]bool, len(t.Fields))
		for i, f := range t.Fields {
			if f.Key == "" {
				return nil, fmt.Errorf("field tables: %s field %d has no key", t.Kind, i)
			}
			if seen[f.Key] {
				return nil, fmt.Errorf("field tables: %s key %s defined twice", t.Kind, f.Key)
			}
			seen[f.Key] = true
			if len(f.Variants) == 0 {
				return nil, fmt.Errorf("field tables: %s key %s has no variants", t.Kind, f.Key)
			}
			if f.Label == "" {
				t.Fields[i].Label = f.Variants[0]
			}
		}
		tables[t.Kind] = t
	}
	for _, k := range Kinds {
		if _, ok := tables[k]; !ok {
			return nil, fmt.Errorf("field tables: missing %s", k)
		}
	}
	return tables, nil
}
