// Package csvmap maps document values onto flat or lightly nested
// tabular text. A Config enumerates the table shape: header presence,
// column names and types, the mapping kind, delimiters, nested-path
// flattening and pointer-to-column remapping. Computed columns are
// evaluated over each decoded row with the expr language.
package csvmap

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MappingKind selects how records relate to the document value.
type MappingKind string

const (
	// RowsOfObjects maps each record to an object keyed by column name.
	RowsOfObjects MappingKind = "rows_of_objects"
	// RowsOfArrays maps each record to a positional array.
	RowsOfArrays MappingKind = "rows_of_arrays"
	// ColumnsOfArrays maps the whole table to one object whose members
	// are per-column arrays.
	ColumnsOfArrays MappingKind = "columns_of_arrays"
)

// ColumnType pins the parse of a column's cells. The empty type infers
// integers, floats and booleans from the cell text.
type ColumnType string

const (
	TypeInferred ColumnType = ""
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeBoolean  ColumnType = "boolean"
)

// Column names one table column and optionally pins its cell type.
type Column struct {
	Name string     `yaml:"name" json:"name"`
	Type ColumnType `yaml:"type,omitempty" json:"type,omitempty"`
}

// Computed defines a column synthesized from each decoded row. The
// expression sees the row's members as variables.
type Computed struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// Config enumerates the table shape for one decode or encode.
type Config struct {
	// Header reports whether the first record carries column names.
	Header bool `yaml:"header" json:"header"`

	// Columns names the columns and optionally their types. When empty
	// and Header is set, names come from the header record.
	Columns []Column `yaml:"columns,omitempty" json:"columns,omitempty"`

	Mapping MappingKind `yaml:"mapping,omitempty" json:"mapping,omitempty"`

	// Delimiter separates fields; default comma.
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`

	// SubfieldDelimiter splits one cell into an array of subvalues when
	// set; nested arrays join with it on encode.
	SubfieldDelimiter string `yaml:"subfield_delimiter,omitempty" json:"subfield_delimiter,omitempty"`

	// FlattenPaths treats dotted column names as nested object paths.
	FlattenPaths bool `yaml:"flatten_paths,omitempty" json:"flatten_paths,omitempty"`

	// PathMapping remaps JSON pointers to column names, overriding both
	// the column name and FlattenPaths for the named locations.
	PathMapping map[string]string `yaml:"path_mapping,omitempty" json:"path_mapping,omitempty"`

	// Charset names the source text encoding: utf-8 (default), utf-16le,
	// utf-16be, latin-1 or windows-1252. Output is always UTF-8.
	Charset string `yaml:"charset,omitempty" json:"charset,omitempty"`

	// ComputedColumns are appended to each row-of-objects record after
	// the physical columns decode.
	ComputedColumns []Computed `yaml:"computed_columns,omitempty" json:"computed_columns,omitempty"`
}

// LoadConfig reads a YAML mapping configuration from a file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read csv config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse csv config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("csv config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.mapping() {
	case RowsOfObjects, RowsOfArrays, ColumnsOfArrays:
	default:
		return fmt.Errorf("unknown mapping kind %q", c.Mapping)
	}
	if len(c.Delimiter) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	for _, col := range c.Columns {
		switch col.Type {
		case TypeInferred, TypeString, TypeInteger, TypeFloat, TypeBoolean:
		default:
			return fmt.Errorf("column %s: unknown type %q", col.Name, col.Type)
		}
	}
	return nil
}

func (c *Config) mapping() MappingKind {
	if c.Mapping == "" {
		return RowsOfObjects
	}
	return c.Mapping
}

func (c *Config) comma() rune {
	if c.Delimiter == "" {
		return ','
	}
	return rune(c.Delimiter[0])
}

// columnPath resolves where a column's values live inside a record
// object: the pointer mapping wins, then dotted-path flattening, then
// the bare name.
func (c *Config) columnPath(name string) []string {
	for ptr, col := range c.PathMapping {
		if col == name {
			return splitPointer(ptr)
		}
	}
	if c.FlattenPaths && strings.Contains(name, ".") {
		return strings.Split(name, ".")
	}
	return []string{name}
}

// splitPointer breaks a JSON pointer into reference tokens, undoing the
// two escape sequences.
func splitPointer(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	tokens := strings.Split(ptr, "/")
	for i, t := range tokens {
		t = strings.ReplaceAll(t, "~1", "/")
		tokens[i] = strings.ReplaceAll(t, "~0", "~")
	}
	return tokens
}
