package csvmap

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Decode parses tabular text into a document value according to the
// mapping configuration.
func Decode(data []byte, cfg *Config) (*docvalue.Value, error) {
	if cfg == nil {
		cfg = &Config{Header: true}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	src, err := charsetReader(data, cfg.Charset)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(src)
	r.Comma = cfg.comma()
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	cols := cfg.Columns
	if cfg.Header && len(records) > 0 {
		if len(cols) == 0 {
			for _, name := range records[0] {
				cols = append(cols, Column{Name: name})
			}
		}
		records = records[1:]
	}

	switch cfg.mapping() {
	case RowsOfArrays:
		return decodeRowsOfArrays(records, cols, cfg)
	case ColumnsOfArrays:
		return decodeColumnsOfArrays(records, cols, cfg)
	default:
		return decodeRowsOfObjects(records, cols, cfg)
	}
}

// Unmarshal decodes the table and converts it to T through the
// conversion registry.
func Unmarshal[T any](data []byte, cfg *Config) (T, error) {
	var zero T
	v, err := Decode(data, cfg)
	if err != nil {
		return zero, err
	}
	return convert.As[T](v)
}

func decodeRowsOfObjects(records [][]string, cols []Column, cfg *Config) (*docvalue.Value, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("rows-of-objects mapping needs column names from a header or the configuration")
	}
	rows := make([]*docvalue.Value, 0, len(records))
	for n, rec := range records {
		obj := docvalue.NewObject()
		for i, cell := range rec {
			if i >= len(cols) {
				break
			}
			v, err := parseCell(cell, cols[i].Type, cfg)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", n+1, cols[i].Name, err)
			}
			setAtPath(obj, cfg.columnPath(cols[i].Name), v)
		}
		row := docvalue.ObjectValue(obj)
		if len(cfg.ComputedColumns) > 0 {
			if err := applyComputed(obj, row, cfg.ComputedColumns); err != nil {
				return nil, fmt.Errorf("row %d: %w", n+1, err)
			}
		}
		rows = append(rows, row)
	}
	return docvalue.ArrayFromSlice(rows), nil
}

func decodeRowsOfArrays(records [][]string, cols []Column, cfg *Config) (*docvalue.Value, error) {
	rows := make([]*docvalue.Value, 0, len(records))
	for n, rec := range records {
		elems := make([]*docvalue.Value, 0, len(rec))
		for i, cell := range rec {
			typ := TypeInferred
			if i < len(cols) {
				typ = cols[i].Type
			}
			v, err := parseCell(cell, typ, cfg)
			if err != nil {
				return nil, fmt.Errorf("row %d, field %d: %w", n+1, i+1, err)
			}
			elems = append(elems, v)
		}
		rows = append(rows, docvalue.ArrayFromSlice(elems))
	}
	return docvalue.ArrayFromSlice(rows), nil
}

func decodeColumnsOfArrays(records [][]string, cols []Column, cfg *Config) (*docvalue.Value, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("columns-of-arrays mapping needs column names from a header or the configuration")
	}
	columns := make([][]*docvalue.Value, len(cols))
	for n, rec := range records {
		for i := range cols {
			if i >= len(rec) {
				continue
			}
			v, err := parseCell(rec[i], cols[i].Type, cfg)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", n+1, cols[i].Name, err)
			}
			columns[i] = append(columns[i], v)
		}
	}
	obj := docvalue.NewObject()
	for i, col := range cols {
		obj.Set(col.Name, docvalue.ArrayFromSlice(columns[i]))
	}
	return docvalue.ObjectValue(obj), nil
}

// parseCell turns one cell's text into a value. A configured subfield
// delimiter splits the cell into an array first.
func parseCell(cell string, typ ColumnType, cfg *Config) (*docvalue.Value, error) {
	if cfg.SubfieldDelimiter != "" && strings.Contains(cell, cfg.SubfieldDelimiter) {
		parts := strings.Split(cell, cfg.SubfieldDelimiter)
		elems := make([]*docvalue.Value, 0, len(parts))
		for _, p := range parts {
			v, err := parseScalar(p, typ)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return docvalue.ArrayFromSlice(elems), nil
	}
	return parseScalar(cell, typ)
}

func parseScalar(cell string, typ ColumnType) (*docvalue.Value, error) {
	switch typ {
	case TypeString:
		return docvalue.String(cell), nil
	case TypeInteger:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, docvalue.NewError(docvalue.NotAnInteger, cell)
		}
		return docvalue.Int(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, docvalue.NewError(docvalue.NotDouble, cell)
		}
		return docvalue.Float(f), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, docvalue.NewError(docvalue.NotBool, cell)
		}
		return docvalue.Bool(b), nil
	}
	// Inferred: empty is null, then boolean, integer, float, string.
	switch cell {
	case "":
		return docvalue.Null(), nil
	case "true":
		return docvalue.Bool(true), nil
	case "false":
		return docvalue.Bool(false), nil
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return docvalue.Int(n), nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return docvalue.Float(f), nil
	}
	return docvalue.String(cell), nil
}

// setAtPath places v inside obj at a nested member path, creating
// intermediate objects. Last write wins at every level.
func setAtPath(obj *docvalue.Object, path []string, v *docvalue.Value) {
	for _, step := range path[:len(path)-1] {
		next, ok := obj.Get(step)
		if !ok || next.Kind() != docvalue.KindObject {
			inner := docvalue.NewObject()
			obj.Set(step, docvalue.ObjectValue(inner))
			obj = inner
			continue
		}
		obj, _ = next.Object()
	}
	obj.Set(path[len(path)-1], v)
}

// compiledPrograms caches computed-column expressions across calls.
var compiledPrograms = struct {
	mu    sync.RWMutex
	progs map[string]*vm.Program
}{progs: make(map[string]*vm.Program)}

func compileComputed(src string) (*vm.Program, error) {
	compiledPrograms.mu.RLock()
	p, ok := compiledPrograms.progs[src]
	compiledPrograms.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	compiledPrograms.mu.Lock()
	compiledPrograms.progs[src] = p
	compiledPrograms.mu.Unlock()
	return p, nil
}

// applyComputed evaluates each computed column over the row's members
// and appends the results to the row object.
func applyComputed(obj *docvalue.Object, row *docvalue.Value, computed []Computed) error {
	env, err := convert.As[map[string]any](row)
	if err != nil {
		return err
	}
	for _, c := range computed {
		prog, err := compileComputed(c.Expr)
		if err != nil {
			return fmt.Errorf("compile column %s: %w", c.Name, err)
		}
		out, err := expr.Run(prog, env)
		if err != nil {
			return fmt.Errorf("evaluate column %s: %w", c.Name, err)
		}
		v, err := convert.ToValue(out)
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		obj.Set(c.Name, v)
	}
	return nil
}

// charsetReader wraps the input in a decoding transform for the
// configured source charset. Output text is always UTF-8.
func charsetReader(data []byte, charset string) (io.Reader, error) {
	src := bytes.NewReader(data)
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return src, nil
	case "utf-16le":
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		return transform.NewReader(src, dec), nil
	case "utf-16be":
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		return transform.NewReader(src, dec), nil
	case "latin-1", "iso-8859-1":
		return transform.NewReader(src, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252":
		return transform.NewReader(src, charmap.Windows1252.NewDecoder()), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}
