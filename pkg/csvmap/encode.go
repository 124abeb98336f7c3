package csvmap

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/twinfer/docbin/pkg/convert"
	"github.com/twinfer/docbin/pkg/docvalue"
)

// Encode renders a document value as tabular text according to the
// mapping configuration. Output is UTF-8 regardless of the configured
// source charset.
func Encode(v *docvalue.Value, cfg *Config) ([]byte, error) {
	if cfg == nil {
		cfg = &Config{Header: true}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = cfg.comma()

	var err error
	switch cfg.mapping() {
	case RowsOfArrays:
		err = encodeRowsOfArrays(w, v, cfg)
	case ColumnsOfArrays:
		err = encodeColumnsOfArrays(w, v, cfg)
	default:
		err = encodeRowsOfObjects(w, v, cfg)
	}
	if err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal converts a native value through the conversion registry and
// encodes it.
func Marshal[T any](x T, cfg *Config) ([]byte, error) {
	v, err := convert.ToValue(x)
	if err != nil {
		return nil, err
	}
	return Encode(v, cfg)
}

func encodeRowsOfObjects(w *csv.Writer, v *docvalue.Value, cfg *Config) error {
	rows, err := v.Elements()
	if err != nil {
		return err
	}
	cols := cfg.Columns
	if len(cols) == 0 && len(rows) > 0 {
		cols, err = deriveColumns(rows[0], cfg)
		if err != nil {
			return err
		}
	}
	if cfg.Header {
		if err := w.Write(columnNames(cols)); err != nil {
			return err
		}
	}
	for n, row := range rows {
		obj, err := row.Object()
		if err != nil {
			return fmt.Errorf("row %d: %w", n+1, err)
		}
		rec := make([]string, len(cols))
		for i, col := range cols {
			cell := getAtPath(obj, cfg.columnPath(col.Name))
			if cell == nil {
				continue
			}
			rec[i], err = cellText(cell, cfg)
			if err != nil {
				return fmt.Errorf("row %d, column %s: %w", n+1, col.Name, err)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func encodeRowsOfArrays(w *csv.Writer, v *docvalue.Value, cfg *Config) error {
	rows, err := v.Elements()
	if err != nil {
		return err
	}
	if cfg.Header && len(cfg.Columns) > 0 {
		if err := w.Write(columnNames(cfg.Columns)); err != nil {
			return err
		}
	}
	for n, row := range rows {
		elems, err := row.Elements()
		if err != nil {
			return fmt.Errorf("row %d: %w", n+1, err)
		}
		rec := make([]string, len(elems))
		for i, el := range elems {
			rec[i], err = cellText(el, cfg)
			if err != nil {
				return fmt.Errorf("row %d, field %d: %w", n+1, i+1, err)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func encodeColumnsOfArrays(w *csv.Writer, v *docvalue.Value, cfg *Config) error {
	obj, err := v.Object()
	if err != nil {
		return err
	}
	cols := cfg.Columns
	if len(cols) == 0 {
		for _, m := range obj.Members() {
			cols = append(cols, Column{Name: m.Key})
		}
	}
	if cfg.Header {
		if err := w.Write(columnNames(cols)); err != nil {
			return err
		}
	}
	columns := make([][]*docvalue.Value, len(cols))
	height := 0
	for i, col := range cols {
		cv, ok := obj.Get(col.Name)
		if !ok {
			continue
		}
		columns[i], err = cv.Elements()
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		if len(columns[i]) > height {
			height = len(columns[i])
		}
	}
	for n := 0; n < height; n++ {
		rec := make([]string, len(cols))
		for i := range cols {
			if n >= len(columns[i]) {
				continue
			}
			rec[i], err = cellText(columns[i][n], cfg)
			if err != nil {
				return fmt.Errorf("row %d, column %s: %w", n+1, cols[i].Name, err)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// deriveColumns builds the column list from the first row's members:
// the pointer mapping names a location explicitly, dotted names come
// from flattening, everything else keeps its member name.
func deriveColumns(row *docvalue.Value, cfg *Config) ([]Column, error) {
	obj, err := row.Object()
	if err != nil {
		return nil, err
	}
	mapped := make(map[string]string, len(cfg.PathMapping))
	for ptr, name := range cfg.PathMapping {
		mapped[strings.Join(splitPointer(ptr), "\x00")] = name
	}
	// hasMappedUnder reports whether some pointer mapping targets a
	// location below this path, which forces descent even without
	// flattening.
	hasMappedUnder := func(path []string) bool {
		prefix := strings.Join(path, "\x00") + "\x00"
		for key := range mapped {
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
		return false
	}
	var cols []Column
	var walk func(obj *docvalue.Object, prefix []string)
	walk = func(obj *docvalue.Object, prefix []string) {
		for _, m := range obj.Members() {
			path := append(append([]string{}, prefix...), m.Key)
			if name, ok := mapped[strings.Join(path, "\x00")]; ok {
				cols = append(cols, Column{Name: name})
				continue
			}
			if m.Value.Kind() == docvalue.KindObject && (cfg.FlattenPaths || hasMappedUnder(path)) {
				inner, _ := m.Value.Object()
				walk(inner, path)
				continue
			}
			cols = append(cols, Column{Name: strings.Join(path, ".")})
		}
	}
	walk(obj, nil)
	return cols, nil
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

// getAtPath reads the value at a nested member path, or nil when any
// step is missing.
func getAtPath(obj *docvalue.Object, path []string) *docvalue.Value {
	for _, step := range path[:len(path)-1] {
		next, ok := obj.Get(step)
		if !ok || next.Kind() != docvalue.KindObject {
			return nil
		}
		obj, _ = next.Object()
	}
	v, ok := obj.Get(path[len(path)-1])
	if !ok {
		return nil
	}
	return v
}

// cellText renders one value as cell text. Arrays join with the
// subfield delimiter; nested objects fall back to their compact text
// form.
func cellText(v *docvalue.Value, cfg *Config) (string, error) {
	switch v.Kind() {
	case docvalue.KindNull:
		return "", nil
	case docvalue.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), nil
	case docvalue.KindInt64:
		i, _ := v.AsInt64()
		return strconv.FormatInt(i, 10), nil
	case docvalue.KindUint64:
		u, _ := v.AsUint64()
		return strconv.FormatUint(u, 10), nil
	case docvalue.KindDouble:
		f, _ := v.AsFloat64()
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case docvalue.KindString:
		s, _ := v.AsString()
		return s, nil
	case docvalue.KindBytes:
		b, _ := v.AsBytes()
		return base64.StdEncoding.EncodeToString(b), nil
	case docvalue.KindArray:
		if cfg.SubfieldDelimiter == "" {
			return "", docvalue.NewError(docvalue.ConversionFailed, "nested array needs a subfield delimiter")
		}
		elems, _ := v.Elements()
		parts := make([]string, len(elems))
		for i, el := range elems {
			s, err := cellText(el, cfg)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, cfg.SubfieldDelimiter), nil
	case docvalue.KindObject:
		return v.DumpText(), nil
	}
	return "", docvalue.NewError(docvalue.ConversionFailed, v.Kind().String())
}
