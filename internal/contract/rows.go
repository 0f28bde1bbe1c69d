package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"foodonto/internal/artifact"
	"foodonto/internal/canon"
)

// rowSet is a slot's content decoded for validation.
type rowSet struct {
	present bool
	rows    []map[string]any
	lines   []int // row positions; JSONL line numbers or array indexes
	errs    []string
}

func loadRows(store artifact.Store, slot artifact.Slot, format string) rowSet {
	var rs rowSet
	ok, err := store.Exists(slot)
	if err != nil {
		rs.errs = append(rs.errs, fmt.Sprintf("%s: %v", slot.Name, err))
		return rs
	}
	if !ok {
		return rs
	}
	rs.present = true

	if format == "" {
		format = FormatJSONArray
		if slot.Format == artifact.FormatJSONL {
			format = FormatJSONL
		}
	}

	switch format {
	case FormatJSONL:
		err := artifact.EachJSONL(store, slot, func(line int, raw []byte) error {
			obj, err := decodeObject(raw)
			if err != nil {
				return err
			}
			rs.rows = append(rs.rows, obj)
			rs.lines = append(rs.lines, line)
			return nil
		})
		if err != nil {
			rs.errs = append(rs.errs, fmt.Sprintf("%s: %v", slot.Name, err))
		}
	case FormatJSONObject:
		var doc any
		if err := artifact.ReadJSON(store, slot, &doc); err != nil {
			rs.errs = append(rs.errs, fmt.Sprintf("%s: %v", slot.Name, err))
			return rs
		}
		obj, ok := doc.(map[string]any)
		if !ok {
			rs.errs = append(rs.errs, fmt.Sprintf("%s: expected a JSON object, got %s", slot.Name, kind(doc)))
			return rs
		}
		rs.rows = []map[string]any{obj}
		rs.lines = []int{0}
	default:
		var doc any
		if err := artifact.ReadJSON(store, slot, &doc); err != nil {
			rs.errs = append(rs.errs, fmt.Sprintf("%s: %v", slot.Name, err))
			return rs
		}
		arr, ok := doc.([]any)
		if !ok {
			rs.errs = append(rs.errs, fmt.Sprintf("%s: expected a JSON array, got %s", slot.Name, kind(doc)))
			return rs
		}
		for i, el := range arr {
			obj, ok := el.(map[string]any)
			if !ok {
				rs.errs = append(rs.errs, fmt.Sprintf("%s: element %d is %s, not an object", slot.Name, i, kind(el)))
				continue
			}
			rs.rows = append(rs.rows, obj)
			rs.lines = append(rs.lines, i)
		}
	}
	return rs
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", kind(v))
	}
	return obj, nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// keyOf renders the values of fields in row as a comparable key.
func keyOf(row map[string]any, fields []string) (string, bool) {
	var buf bytes.Buffer
	for i, f := range fields {
		v, ok := row[f]
		if !ok {
			return "", false
		}
		if i > 0 {
			buf.WriteByte(0)
		}
		if s, isStr := v.(string); isStr {
			buf.WriteString(s)
			continue
		}
		b, err := canon.Marshal(v)
		if err != nil {
			return "", false
		}
		buf.Write(b)
	}
	return buf.String(), true
}

// compareValues orders numbers numerically and everything else by its
// canonical text.
func compareValues(a, b any) int {
	fa, aNum := canon.Float(a)
	fb, bNum := canon.Float(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := text(a), text(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := canon.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// celValue converts decoded JSON into values CEL understands natively.
func celValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = celValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = celValue(child)
		}
		return out
	default:
		return v
	}
}
