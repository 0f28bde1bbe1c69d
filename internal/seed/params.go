package seed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"foodonto/internal/canon"
)

// NormalizeParams flattens the accepted parameter encodings into one map:
//
//	{"temp_c": 100}
//	[{"key": "temp_c", "value": 100}]
//	[{"temp_c": 100}]
//
// Values are canonicalized so equal numbers compare equal. Null or absent
// params yield an empty map.
func NormalizeParams(raw json.RawMessage) (map[string]any, error) {
	out := make(map[string]any)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	switch v := doc.(type) {
	case map[string]any:
		for k, val := range v {
			if err := put(out, k, val); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("param %d is not an object", i)
			}
			if key, ok := obj["key"].(string); ok && isPairForm(obj) {
				if err := put(out, key, obj["value"]); err != nil {
					return nil, err
				}
				continue
			}
			if len(obj) != 1 {
				return nil, fmt.Errorf("param %d must be {key, value} or a single-key object", i)
			}
			for k, val := range obj {
				if err := put(out, k, val); err != nil {
					return nil, err
				}
			}
		}
	default:
		return nil, fmt.Errorf("params must be an object or an array, got %T", doc)
	}
	return out, nil
}

func isPairForm(obj map[string]any) bool {
	for k := range obj {
		if k != "key" && k != "value" {
			return false
		}
	}
	return true
}

func put(out map[string]any, key string, val any) error {
	if key == "" {
		return fmt.Errorf("empty param key")
	}
	if _, dup := out[key]; dup {
		return fmt.Errorf("param %q given twice", key)
	}
	n, err := canon.Normalize(val)
	if err != nil {
		return err
	}
	out[key] = n
	return nil
}
