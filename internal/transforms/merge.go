// Package transforms implements Stage A: merging base transform definitions
// with override layers into the canonical transform index.
package transforms

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"foodonto/internal/applicability"
	"foodonto/internal/types"
)

// DefaultOrder is assigned to transforms that do not declare an order.
const DefaultOrder = 999

// DefaultParamKind is assigned to params that do not declare a kind.
const DefaultParamKind = "string"

// ValidationError reports structurally invalid transform input.
type ValidationError struct {
	Location string
	Msg      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Msg)
}

// Layer is one tier of partial overrides keyed by transform id. Layers are
// applied in slice order; later layers win per field.
type Layer struct {
	Name     string
	Location string // source file, reported in errors; Name when empty
	Entries  map[string]map[string]any
}

func (l Layer) location() string {
	if l.Location != "" {
		return l.Location
	}
	return l.Name
}

// BuiltinLayer holds corrections that must hold regardless of author input.
func BuiltinLayer() Layer {
	return Layer{
		Name: "builtin",
		Entries: map[string]map[string]any{
			applicability.PressTransformID: {"identity": true},
			"tf:wash":                       {"identity": false},
			"tf:cut":                        {"identity": false},
		},
	}
}

// Merge applies override fields over a deep copy of base. Every field is
// replaced wholesale, so an override "params" array replaces the base array.
// The "id" field is never overridden.
func Merge(base map[string]any, overrides ...map[string]any) map[string]any {
	out, _ := deepCopy(base).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	for _, ov := range overrides {
		for k, v := range ov {
			if k == "id" {
				continue
			}
			out[k] = deepCopy(v)
		}
	}
	return out
}

// Result is the output of Canonicalize.
type Result struct {
	Transforms []types.TransformDefinition
	Applied    map[string]int      // layer name -> entries applied
	Unmatched  map[string][]string // layer name -> override ids absent from base
}

// Canonicalize merges base entries with layers and returns id-sorted,
// fully populated definitions.
func Canonicalize(loc string, base []map[string]any, layers []Layer) (*Result, error) {
	byID := make(map[string]map[string]any, len(base))
	for i, entry := range base {
		id, _ := entry["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &ValidationError{Location: loc, Msg: fmt.Sprintf("entry %d has no id", i)}
		}
		if _, dup := byID[id]; dup {
			return nil, &ValidationError{Location: loc, Msg: fmt.Sprintf("duplicate transform id %q", id)}
		}
		byID[id] = entry
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := &Result{
		Applied:   make(map[string]int, len(layers)),
		Unmatched: make(map[string][]string),
	}
	for _, l := range layers {
		for id := range l.Entries {
			if _, ok := byID[id]; !ok {
				res.Unmatched[l.Name] = append(res.Unmatched[l.Name], id)
			}
		}
		sort.Strings(res.Unmatched[l.Name])
	}

	for _, id := range ids {
		merged := Merge(byID[id])
		if err := normalizeOrder(loc, id, merged); err != nil {
			return nil, err
		}
		var applied []string
		for _, l := range layers {
			if ov, ok := l.Entries[id]; ok {
				merged = Merge(merged, ov)
				if _, set := ov["order"]; set {
					if err := normalizeOrder(l.location(), id, merged); err != nil {
						return nil, err
					}
				}
				res.Applied[l.Name]++
				applied = append(applied, l.Name)
			}
		}
		merged["id"] = id
		decodeLoc := loc
		if len(applied) > 0 {
			decodeLoc = fmt.Sprintf("%s (overridden by %s)", loc, strings.Join(applied, ", "))
		}
		def, err := decode(decodeLoc, merged)
		if err != nil {
			return nil, err
		}
		res.Transforms = append(res.Transforms, def)
	}
	return res, nil
}

// normalizeOrder rewrites an integral numeric "order" such as 10.0 as an int64.
func normalizeOrder(loc, id string, m map[string]any) error {
	var f float64
	switch v := m["order"].(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			m["order"] = n
			return nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %s: order %s is not a number", id, v)}
		}
		f = parsed
	case float64:
		f = v
	case int, int64:
		return nil
	default:
		return &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %s: order must be an integer, got %v", id, v)}
	}
	if math.Trunc(f) != f || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %s: order must be an integer, got %v", id, m["order"])}
	}
	m["order"] = int64(f)
	return nil
}

func decode(loc string, m map[string]any) (types.TransformDefinition, error) {
	var def types.TransformDefinition
	raw, err := json.Marshal(m)
	if err != nil {
		return def, &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %v: %v", m["id"], err)}
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return def, &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %v: %v", m["id"], err)}
	}

	if v, ok := m["order"]; !ok || v == nil {
		def.Order = DefaultOrder
	}

	seen := make(map[string]struct{}, len(def.Params))
	params := make([]types.Param, 0, len(def.Params))
	for _, p := range def.Params {
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			return def, &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %s: param without key", def.ID)}
		}
		if _, dup := seen[p.Key]; dup {
			return def, &ValidationError{Location: loc, Msg: fmt.Sprintf("transform %s: duplicate param %q", def.ID, p.Key)}
		}
		seen[p.Key] = struct{}{}
		if p.Kind == "" {
			p.Kind = DefaultParamKind
		}
		params = append(params, p)
	}
	def.Params = params
	def.Applicability = applicability.ForTransform(def.ID, def.Applicability)
	return def, nil
}

// ParseOverrides accepts either an array of objects carrying "id" or an
// id-keyed object map.
func ParseOverrides(loc string, doc any) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	switch v := doc.(type) {
	case nil:
		return out, nil
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, &ValidationError{Location: loc, Msg: fmt.Sprintf("override %d is not an object", i)}
			}
			id, _ := obj["id"].(string)
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, &ValidationError{Location: loc, Msg: fmt.Sprintf("override %d has no id", i)}
			}
			if prev, ok := out[id]; ok {
				obj = Merge(prev, obj)
			}
			out[id] = obj
		}
	case map[string]any:
		for id, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, &ValidationError{Location: loc, Msg: fmt.Sprintf("override %q is not an object", id)}
			}
			out[strings.TrimSpace(id)] = obj
		}
	default:
		return nil, &ValidationError{Location: loc, Msg: "overrides must be an array or an id-keyed object"}
	}
	return out, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
