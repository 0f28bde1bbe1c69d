package transforms

import (
	"fmt"
	"sort"

	"foodonto/internal/artifact"
	"foodonto/internal/canon"
	"foodonto/internal/types"
)

// Index resolves transform ids against the canonical transform list.
type Index struct {
	byID    map[string]types.TransformDefinition
	ordered []types.TransformDefinition
}

// NewIndex builds an index, rejecting duplicate ids.
func NewIndex(defs []types.TransformDefinition) (*Index, error) {
	ix := &Index{byID: make(map[string]types.TransformDefinition, len(defs))}
	for _, d := range defs {
		if _, dup := ix.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate transform id %q", d.ID)
		}
		ix.byID[d.ID] = d
		ix.ordered = append(ix.ordered, d)
	}
	sort.Slice(ix.ordered, func(i, j int) bool { return ix.ordered[i].ID < ix.ordered[j].ID })
	return ix, nil
}

// LoadIndex reads the Stage A artifact.
func LoadIndex(store artifact.Store) (*Index, error) {
	var defs []types.TransformDefinition
	if err := artifact.ReadJSON(store, artifact.TransformsCanon, &defs); err != nil {
		return nil, err
	}
	ix, err := NewIndex(defs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", store.Location(artifact.TransformsCanon), err)
	}
	return ix, nil
}

// Get looks up a transform by id.
func (ix *Index) Get(id string) (types.TransformDefinition, bool) {
	d, ok := ix.byID[id]
	return d, ok
}

// Len returns the number of transforms.
func (ix *Index) Len() int { return len(ix.ordered) }

// All returns the transforms sorted by id.
func (ix *Index) All() []types.TransformDefinition { return ix.ordered }

// IsIdentity reports whether id resolves to an identity-bearing transform.
func (ix *Index) IsIdentity(id string) bool {
	d, ok := ix.byID[id]
	return ok && d.Identity
}

// Order returns the canonical order of id, or DefaultOrder if unknown.
func (ix *Index) Order(id string) int {
	if d, ok := ix.byID[id]; ok {
		return d.Order
	}
	return DefaultOrder
}

// SortSteps orders steps canonically: by transform order, then transform id,
// then canonical params. The result does not depend on input order.
func (ix *Index) SortSteps(steps []types.Step) {
	keys := make([]string, len(steps))
	for i := range steps {
		keys[i] = string(canon.MustMarshal(steps[i].Params))
	}
	idx := make([]int, len(steps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := steps[idx[a]], steps[idx[b]]
		oa, ob := ix.Order(sa.TransformID), ix.Order(sb.TransformID)
		if oa != ob {
			return oa < ob
		}
		if sa.TransformID != sb.TransformID {
			return sa.TransformID < sb.TransformID
		}
		return keys[idx[a]] < keys[idx[b]]
	})
	sorted := make([]types.Step, len(steps))
	for i, j := range idx {
		sorted[i] = steps[j]
	}
	copy(steps, sorted)
}
