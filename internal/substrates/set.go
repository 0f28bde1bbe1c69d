package substrates

import (
	"foodonto/internal/artifact"
	"foodonto/internal/types"
)

// Set is the loaded Stage B output.
type Set struct {
	pairs []types.SubstratePair
	index map[types.SubstratePair]struct{}
}

// NewSet builds a set from pairs, keeping their order.
func NewSet(pairs []types.SubstratePair) *Set {
	s := &Set{pairs: pairs, index: make(map[types.SubstratePair]struct{}, len(pairs))}
	for _, p := range pairs {
		s.index[p] = struct{}{}
	}
	return s
}

// Load reads the substrates artifact.
func Load(store artifact.Store) (*Set, error) {
	pairs, err := artifact.ReadJSONL[types.SubstratePair](store, artifact.Substrates)
	if err != nil {
		return nil, err
	}
	return NewSet(pairs), nil
}

// Contains reports whether the pair is a known substrate.
func (s *Set) Contains(taxonID, partID string) bool {
	_, ok := s.index[types.SubstratePair{TaxonID: taxonID, PartID: partID}]
	return ok
}

// Pairs returns every pair in artifact order.
func (s *Set) Pairs() []types.SubstratePair { return s.pairs }

// Len returns the number of pairs.
func (s *Set) Len() int { return len(s.pairs) }
