// Package substrates implements Stage B: deriving the universe of valid
// (taxon, part) substrate pairs.
package substrates

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"foodonto/internal/applicability"
	"foodonto/internal/artifact"
	"foodonto/internal/logging"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// DefaultRanks are the taxon ranks that carry edible parts unless a part says otherwise.
var DefaultRanks = []string{"species", "subspecies", "variety", "cultivar", "breed", "form", "strain"}

// Options configures Stage B.
type Options struct {
	Ranks []string // eligible ranks; DefaultRanks when empty
}

// Result is the outcome of Build.
type Result struct {
	Pairs         []types.SubstratePair
	EligibleTaxa  int
	Extras        int
	ExtrasSkipped []types.SubstratePair
}

// Build computes the sorted, deduplicated substrate pairs.
func Build(taxa []types.Taxon, parts []types.PartDefinition, extras []types.SubstratePair, ranks []string) (*Result, error) {
	if len(ranks) == 0 {
		ranks = DefaultRanks
	}
	defaultRanks := rankSet(ranks)

	taxonByID := make(map[string]types.Taxon, len(taxa))
	for i, tx := range taxa {
		id := strings.TrimSpace(tx.ID)
		if id == "" {
			return nil, fmt.Errorf("taxon %d has no id", i+1)
		}
		if _, dup := taxonByID[id]; dup {
			return nil, fmt.Errorf("duplicate taxon id %q", id)
		}
		tx.ID = id
		tx.Rank = strings.ToLower(strings.TrimSpace(tx.Rank))
		taxonByID[id] = tx
	}
	partByID := make(map[string]types.PartDefinition, len(parts))
	for i, p := range parts {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("part %d has no id", i+1)
		}
		if _, dup := partByID[id]; dup {
			return nil, fmt.Errorf("duplicate part id %q", id)
		}
		p.ID = id
		partByID[id] = p
	}

	set := make(map[types.SubstratePair]struct{})
	res := &Result{}
	eligible := make(map[string]struct{})

	for _, p := range partByID {
		ranksForPart := defaultRanks
		if len(p.Ranks) > 0 {
			ranksForPart = rankSet(p.Ranks)
		}
		include := prefixes(p.AppliesTo)
		exclude := prefixes(p.Excludes)
		for id, tx := range taxonByID {
			if _, ok := ranksForPart[tx.Rank]; !ok {
				continue
			}
			if len(include) > 0 && !hasPrefix(id, include) {
				continue
			}
			if hasPrefix(id, exclude) {
				continue
			}
			eligible[id] = struct{}{}
			set[types.SubstratePair{TaxonID: id, PartID: p.ID}] = struct{}{}
		}
	}

	for _, e := range extras {
		pair := types.SubstratePair{TaxonID: strings.TrimSpace(e.TaxonID), PartID: strings.TrimSpace(e.PartID)}
		_, knownTaxon := taxonByID[pair.TaxonID]
		_, knownPart := partByID[pair.PartID]
		if !knownTaxon || !knownPart {
			res.ExtrasSkipped = append(res.ExtrasSkipped, pair)
			continue
		}
		set[pair] = struct{}{}
		res.Extras++
	}

	res.Pairs = make([]types.SubstratePair, 0, len(set))
	for p := range set {
		res.Pairs = append(res.Pairs, p)
	}
	SortPairs(res.Pairs)
	res.EligibleTaxa = len(eligible)
	return res, nil
}

// SortPairs orders pairs by (taxon_id, part_id).
func SortPairs(pairs []types.SubstratePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TaxonID != pairs[j].TaxonID {
			return pairs[i].TaxonID < pairs[j].TaxonID
		}
		return pairs[i].PartID < pairs[j].PartID
	})
}

// Unreachable lists transforms with applicability rules that admit none of pairs.
func Unreachable(defs []types.TransformDefinition, pairs []types.SubstratePair) []string {
	var out []string
	for _, d := range defs {
		if len(d.Applicability) == 0 {
			continue
		}
		reachable := false
		for _, p := range pairs {
			if d.Admits(p.TaxonID, p.PartID) {
				reachable = true
				break
			}
		}
		if !reachable {
			out = append(out, d.ID)
		}
	}
	return out
}

// Run executes Stage B against store.
func Run(ctx context.Context, store artifact.Store, opts Options) (map[string]int, error) {
	timer := logging.StartTimer(logging.CategorySubstrates, "stage B")
	defer timer.Stop()
	log := logging.Get(logging.CategorySubstrates)

	ix, err := transforms.LoadIndex(store)
	if err != nil {
		return nil, err
	}
	taxa, err := artifact.ReadJSONL[types.Taxon](store, artifact.Taxa)
	if err != nil {
		return nil, err
	}
	var parts []types.PartDefinition
	if err := artifact.ReadJSON(store, artifact.Parts, &parts); err != nil {
		return nil, err
	}
	extras, err := artifact.ReadJSONLOptional[types.SubstratePair](store, artifact.SubstrateExtras)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := Build(taxa, parts, extras, opts.Ranks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", store.Location(artifact.Taxa), err)
	}
	for _, s := range res.ExtrasSkipped {
		log.Warn("substrate extra %s/%s references unknown taxon or part", s.TaxonID, s.PartID)
	}
	unreachable := Unreachable(ix.All(), res.Pairs)
	for _, id := range unreachable {
		log.Warn("transform %s applies to no known substrate", id)
	}

	if err := artifact.WriteJSONL(store, artifact.Substrates, res.Pairs); err != nil {
		return nil, err
	}

	stats := map[string]int{
		"taxa":                   len(taxa),
		"eligible_taxa":          res.EligibleTaxa,
		"parts":                  len(parts),
		"extras":                 res.Extras,
		"extras_skipped":         len(res.ExtrasSkipped),
		"pairs":                  len(res.Pairs),
		"unreachable_transforms": len(unreachable),
	}
	log.Stats("stage B complete", stats)
	return stats, nil
}

func rankSet(ranks []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ranks))
	for _, r := range ranks {
		out[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return out
}

func prefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if n := applicability.NormalizePrefix(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func hasPrefix(id string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}
