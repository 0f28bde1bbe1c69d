// Package families implements Stage D: expanding family definitions across
// the substrate universe into TPT candidates.
package families

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"foodonto/internal/applicability"
	"foodonto/internal/artifact"
	"foodonto/internal/canon"
	"foodonto/internal/logging"
	"foodonto/internal/substrates"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// Options configures Stage D.
type Options struct {
	// StrictAllowlist makes a family without allowlist rows an error instead
	// of expanding it across every substrate.
	StrictAllowlist bool
}

// Result is the outcome of Expand.
type Result struct {
	Candidates       []types.Candidate
	Rules            int
	FallbackFamilies []string
	Duplicates       int
}

// unrestricted matches every taxon and part.
var unrestricted = types.ApplicabilityRule{TaxonPrefix: "", Parts: nil}

type plan struct {
	family   types.FamilyDefinition
	path     []types.Step
	required []types.TransformDefinition
	optional []string
	pathKey  string
}

// Expand crosses each family's rules with every substrate pair.
func Expand(fams []types.FamilyDefinition, allow map[string][]types.ApplicabilityRule, subs *substrates.Set, ix *transforms.Index, opts Options) (*Result, error) {
	res := &Result{}
	seenFamily := make(map[string]struct{}, len(fams))
	plans := make([]plan, 0, len(fams))

	for i, fam := range fams {
		fam.ID = strings.TrimSpace(fam.ID)
		if fam.ID == "" {
			return nil, fmt.Errorf("family %d has no id", i+1)
		}
		if _, dup := seenFamily[fam.ID]; dup {
			return nil, fmt.Errorf("duplicate family id %q", fam.ID)
		}
		seenFamily[fam.ID] = struct{}{}

		p, err := planFamily(fam, ix)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	type dedupKey struct {
		pair   types.SubstratePair
		family string
		path   string
	}
	seen := make(map[dedupKey]struct{})

	for _, p := range plans {
		rules := allow[p.family.ID]
		if len(rules) == 0 {
			if opts.StrictAllowlist {
				return nil, fmt.Errorf("family %q has no allowlist rule", p.family.ID)
			}
			rules = []types.ApplicabilityRule{unrestricted}
			res.FallbackFamilies = append(res.FallbackFamilies, p.family.ID)
		}
		res.Rules += len(rules)

		for _, rule := range rules {
			for _, pair := range subs.Pairs() {
				if !rule.Matches(pair.TaxonID, pair.PartID) || !admitsAll(p.required, pair) {
					continue
				}
				k := dedupKey{pair: pair, family: p.family.ID, path: p.pathKey}
				if _, dup := seen[k]; dup {
					res.Duplicates++
					continue
				}
				seen[k] = struct{}{}
				res.Candidates = append(res.Candidates, types.Candidate{
					TaxonID:            pair.TaxonID,
					PartID:             pair.PartID,
					FamilyHint:         p.family.ID,
					Path:               p.path,
					OptionalTransforms: p.optional,
					Name:               p.family.Name,
					Notes:              p.family.Notes,
					Source:             types.SourceFamily,
				})
			}
		}
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		a, b := res.Candidates[i], res.Candidates[j]
		if a.TaxonID != b.TaxonID {
			return a.TaxonID < b.TaxonID
		}
		if a.PartID != b.PartID {
			return a.PartID < b.PartID
		}
		return a.FamilyHint < b.FamilyHint
	})
	sort.Strings(res.FallbackFamilies)
	return res, nil
}

func planFamily(fam types.FamilyDefinition, ix *transforms.Index) (plan, error) {
	p := plan{family: fam}
	for _, raw := range fam.IdentityTransforms {
		raw = strings.TrimSpace(raw)
		optional := strings.HasSuffix(raw, types.OptionalMarker)
		id := strings.TrimSpace(strings.TrimSuffix(raw, types.OptionalMarker))
		def, ok := ix.Get(id)
		if !ok {
			return p, fmt.Errorf("family %q references unknown transform %q", fam.ID, id)
		}
		if optional {
			p.optional = append(p.optional, id)
			continue
		}
		if !def.Identity {
			continue
		}
		params := make(map[string]any)
		for k, v := range fam.Params[id] {
			n, err := canon.Normalize(v)
			if err != nil {
				return p, fmt.Errorf("family %q param %s.%s: %w", fam.ID, id, k, err)
			}
			params[k] = n
		}
		p.path = append(p.path, types.Step{TransformID: id, Params: params})
		p.required = append(p.required, def)
	}
	ix.SortSteps(p.path)
	if p.path == nil {
		p.path = []types.Step{}
	}
	p.pathKey = string(canon.MustMarshal(p.path))
	return p, nil
}

func admitsAll(defs []types.TransformDefinition, pair types.SubstratePair) bool {
	for _, d := range defs {
		if !d.Admits(pair.TaxonID, pair.PartID) {
			return false
		}
	}
	return true
}

// Run executes Stage D against store.
func Run(ctx context.Context, store artifact.Store, opts Options) (map[string]int, error) {
	timer := logging.StartTimer(logging.CategoryFamilies, "stage D")
	defer timer.Stop()
	log := logging.Get(logging.CategoryFamilies)

	var fams []types.FamilyDefinition
	err := artifact.ReadJSON(store, artifact.Families, &fams)
	if artifact.IsNotFound(err) {
		log.Info("no families at %s; writing empty expansion", store.Location(artifact.Families))
		if err := artifact.WriteJSONL(store, artifact.TptGenerated, []types.Candidate{}); err != nil {
			return nil, err
		}
		return map[string]int{"families": 0, "rules": 0, "fallback_families": 0, "candidates": 0, "duplicates": 0}, nil
	}
	if err != nil {
		return nil, err
	}

	subs, err := substrates.Load(store)
	if err != nil {
		return nil, err
	}
	ix, err := transforms.LoadIndex(store)
	if err != nil {
		return nil, err
	}
	rows, err := artifact.ReadJSONLOptional[types.AllowlistRule](store, artifact.FamilyAllowlist)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := Expand(fams, applicability.Group(rows), subs, ix, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", store.Location(artifact.Families), err)
	}
	for _, id := range res.FallbackFamilies {
		log.Warn("family %s has no allowlist rule; expanding across all %d substrates", id, subs.Len())
	}

	if res.Candidates == nil {
		res.Candidates = []types.Candidate{}
	}
	if err := artifact.WriteJSONL(store, artifact.TptGenerated, res.Candidates); err != nil {
		return nil, err
	}

	stats := map[string]int{
		"families":          len(fams),
		"rules":             res.Rules,
		"fallback_families": len(res.FallbackFamilies),
		"candidates":        len(res.Candidates),
		"duplicates":        res.Duplicates,
	}
	log.Stats("stage D complete", stats)
	return stats, nil
}
