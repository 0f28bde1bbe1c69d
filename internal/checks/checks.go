// Package checks holds the custom verification checks registered per stage.
package checks

import (
	"fmt"
	"reflect"

	"foodonto/internal/applicability"
	"foodonto/internal/artifact"
	"foodonto/internal/canon"
	"foodonto/internal/contract"
	"foodonto/internal/identity"
	"foodonto/internal/substrates"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// Default returns a registry with every built-in check.
func Default() *contract.Registry {
	r := contract.NewRegistry()
	Register(r)
	return r
}

// Register adds the built-in checks to r.
func Register(r *contract.Registry) {
	r.Register("A", "press_applicability", PressApplicability)
	r.Register("A", "builtin_overrides", BuiltinOverrides)
	r.Register("B", "substrates_resolve", SubstratesResolve)
	r.Register("C", "seed_paths", SeedPaths)
	r.Register("D", "generated_paths", GeneratedPaths)
	r.Register("D", "no_duplicate_expansion", NoDuplicateExpansion)
	r.Register("E", "identity_hashes", IdentityHashes)
}

// PressApplicability asserts the press transform never applies to plant milk
// and always to curd.
func PressApplicability(env contract.Env) ([]string, error) {
	ix, err := transforms.LoadIndex(env.Store)
	if err != nil {
		return nil, err
	}
	def, ok := ix.Get(applicability.PressTransformID)
	if !ok {
		return nil, nil
	}
	var out []string
	for i, r := range def.Applicability {
		hasCurd := false
		for _, p := range r.Parts {
			if p == applicability.PlantMilkPart {
				out = append(out, fmt.Sprintf("rule %d (%s) includes %s", i, r.TaxonPrefix, applicability.PlantMilkPart))
			}
			if p == applicability.CurdPart {
				hasCurd = true
			}
		}
		if !hasCurd {
			out = append(out, fmt.Sprintf("rule %d (%s) lacks %s", i, r.TaxonPrefix, applicability.CurdPart))
		}
	}
	return out, nil
}

// BuiltinOverrides asserts every built-in override field survived the merge.
func BuiltinOverrides(env contract.Env) ([]string, error) {
	var rows []map[string]any
	if err := artifact.ReadJSON(env.Store, artifact.TransformsCanon, &rows); err != nil {
		return nil, err
	}
	byID := make(map[string]map[string]any, len(rows))
	for _, r := range rows {
		if id, ok := r["id"].(string); ok {
			byID[id] = r
		}
	}
	var out []string
	layer := transforms.BuiltinLayer()
	for _, id := range sortedKeys(layer.Entries) {
		row, ok := byID[id]
		if !ok {
			continue
		}
		for _, field := range sortedKeys(layer.Entries[id]) {
			want, err := canon.Marshal(layer.Entries[id][field])
			if err != nil {
				return nil, err
			}
			got, err := canon.Marshal(row[field])
			if err != nil {
				return nil, err
			}
			if string(want) != string(got) {
				out = append(out, fmt.Sprintf("%s.%s is %s, built-in override says %s", id, field, got, want))
			}
		}
	}
	return out, nil
}

// SubstratesResolve asserts every substrate pair names a compiled taxon and a
// defined part.
func SubstratesResolve(env contract.Env) ([]string, error) {
	taxa, err := artifact.ReadJSONL[types.Taxon](env.Store, artifact.Taxa)
	if err != nil {
		return nil, err
	}
	var parts []types.PartDefinition
	if err := artifact.ReadJSON(env.Store, artifact.Parts, &parts); err != nil {
		return nil, err
	}
	set, err := substrates.Load(env.Store)
	if err != nil {
		return nil, err
	}
	knownTaxa := make(map[string]bool, len(taxa))
	for _, t := range taxa {
		knownTaxa[t.ID] = true
	}
	knownParts := make(map[string]bool, len(parts))
	for _, p := range parts {
		knownParts[p.ID] = true
	}
	var out []string
	for _, p := range set.Pairs() {
		if !knownTaxa[p.TaxonID] {
			out = append(out, fmt.Sprintf("pair %s/%s: unknown taxon", p.TaxonID, p.PartID))
		}
		if !knownParts[p.PartID] {
			out = append(out, fmt.Sprintf("pair %s/%s: unknown part", p.TaxonID, p.PartID))
		}
	}
	return out, nil
}

// SeedPaths asserts curated candidates sit on known substrates and carry
// canonical identity-only paths.
func SeedPaths(env contract.Env) ([]string, error) {
	return candidatePaths(env, artifact.TptSeed)
}

// GeneratedPaths is SeedPaths for family-expanded candidates.
func GeneratedPaths(env contract.Env) ([]string, error) {
	return candidatePaths(env, artifact.TptGenerated)
}

func candidatePaths(env contract.Env, slot artifact.Slot) ([]string, error) {
	ix, err := transforms.LoadIndex(env.Store)
	if err != nil {
		return nil, err
	}
	set, err := substrates.Load(env.Store)
	if err != nil {
		return nil, err
	}
	cands, err := artifact.ReadJSONL[types.Candidate](env.Store, slot)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, c := range cands {
		row := i + 1
		if !set.Contains(c.TaxonID, c.PartID) {
			out = append(out, fmt.Sprintf("row %d: %s/%s is not a substrate", row, c.TaxonID, c.PartID))
		}
		for _, s := range c.Path {
			def, ok := ix.Get(s.TransformID)
			switch {
			case !ok:
				out = append(out, fmt.Sprintf("row %d: unknown transform %s", row, s.TransformID))
			case !def.Identity:
				out = append(out, fmt.Sprintf("row %d: non-identity transform %s in path", row, s.TransformID))
			}
		}
		sorted := append([]types.Step(nil), c.Path...)
		ix.SortSteps(sorted)
		if len(c.Path) > 1 && !reflect.DeepEqual(sorted, c.Path) {
			out = append(out, fmt.Sprintf("row %d: path is not in canonical order", row))
		}
	}
	return out, nil
}

// NoDuplicateExpansion asserts no two generated rows share
// (taxon, part, family, path).
func NoDuplicateExpansion(env contract.Env) ([]string, error) {
	cands, err := artifact.ReadJSONL[types.Candidate](env.Store, artifact.TptGenerated)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(cands))
	var out []string
	for i, c := range cands {
		path, err := canon.Marshal(c.Path)
		if err != nil {
			return nil, err
		}
		key := c.TaxonID + "\x00" + c.PartID + "\x00" + c.FamilyHint + "\x00" + string(path)
		if first, dup := seen[key]; dup {
			out = append(out, fmt.Sprintf("row %d duplicates row %d (%s/%s %s)", i+1, first, c.TaxonID, c.PartID, c.FamilyHint))
			continue
		}
		seen[key] = i + 1
	}
	return out, nil
}

// IdentityHashes recomputes every record's hash and id from its identity.
func IdentityHashes(env contract.Env) ([]string, error) {
	recs, err := artifact.ReadJSONL[types.IdentityRecord](env.Store, artifact.TptCanon)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, r := range recs {
		h, err := identity.Hash(r.TaxonID, r.PartID, r.Identity)
		if err != nil {
			return nil, err
		}
		if h != r.IdentityHash {
			out = append(out, fmt.Sprintf("row %d (%s): identity_hash does not match identity", i+1, r.ID))
			continue
		}
		if want := identity.RecordID(r.TaxonID, r.PartID, r.FamilyHint, h); want != r.ID {
			out = append(out, fmt.Sprintf("row %d: id %s, expected %s", i+1, r.ID, want))
		}
	}
	return out, nil
}
