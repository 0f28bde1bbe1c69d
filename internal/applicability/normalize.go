// Package applicability canonicalizes taxon/part applicability blocks.
package applicability

import (
	"sort"
	"strings"

	"foodonto/internal/types"
)

// Press correction: pressing acts on coagulated curd, never on plant milk.
const (
	PressTransformID = "tf:press"
	PlantMilkPart    = "part:plant_milk"
	CurdPart         = "part:curd"
)

// Normalize returns a canonical copy of rules: trailing colons stripped from
// prefixes, parts deduplicated and sorted, duplicate rows removed, rows sorted
// by (prefix, parts).
func Normalize(rules []types.ApplicabilityRule) []types.ApplicabilityRule {
	return normalize(rules, nil)
}

// ForTransform normalizes rules owned by transformID, applying any
// transform-specific correction before deduplication.
func ForTransform(transformID string, rules []types.ApplicabilityRule) []types.ApplicabilityRule {
	if transformID == PressTransformID {
		return normalize(rules, fixPress)
	}
	return normalize(rules, nil)
}

// Group normalizes allowlist rows per family.
func Group(rows []types.AllowlistRule) map[string][]types.ApplicabilityRule {
	byFamily := make(map[string][]types.ApplicabilityRule)
	for _, row := range rows {
		fam := strings.TrimSpace(row.Family)
		if fam == "" {
			continue
		}
		byFamily[fam] = append(byFamily[fam], row.Rule())
	}
	for fam, rules := range byFamily {
		byFamily[fam] = Normalize(rules)
	}
	return byFamily
}

func normalize(rules []types.ApplicabilityRule, fix func([]string) []string) []types.ApplicabilityRule {
	if len(rules) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(rules))
	out := make([]types.ApplicabilityRule, 0, len(rules))
	for _, r := range rules {
		parts := cleanParts(r.Parts)
		if fix != nil {
			parts = cleanParts(fix(parts))
		}
		n := types.ApplicabilityRule{
			TaxonPrefix: NormalizePrefix(r.TaxonPrefix),
			Parts:       parts,
		}
		k := key(n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TaxonPrefix != out[j].TaxonPrefix {
			return out[i].TaxonPrefix < out[j].TaxonPrefix
		}
		return strings.Join(out[i].Parts, ",") < strings.Join(out[j].Parts, ",")
	})
	return out
}

// NormalizePrefix trims whitespace and trailing colons from a taxon prefix.
func NormalizePrefix(p string) string {
	return strings.TrimRight(strings.TrimSpace(p), ":")
}

func cleanParts(parts []string) []string {
	set := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := set[p]; ok {
			continue
		}
		set[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func fixPress(parts []string) []string {
	out := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if p != PlantMilkPart {
			out = append(out, p)
		}
	}
	return append(out, CurdPart)
}

func key(r types.ApplicabilityRule) string {
	return r.TaxonPrefix + "\x00" + strings.Join(r.Parts, "\x00")
}
