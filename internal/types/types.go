// Package types provides the ontology data model shared by every pipeline stage.
// It exists so stage packages can exchange records without importing each other;
// it depends on nothing but the standard library.
package types

import "strings"

// Param describes one parameter a transform accepts.
type Param struct {
	Key           string `json:"key"`
	Kind          string `json:"kind"`
	IdentityParam bool   `json:"identity_param"`
	Unit          string `json:"unit,omitempty"`
}

// ApplicabilityRule restricts where something applies. An empty Parts set
// means every part.
type ApplicabilityRule struct {
	TaxonPrefix string   `json:"taxon_prefix"`
	Parts       []string `json:"parts"`
}

// Matches reports whether the rule admits the (taxon, part) pair.
func (r ApplicabilityRule) Matches(taxonID, partID string) bool {
	if !strings.HasPrefix(taxonID, r.TaxonPrefix) {
		return false
	}
	if len(r.Parts) == 0 {
		return true
	}
	for _, p := range r.Parts {
		if p == partID {
			return true
		}
	}
	return false
}

// TransformDefinition is one entry of the canonical transform index.
type TransformDefinition struct {
	ID            string              `json:"id"`
	Name          string              `json:"name,omitempty"`
	Identity      bool                `json:"identity"`
	Order         int                 `json:"order"`
	Params        []Param             `json:"params"`
	Applicability []ApplicabilityRule `json:"applicability,omitempty"`
	Synonyms      []string            `json:"synonyms,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

// IsIdentityParam reports whether key is declared as identity-bearing.
func (t TransformDefinition) IsIdentityParam(key string) bool {
	for _, p := range t.Params {
		if p.Key == key {
			return p.IdentityParam
		}
	}
	return false
}

// Admits reports whether the transform may be applied to the pair. A transform
// without applicability rules applies everywhere.
func (t TransformDefinition) Admits(taxonID, partID string) bool {
	if len(t.Applicability) == 0 {
		return true
	}
	for _, r := range t.Applicability {
		if r.Matches(taxonID, partID) {
			return true
		}
	}
	return false
}

// Taxon is one row of the compiled taxa list.
type Taxon struct {
	ID     string `json:"id"`
	Rank   string `json:"rank"`
	Name   string `json:"name,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// PartDefinition describes an anatomical or derived part and where it occurs.
type PartDefinition struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	AppliesTo []string `json:"applies_to,omitempty"`
	Excludes  []string `json:"excludes,omitempty"`
	Ranks     []string `json:"ranks,omitempty"`
}

// SubstratePair is an addressable (taxon, part) combination.
type SubstratePair struct {
	TaxonID string `json:"taxon_id"`
	PartID  string `json:"part_id"`
}

// Step is one transform application inside a path.
type Step struct {
	TransformID string         `json:"transform_id"`
	Params      map[string]any `json:"params"`
}

// Candidate sources.
const (
	SourceSeed   = "seed"
	SourceFamily = "family"
)

// Candidate is a TPT candidate emitted by Stage C or Stage D.
type Candidate struct {
	TaxonID            string   `json:"taxon_id"`
	PartID             string   `json:"part_id"`
	FamilyHint         string   `json:"family_hint"`
	Path               []Step   `json:"path"`
	PathFull           []Step   `json:"path_full,omitempty"`
	OptionalTransforms []string `json:"optional_transforms,omitempty"`
	Name               string   `json:"name,omitempty"`
	Synonyms           []string `json:"synonyms,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	Source             string   `json:"source"`
}

// Pair returns the candidate's substrate pair.
func (c Candidate) Pair() SubstratePair {
	return SubstratePair{TaxonID: c.TaxonID, PartID: c.PartID}
}

// IdentityRecord is a canonical, deduplicated TPT.
type IdentityRecord struct {
	ID           string   `json:"id"`
	TaxonID      string   `json:"taxon_id"`
	PartID       string   `json:"part_id"`
	Identity     []Step   `json:"identity"`
	IdentityHash string   `json:"identity_hash"`
	FamilyHint   string   `json:"family_hint"`
	Path         []Step   `json:"path"`
	Name         string   `json:"name,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Sources      []string `json:"sources"`
	MergedCount  int      `json:"merged_count"`
}

// FamilyDefinition groups a reusable identity transform chain.
// Transform ids with a trailing OptionalMarker are optional.
type FamilyDefinition struct {
	ID                 string                    `json:"id"`
	Name               string                    `json:"name,omitempty"`
	IdentityTransforms []string                  `json:"identity_transforms"`
	Params             map[string]map[string]any `json:"params,omitempty"`
	Notes              string                    `json:"notes,omitempty"`
}

// OptionalMarker suffixes an optional family transform.
const OptionalMarker = "?"

// AllowlistRule scopes a family to a taxon prefix and part set.
type AllowlistRule struct {
	Family      string   `json:"family"`
	TaxonPrefix string   `json:"taxon_prefix"`
	Parts       []string `json:"parts"`
}

// Rule drops the family scope.
func (a AllowlistRule) Rule() ApplicabilityRule {
	return ApplicabilityRule{TaxonPrefix: a.TaxonPrefix, Parts: a.Parts}
}

// BucketSpec discretizes one numeric parameter.
type BucketSpec struct {
	Cuts   []float64 `json:"cuts"`
	Labels []string  `json:"labels"`
}

// BucketKey builds the "transform_id.param_key" key used by bucket specs.
func BucketKey(transformID, paramKey string) string {
	return transformID + "." + paramKey
}
