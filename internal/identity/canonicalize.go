// Package identity implements Stage E: merging TPT candidates into canonical
// identity records with deterministic identity hashes.
package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"foodonto/internal/artifact"
	"foodonto/internal/canon"
	"foodonto/internal/logging"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// hashSuffixLen is how much of the identity hash is embedded in record ids.
const hashSuffixLen = 10

// Canonicalizer turns candidate paths into canonical identities.
type Canonicalizer struct {
	ix      *transforms.Index
	buckets Buckets
}

// NewCanonicalizer creates a canonicalizer. buckets may be nil.
func NewCanonicalizer(ix *transforms.Index, buckets Buckets) *Canonicalizer {
	return &Canonicalizer{ix: ix, buckets: buckets}
}

// Identity returns the canonical identity of path: identity-bearing steps in
// canonical order, carrying only identity params, with bucketed values
// replaced by their labels. The second result counts bucketed values.
func (c *Canonicalizer) Identity(path []types.Step) ([]types.Step, int, error) {
	out := make([]types.Step, 0, len(path))
	bucketed := 0
	for _, step := range path {
		def, ok := c.ix.Get(step.TransformID)
		if !ok || !def.Identity {
			continue
		}
		params := make(map[string]any)
		for k, v := range step.Params {
			if !def.IsIdentityParam(k) {
				continue
			}
			if spec, ok := c.buckets[types.BucketKey(step.TransformID, k)]; ok {
				if f, isNum := canon.Float(v); isNum {
					params[k] = Label(spec, f)
					bucketed++
					continue
				}
			}
			n, err := canon.Normalize(v)
			if err != nil {
				return nil, 0, fmt.Errorf("%s.%s: %w", step.TransformID, k, err)
			}
			params[k] = n
		}
		out = append(out, types.Step{TransformID: step.TransformID, Params: params})
	}
	c.ix.SortSteps(out)
	return out, bucketed, nil
}

// Hash computes the identity hash over the canonical encoding of
// {taxon_id, part_id, identity}.
func Hash(taxonID, partID string, identity []types.Step) (string, error) {
	if identity == nil {
		identity = []types.Step{}
	}
	return canon.Hash(map[string]any{
		"taxon_id": taxonID,
		"part_id":  partID,
		"identity": identity,
	})
}

// RecordID builds the stable, human-legible id of a record.
func RecordID(taxonID, partID, family, hash string) string {
	fam := slug(family)
	if fam == "" {
		fam = "curated"
	}
	suffix := hash
	if len(suffix) > hashSuffixLen {
		suffix = suffix[:hashSuffixLen]
	}
	return strings.Join([]string{"tpt", slug(taxonID), slug(partID), fam, suffix}, ":")
}

func slug(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range []string{"tx:", "part:", "fam:"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return strings.ReplaceAll(id, ":", ".")
}

// Result is the outcome of Canonicalize.
type Result struct {
	Records  []types.IdentityRecord
	Merged   int
	Bucketed int
}

// Canonicalize merges candidates (in the given order; earlier candidates win
// metadata conflicts) into records sorted by id.
func (c *Canonicalizer) Canonicalize(cands []types.Candidate) (*Result, error) {
	res := &Result{}
	byHash := make(map[string]int)
	var records []types.IdentityRecord

	for _, cand := range cands {
		ident, n, err := c.Identity(cand.Path)
		if err != nil {
			return nil, fmt.Errorf("candidate %s/%s: %w", cand.TaxonID, cand.PartID, err)
		}
		res.Bucketed += n
		h, err := Hash(cand.TaxonID, cand.PartID, ident)
		if err != nil {
			return nil, err
		}

		if i, ok := byHash[h]; ok {
			mergeInto(&records[i], cand)
			res.Merged++
			continue
		}
		byHash[h] = len(records)
		path := cand.Path
		if path == nil {
			path = []types.Step{}
		}
		records = append(records, types.IdentityRecord{
			TaxonID:      cand.TaxonID,
			PartID:       cand.PartID,
			Identity:     ident,
			IdentityHash: h,
			FamilyHint:   cand.FamilyHint,
			Path:         path,
			Name:         cand.Name,
			Synonyms:     union(nil, cand.Synonyms),
			Notes:        cand.Notes,
			Sources:      union(nil, []string{cand.Source}),
			MergedCount:  1,
		})
	}

	ids := make(map[string]string, len(records))
	for i := range records {
		r := &records[i]
		r.ID = RecordID(r.TaxonID, r.PartID, r.FamilyHint, r.IdentityHash)
		if other, dup := ids[r.ID]; dup && other != r.IdentityHash {
			return nil, fmt.Errorf("record id %s collides for hashes %s and %s", r.ID, other, r.IdentityHash)
		}
		ids[r.ID] = r.IdentityHash
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	if records == nil {
		records = []types.IdentityRecord{}
	}
	res.Records = records
	return res, nil
}

func mergeInto(r *types.IdentityRecord, cand types.Candidate) {
	r.MergedCount++
	r.Synonyms = union(r.Synonyms, cand.Synonyms)
	r.Sources = union(r.Sources, []string{cand.Source})
	if r.FamilyHint == "" {
		r.FamilyHint = cand.FamilyHint
	}
	if r.Name == "" {
		r.Name = cand.Name
	}
	if r.Notes == "" {
		r.Notes = cand.Notes
	}
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := set[s]; ok {
				continue
			}
			set[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Run executes Stage E against store.
func Run(ctx context.Context, store artifact.Store) (map[string]int, error) {
	timer := logging.StartTimer(logging.CategoryIdentity, "stage E")
	defer timer.Stop()
	log := logging.Get(logging.CategoryIdentity)

	ix, err := transforms.LoadIndex(store)
	if err != nil {
		return nil, err
	}
	buckets, err := LoadBuckets(store)
	if err != nil {
		return nil, err
	}
	seeds, err := artifact.ReadJSONLOptional[types.Candidate](store, artifact.TptSeed)
	if err != nil {
		return nil, err
	}
	generated, err := artifact.ReadJSONLOptional[types.Candidate](store, artifact.TptGenerated)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cands := make([]types.Candidate, 0, len(seeds)+len(generated))
	cands = append(cands, seeds...)
	cands = append(cands, generated...)

	res, err := NewCanonicalizer(ix, buckets).Canonicalize(cands)
	if err != nil {
		return nil, err
	}
	if err := artifact.WriteJSONL(store, artifact.TptCanon, res.Records); err != nil {
		return nil, err
	}

	stats := map[string]int{
		"candidates":      len(cands),
		"records":         len(res.Records),
		"merged":          res.Merged,
		"bucketed_params": res.Bucketed,
	}
	log.Debug("%d bucket specs, %d seed and %d generated candidates", len(buckets), len(seeds), len(generated))
	log.Stats("stage E complete", stats)
	return stats, nil
}
