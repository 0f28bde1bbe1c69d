package families

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodonto/internal/artifact"
	"foodonto/internal/substrates"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

const (
	soy   = "tx:plantae:fabaceae:glycine:max"
	wheat = "tx:plantae:poaceae:triticum:aestivum"
	cow   = "tx:animalia:bovidae:bos:taurus"
)

func fixture(t *testing.T) (*substrates.Set, *transforms.Index) {
	t.Helper()
	subs := substrates.NewSet([]types.SubstratePair{
		{TaxonID: cow, PartID: "part:milk"},
		{TaxonID: soy, PartID: "part:curd"},
		{TaxonID: soy, PartID: "part:seed"},
		{TaxonID: wheat, PartID: "part:seed"},
	})
	ix, err := transforms.NewIndex([]types.TransformDefinition{
		{ID: "tf:mill", Identity: true, Order: 10},
		{ID: "tf:sift", Identity: false, Order: 15},
		{ID: "tf:press", Identity: true, Order: 40, Applicability: []types.ApplicabilityRule{{TaxonPrefix: "tx:plantae", Parts: []string{"part:curd"}}}},
		{ID: "tf:salt", Identity: true, Order: 50},
	})
	require.NoError(t, err)
	return subs, ix
}

func TestExpandWithAllowlist(t *testing.T) {
	subs, ix := fixture(t)
	fams := []types.FamilyDefinition{{ID: "fam:flour", Name: "flour", IdentityTransforms: []string{"tf:sift", "tf:mill", "tf:salt?"}}}
	allow := map[string][]types.ApplicabilityRule{
		"fam:flour": {{TaxonPrefix: "tx:plantae:poaceae", Parts: []string{"part:seed"}}},
	}

	res, err := Expand(fams, allow, subs, ix, Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, wheat, c.TaxonID)
	assert.Equal(t, "fam:flour", c.FamilyHint)
	assert.Equal(t, types.SourceFamily, c.Source)
	require.Len(t, c.Path, 1, "non-identity and optional transforms stay out of the path")
	assert.Equal(t, "tf:mill", c.Path[0].TransformID)
	assert.Equal(t, []string{"tf:salt"}, c.OptionalTransforms)
}

func TestExpandNoDuplicatesFromOverlappingRules(t *testing.T) {
	subs, ix := fixture(t)
	fams := []types.FamilyDefinition{{ID: "fam:meal", IdentityTransforms: []string{"tf:mill"}}}
	allow := map[string][]types.ApplicabilityRule{
		"fam:meal": {
			{TaxonPrefix: "tx:plantae", Parts: []string{"part:seed"}},
			{TaxonPrefix: "tx:plantae:fabaceae", Parts: nil},
		},
	}

	res, err := Expand(fams, allow, subs, ix, Options{})
	require.NoError(t, err)

	type key struct{ taxon, part, family string }
	seen := map[key]bool{}
	for _, c := range res.Candidates {
		k := key{c.TaxonID, c.PartID, c.FamilyHint}
		assert.False(t, seen[k], "duplicate %+v", k)
		seen[k] = true
	}
	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, 1, res.Duplicates)
}

func TestExpandFallbackAndApplicability(t *testing.T) {
	subs, ix := fixture(t)
	fams := []types.FamilyDefinition{{ID: "fam:tofu", IdentityTransforms: []string{"tf:press"}}}

	res, err := Expand(fams, nil, subs, ix, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fam:tofu"}, res.FallbackFamilies)
	require.Len(t, res.Candidates, 1, "press applicability limits the unrestricted rule")
	assert.Equal(t, "part:curd", res.Candidates[0].PartID)

	_, err = Expand(fams, nil, subs, ix, Options{StrictAllowlist: true})
	assert.Error(t, err)
}

func TestExpandSortedAndParams(t *testing.T) {
	subs, ix := fixture(t)
	fams := []types.FamilyDefinition{
		{ID: "fam:z", IdentityTransforms: []string{"tf:salt"}, Params: map[string]map[string]any{"tf:salt": {"nacl_pct": 2.0}}},
		{ID: "fam:a", IdentityTransforms: []string{"tf:mill"}},
	}
	res, err := Expand(fams, nil, subs, ix, Options{})
	require.NoError(t, err)

	for i := 1; i < len(res.Candidates); i++ {
		a, b := res.Candidates[i-1], res.Candidates[i]
		assert.LessOrEqual(t, a.TaxonID+"|"+a.PartID+"|"+a.FamilyHint, b.TaxonID+"|"+b.PartID+"|"+b.FamilyHint)
	}
	for _, c := range res.Candidates {
		if c.FamilyHint == "fam:z" {
			assert.Equal(t, json.Number("2"), c.Path[0].Params["nacl_pct"])
		}
	}
}

func TestExpandUnknownTransform(t *testing.T) {
	subs, ix := fixture(t)
	_, err := Expand([]types.FamilyDefinition{{ID: "fam:x", IdentityTransforms: []string{"tf:nope"}}}, nil, subs, ix, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tf:nope")
}

func TestRunWithoutFamilies(t *testing.T) {
	store := artifact.NewMemStore()
	stats, err := Run(context.Background(), store, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats["candidates"])

	ok, err := store.Exists(artifact.TptGenerated)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, store.Bytes(artifact.TptGenerated))
}

func TestRun(t *testing.T) {
	subs, ix := fixture(t)
	store := artifact.NewMemStore()
	require.NoError(t, artifact.WriteJSON(store, artifact.TransformsCanon, ix.All()))
	require.NoError(t, artifact.WriteJSONL(store, artifact.Substrates, subs.Pairs()))
	require.NoError(t, artifact.WriteJSON(store, artifact.Families, []types.FamilyDefinition{{ID: "fam:flour", IdentityTransforms: []string{"tf:mill"}}}))
	store.Put(artifact.FamilyAllowlist, []byte(`{"family":"fam:flour","taxon_prefix":"tx:plantae:poaceae:","parts":["part:seed"]}`+"\n"))

	stats, err := Run(context.Background(), store, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats["candidates"])
	assert.Equal(t, 0, stats["fallback_families"])

	cands, err := artifact.ReadJSONL[types.Candidate](store, artifact.TptGenerated)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, wheat, cands[0].TaxonID)
}
