package applicability

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"foodonto/internal/types"
)

func TestNormalize(t *testing.T) {
	in := []types.ApplicabilityRule{
		{TaxonPrefix: "tx:plantae:poaceae:", Parts: []string{"part:seed", "part:bran", "part:seed"}},
		{TaxonPrefix: "tx:plantae:fabaceae", Parts: nil},
		{TaxonPrefix: "tx:plantae:poaceae", Parts: []string{"part:bran", "part:seed"}},
	}
	want := []types.ApplicabilityRule{
		{TaxonPrefix: "tx:plantae:fabaceae", Parts: []string{}},
		{TaxonPrefix: "tx:plantae:poaceae", Parts: []string{"part:bran", "part:seed"}},
	}
	if diff := cmp.Diff(want, Normalize(in)); diff != "" {
		t.Fatalf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Nil(t, Normalize(nil))
}

func TestForTransformPressInvariant(t *testing.T) {
	in := []types.ApplicabilityRule{
		{TaxonPrefix: "tx:plantae:fabaceae:glycine", Parts: []string{PlantMilkPart}},
		{TaxonPrefix: "tx:plantae:fabaceae:glycine:", Parts: []string{CurdPart, PlantMilkPart}},
		{TaxonPrefix: "tx:animalia:bos", Parts: []string{"part:milk"}},
		{TaxonPrefix: "tx:plantae", Parts: nil},
	}
	got := ForTransform(PressTransformID, in)

	for _, r := range got {
		assert.NotContains(t, r.Parts, PlantMilkPart, "rule %+v", r)
		assert.Contains(t, r.Parts, CurdPart, "rule %+v", r)
	}
	// The two glycine rows collapse once normalized.
	assert.Len(t, got, 3)
}

func TestForTransformLeavesOthersAlone(t *testing.T) {
	in := []types.ApplicabilityRule{{TaxonPrefix: "tx:plantae", Parts: []string{PlantMilkPart}}}
	got := ForTransform("tf:strain", in)
	assert.Equal(t, []string{PlantMilkPart}, got[0].Parts)
}

func TestGroup(t *testing.T) {
	rows := []types.AllowlistRule{
		{Family: "fam:tofu", TaxonPrefix: "tx:plantae:fabaceae:glycine:", Parts: []string{"part:curd"}},
		{Family: "fam:tofu", TaxonPrefix: "tx:plantae:fabaceae:glycine", Parts: []string{"part:curd"}},
		{Family: "fam:flour", TaxonPrefix: "tx:plantae:poaceae"},
		{Family: " ", TaxonPrefix: "tx:ignored"},
	}
	got := Group(rows)
	assert.Len(t, got, 2)
	assert.Len(t, got["fam:tofu"], 1)
	assert.Equal(t, "tx:plantae:fabaceae:glycine", got["fam:tofu"][0].TaxonPrefix)
}
