package regression

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodonto/internal/identity"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

func fixture(t *testing.T) (*transforms.Index, identity.Buckets) {
	t.Helper()
	ix, err := transforms.NewIndex([]types.TransformDefinition{
		{ID: "tf:soak", Identity: true, Order: 10},
		{ID: "tf:cook", Identity: true, Order: 30, Params: []types.Param{{Key: "temp_c", IdentityParam: true}}},
		{ID: "tf:wash", Identity: false, Order: 1},
	})
	require.NoError(t, err)
	return ix, identity.Buckets{"tf:cook.temp_c": {Cuts: []float64{0, 120}, Labels: []string{"none", "low", "high"}}}
}

func writeBattery(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "battery.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func TestLoadAndRunBattery(t *testing.T) {
	path := writeBattery(t, `
version: 1
cases:
  - id: same-bucket
    taxon_id: tx:plantae:fabaceae:glycine:max
    part_id: part:seed
    expect: merge
    paths:
      - [{transform_id: tf:cook, params: {temp_c: 100}}]
      - [{transform_id: tf:cook, params: {temp_c: 110.0}}, {transform_id: tf:wash}]
  - id: order-insensitive
    taxon_id: tx:plantae:fabaceae:glycine:max
    part_id: part:seed
    expect: merge
    paths:
      - [{transform_id: tf:soak}, {transform_id: tf:cook, params: {temp_c: 90}}]
      - [{transform_id: tf:cook, params: {temp_c: 90}}, {transform_id: tf:soak}]
  - id: boundary
    taxon_id: tx:plantae:fabaceae:glycine:max
    part_id: part:seed
    expect: distinct
    paths:
      - [{transform_id: tf:cook, params: {temp_c: 110}}]
      - [{transform_id: tf:cook, params: {temp_c: 130}}]
`)
	b, err := LoadBattery(path)
	require.NoError(t, err)
	require.Len(t, b.Cases, 3)

	ix, buckets := fixture(t)
	results := RunBattery(b, ix, buckets)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, "%s: %s", r.CaseID, r.Error)
		assert.Len(t, r.Hashes, 2)
	}
}

func TestRunBatteryReportsFailures(t *testing.T) {
	ix, buckets := fixture(t)
	b := &Battery{Cases: []Case{
		{ID: "wrongly-merged", Expect: ExpectMerge, Paths: [][]Step{
			{{TransformID: "tf:cook", Params: map[string]any{"temp_c": 10}}},
			{{TransformID: "tf:cook", Params: map[string]any{"temp_c": 500}}},
		}},
		{ID: "unknown", Expect: ExpectDistinct, Paths: [][]Step{{{TransformID: "tf:fry"}}, {}}},
	}}

	results := RunBattery(b, ix, buckets)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "expected one identity")
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "unknown transform tf:fry")
}

func TestLoadBatteryRejectsMalformed(t *testing.T) {
	docs := []string{
		"cases: [{id: a, expect: merge, paths: [[]]}]",
		"cases: [{id: a, expect: maybe, paths: [[], []]}]",
		"cases: [{expect: merge, paths: [[], []]}]",
		"cases: {",
	}
	for _, d := range docs {
		_, err := LoadBattery(writeBattery(t, d))
		assert.Error(t, err, d)
	}
	_, err := LoadBattery(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunBatteryEmpty(t *testing.T) {
	ix, buckets := fixture(t)
	assert.Nil(t, RunBattery(nil, ix, buckets))
	assert.Nil(t, RunBattery(&Battery{}, ix, buckets))
}

func TestDefaultBatteryPath(t *testing.T) {
	assert.Equal(t, filepath.Join("onto", "regression", "identity_battery.yml"), DefaultBatteryPath("onto"))
}
