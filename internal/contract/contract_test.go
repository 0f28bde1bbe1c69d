package contract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodonto/internal/artifact"
)

func verifyWith(t *testing.T, store *artifact.MemStore, reg *Registry, stage string) *Report {
	t.Helper()
	rep, err := NewEngine(store, reg, Env{}).Verify(context.Background(), stage)
	require.NoError(t, err)
	return rep
}

func overrideContract(store *artifact.MemStore, stage, doc string) {
	store.Put(artifact.ContractOverride(stage), []byte(doc))
}

func containsFinding(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

func TestBuiltinContractsParse(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, Stages())
	for _, s := range Stages() {
		c, err := Default(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, c.Stage)
		assert.NotEmpty(t, c.Artifacts)
	}
	_, err := Default("Z")
	assert.Error(t, err)
}

func TestParseRejects(t *testing.T) {
	docs := map[string]string{
		"unknown key":    "stage: A\nartifactz: []\n",
		"unknown slot":   "stage: A\nartifacts:\n  - slot: nope\n",
		"unknown format": "stage: A\nartifacts:\n  - slot: substrates\n    format: csv\n",
		"empty unique":   "stage: A\nartifacts:\n  - slot: substrates\n    unique: [[]]\n",
		"no stage":       "artifacts: []\n",
		"empty expr":     "stage: A\nartifacts:\n  - slot: substrates\n    expr:\n      - name: x\n",
	}
	for name, doc := range docs {
		_, err := Parse("test.yml", []byte(doc))
		assert.Error(t, err, name)
	}
}

func TestMissingRequiredArtifact(t *testing.T) {
	store := artifact.NewMemStore()
	rep := verifyWith(t, store, nil, "b")

	assert.Equal(t, "B", rep.Stage)
	assert.False(t, rep.OK)
	assert.Equal(t, 1, rep.ErrorCount)
	assert.Contains(t, rep.Errors[0], "required artifact missing")

	var onDisk Report
	require.NoError(t, json.Unmarshal(store.Bytes(artifact.Report("B")), &onDisk))
	assert.Equal(t, *rep, onDisk)
}

func TestPassingReportHasEmptyErrors(t *testing.T) {
	store := artifact.NewMemStore()
	store.Put(artifact.Substrates, []byte(`{"taxon_id":"tx:a","part_id":"part:x"}`+"\n"+`{"taxon_id":"tx:b","part_id":"part:x"}`+"\n"))
	rep := verifyWith(t, store, nil, "B")
	assert.True(t, rep.OK, rep.Errors)
	assert.Contains(t, string(store.Bytes(artifact.Report("B"))), `"errors": []`)
}

func TestDeclarativeValidators(t *testing.T) {
	store := artifact.NewMemStore()
	overrideContract(store, "B", `
stage: B
artifacts:
  - slot: substrates
    required: true
    min_rows: 10
    required_fields: [taxon_id, part_id]
    unique:
      - [taxon_id, part_id]
    sorted_by: [taxon_id]
    expr:
      - name: part_prefixed
        rule: row.part_id.startsWith("part:")
`)
	store.Put(artifact.Substrates, []byte(strings.Join([]string{
		`{"taxon_id":"tx:b","part_id":"part:x"}`,
		`{"taxon_id":"tx:a","part_id":"part:x"}`,
		`{"taxon_id":"tx:a","part_id":"part:x"}`,
		`{"taxon_id":"tx:c","part_id":"leaf"}`,
		`{"taxon_id":"tx:d"}`,
	}, "\n")))

	rep := verifyWith(t, store, nil, "B")
	assert.False(t, rep.OK)
	assert.True(t, containsFinding(rep.Errors, "min_rows"), rep.Errors)
	assert.True(t, containsFinding(rep.Errors, "row 5 missing part_id"), rep.Errors)
	assert.True(t, containsFinding(rep.Errors, "row 3 duplicates row 2"), rep.Errors)
	assert.True(t, containsFinding(rep.Errors, "row 2 sorts before row 1"), rep.Errors)
	assert.True(t, containsFinding(rep.Errors, "row 4 violates"), rep.Errors)
}

func TestFormatShape(t *testing.T) {
	store := artifact.NewMemStore()
	store.Put(artifact.TransformsCanon, []byte(`{"id":"tf:a"}`))
	rep := verifyWith(t, store, nil, "A")
	assert.True(t, containsFinding(rep.Errors, "expected a JSON array, got object"), rep.Errors)
}

func TestExprCompileErrorIsAFinding(t *testing.T) {
	store := artifact.NewMemStore()
	overrideContract(store, "B", `
stage: B
artifacts:
  - slot: substrates
    expr:
      - name: broken
        rule: row.taxon_id ==
`)
	store.Put(artifact.Substrates, []byte(`{"taxon_id":"tx:a","part_id":"part:x"}`))
	rep := verifyWith(t, store, nil, "B")
	assert.Equal(t, 1, rep.ErrorCount)
	assert.Contains(t, rep.Errors[0], "compile")
}

func TestExprSeesNumbersAsInts(t *testing.T) {
	store := artifact.NewMemStore()
	store.Put(artifact.TransformsCanon, []byte(`[{"id":"tf:a","identity":true,"order":-1,"params":[]}]`))
	rep := verifyWith(t, store, nil, "A")
	assert.Equal(t, 1, rep.ErrorCount, rep.Errors)
	assert.True(t, containsFinding(rep.Errors, "order_is_non_negative"), rep.Errors)
}

func TestFindingsAreCapped(t *testing.T) {
	store := artifact.NewMemStore()
	var lines []string
	for i := 0; i < maxFindingsPerRule+5; i++ {
		lines = append(lines, `{"taxon_id":"","part_id":""}`)
	}
	store.Put(artifact.Substrates, []byte(strings.Join(lines, "\n")))
	overrideContract(store, "B", "stage: B\nartifacts:\n  - slot: substrates\n    expr:\n      - name: ids\n        rule: row.taxon_id != \"\"\n")

	rep := verifyWith(t, store, nil, "B")
	assert.Equal(t, maxFindingsPerRule+1, rep.ErrorCount)
	assert.Contains(t, rep.Errors[maxFindingsPerRule], "5 more findings suppressed")
}

func TestCustomChecksAreIsolated(t *testing.T) {
	store := artifact.NewMemStore()
	overrideContract(store, "C", "stage: C\nartifacts: []\n")

	reg := NewRegistry()
	ran := false
	reg.Register("C", "boom", func(Env) ([]string, error) { panic("kaboom") })
	reg.Register("C", "fails", func(Env) ([]string, error) { return nil, errors.New("cannot read") })
	reg.Register("c", "finds", func(env Env) ([]string, error) {
		ran = true
		assert.Same(t, store, env.Store)
		return []string{"one", "two"}, nil
	})
	assert.Equal(t, []string{"boom", "fails", "finds"}, reg.Names("C"))

	rep := verifyWith(t, store, reg, "C")
	assert.True(t, ran, "later checks still run after a panic")
	assert.Equal(t, []string{
		"check boom panicked: kaboom",
		"check fails: cannot read",
		"finds: one",
		"finds: two",
	}, rep.Errors)
}

func TestOverrideContractMustParse(t *testing.T) {
	store := artifact.NewMemStore()
	overrideContract(store, "A", "stage: [")
	_, err := NewEngine(store, nil, Env{}).Verify(context.Background(), "A")
	assert.Error(t, err)
}

func TestVerifyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(artifact.NewMemStore(), nil, Env{}).Verify(ctx, "A")
	assert.ErrorIs(t, err, context.Canceled)
}
