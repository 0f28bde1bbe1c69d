package ux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"foodonto/internal/contract"
	"foodonto/internal/pipeline"
)

func TestBuildSummary(t *testing.T) {
	m := &pipeline.Manifest{
		RunID: "r1",
		OK:    false,
		Stages: []pipeline.StageResult{
			{Stage: "A", Stats: map[string]int{"output": 3, "input": 3}, Report: &pipeline.ContractSummary{OK: true}},
			{Stage: "B", Stats: map[string]int{"pairs": 0}, Report: &pipeline.ContractSummary{ErrorCount: 2}},
			{Stage: "C"},
		},
	}
	out := BuildSummary(m, PlainStyles())
	assert.Contains(t, out, "run r1")
	assert.Contains(t, out, "input=3 output=3")
	assert.Contains(t, out, "FAIL (2)")
	assert.Contains(t, out, "built")
	assert.True(t, strings.HasSuffix(out, "build failed\n"))
	assert.Empty(t, BuildSummary(nil, PlainStyles()))
}

func TestReportSummaryTruncates(t *testing.T) {
	rep := &contract.Report{Stage: "E", Errors: []string{"e1", "e2", "e3"}, ErrorCount: 3}
	out := ReportSummary(rep, "/b/report/verify_e.json", 2, PlainStyles())
	assert.Contains(t, out, "stage E: FAIL (3 errors) /b/report/verify_e.json")
	assert.Contains(t, out, "  - e1\n  - e2\n")
	assert.NotContains(t, out, "e3")
	assert.Contains(t, out, "and 1 more")

	quiet := ReportSummary(rep, "loc", 0, PlainStyles())
	assert.NotContains(t, quiet, "e1")
	assert.NotContains(t, quiet, "more")
}

func TestReportSummaryOK(t *testing.T) {
	out := ReportSummary(&contract.Report{Stage: "A", OK: true, Errors: []string{}}, "loc", 5, PlainStyles())
	assert.Equal(t, "stage A: OK loc\n", out)
}

func TestTableAlignsColumns(t *testing.T) {
	tb := NewTable("", "k", "value")
	assert.Empty(t, tb.View(PlainStyles()))

	tb.AddRow("long-key", "v")
	tb.AddRow("k2")
	lines := strings.Split(strings.TrimRight(tb.View(PlainStyles()), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, len(lines[0]), len(lines[2]))
	assert.Equal(t, len(lines[2]), len(lines[3]))
}
