package ux

import (
	"fmt"
	"sort"
	"strings"

	"foodonto/internal/contract"
	"foodonto/internal/pipeline"
)

// BuildSummary renders the per-stage outcome of a build.
func BuildSummary(m *pipeline.Manifest, styles Styles) string {
	if m == nil {
		return ""
	}
	t := NewTable(fmt.Sprintf("run %s", m.RunID), "stage", "status", "stats", "ms")
	for _, st := range m.Stages {
		status := styles.Muted.Render("built")
		if st.Report != nil {
			if st.Report.OK {
				status = styles.Success.Render("OK")
			} else {
				status = styles.Error.Render(fmt.Sprintf("FAIL (%d)", st.Report.ErrorCount))
			}
		}
		t.AddRow(st.Stage, status, formatStats(st.Stats), fmt.Sprint(st.DurationMS))
	}

	var sb strings.Builder
	sb.WriteString(t.View(styles))
	if m.OK {
		sb.WriteString(styles.Success.Render("build ok"))
	} else {
		sb.WriteString(styles.Error.Render("build failed"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// ReportSummary renders a verification report, listing at most maxErrors
// errors. maxErrors <= 0 lists none.
func ReportSummary(rep *contract.Report, location string, maxErrors int, styles Styles) string {
	if rep == nil {
		return ""
	}
	var sb strings.Builder
	if rep.OK {
		sb.WriteString(styles.Success.Render(fmt.Sprintf("stage %s: OK", rep.Stage)))
	} else {
		sb.WriteString(styles.Error.Render(fmt.Sprintf("stage %s: FAIL (%d errors)", rep.Stage, rep.ErrorCount)))
	}
	sb.WriteString(" ")
	sb.WriteString(styles.Muted.Render(location))
	sb.WriteString("\n")

	shown := min(max(maxErrors, 0), len(rep.Errors))
	for _, e := range rep.Errors[:shown] {
		sb.WriteString("  - ")
		sb.WriteString(styles.Body.Render(e))
		sb.WriteString("\n")
	}
	if rest := len(rep.Errors) - shown; rest > 0 && shown > 0 {
		sb.WriteString(styles.Muted.Render(fmt.Sprintf("  ... and %d more", rest)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatStats(stats map[string]int) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, stats[k]))
	}
	return strings.Join(parts, " ")
}
