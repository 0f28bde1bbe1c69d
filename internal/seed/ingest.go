// Package seed implements Stage C: ingesting hand-authored derived foods as
// TPT candidates.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"foodonto/internal/artifact"
	"foodonto/internal/logging"
	"foodonto/internal/substrates"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// Row is one line of rules/derived_foods.jsonl.
type Row struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name,omitempty"`
	TaxonID    string    `json:"taxon_id"`
	PartID     string    `json:"part_id"`
	Family     string    `json:"family,omitempty"`
	Transforms []RawStep `json:"transforms"`
	Synonyms   []string  `json:"synonyms,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// RawStep is an authored path step. Either id or transform_id names the transform.
type RawStep struct {
	ID          string          `json:"id,omitempty"`
	TransformID string          `json:"transform_id,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Skip records why a row was not ingested.
type Skip struct {
	Line   int
	Reason string
}

// Result is the outcome of Ingest.
type Result struct {
	Candidates      []types.Candidate
	Skipped         []Skip
	UnresolvedSteps int
}

// Ingest validates rows and reduces each accepted row to its identity path.
// lines[i] is the source line of rows[i]; it may be nil.
func Ingest(rows []Row, lines []int, subs *substrates.Set, ix *transforms.Index) *Result {
	res := &Result{}
	for i, row := range rows {
		line := i + 1
		if lines != nil {
			line = lines[i]
		}
		taxon, part := strings.TrimSpace(row.TaxonID), strings.TrimSpace(row.PartID)
		if taxon == "" || part == "" {
			res.Skipped = append(res.Skipped, Skip{Line: line, Reason: "missing taxon_id or part_id"})
			continue
		}
		if !subs.Contains(taxon, part) {
			res.Skipped = append(res.Skipped, Skip{Line: line, Reason: fmt.Sprintf("unknown substrate %s/%s", taxon, part)})
			continue
		}

		full := make([]types.Step, 0, len(row.Transforms))
		ok := true
		for j, rs := range row.Transforms {
			id := strings.TrimSpace(rs.TransformID)
			if id == "" {
				id = strings.TrimSpace(rs.ID)
			}
			params, err := NormalizeParams(rs.Params)
			if err != nil {
				res.Skipped = append(res.Skipped, Skip{Line: line, Reason: fmt.Sprintf("step %d (%s): %v", j+1, id, err)})
				ok = false
				break
			}
			full = append(full, types.Step{TransformID: id, Params: params})
		}
		if !ok {
			continue
		}

		path := make([]types.Step, 0, len(full))
		for _, s := range full {
			if _, known := ix.Get(s.TransformID); !known {
				res.UnresolvedSteps++
				continue
			}
			if !ix.IsIdentity(s.TransformID) {
				continue
			}
			path = append(path, s)
		}
		ix.SortSteps(path)

		res.Candidates = append(res.Candidates, types.Candidate{
			TaxonID:    taxon,
			PartID:     part,
			FamilyHint: strings.TrimSpace(row.Family),
			Path:       path,
			PathFull:   full,
			Name:       row.Name,
			Synonyms:   row.Synonyms,
			Notes:      row.Notes,
			Source:     types.SourceSeed,
		})
	}
	return res
}

// Run executes Stage C against store.
func Run(ctx context.Context, store artifact.Store) (map[string]int, error) {
	timer := logging.StartTimer(logging.CategorySeed, "stage C")
	defer timer.Stop()
	log := logging.Get(logging.CategorySeed)

	subs, err := substrates.Load(store)
	if err != nil {
		return nil, err
	}
	ix, err := transforms.LoadIndex(store)
	if err != nil {
		return nil, err
	}

	var rows []Row
	var lines []int
	err = artifact.EachJSONL(store, artifact.DerivedFoods, func(line int, raw []byte) error {
		var r Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rows = append(rows, r)
		lines = append(lines, line)
		return nil
	})
	switch {
	case artifact.IsNotFound(err):
		log.Info("no derived foods at %s; writing empty seed", store.Location(artifact.DerivedFoods))
	case err != nil:
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := Ingest(rows, lines, subs, ix)
	for _, s := range res.Skipped {
		log.Debug("skipped %s:%d: %s", store.Location(artifact.DerivedFoods), s.Line, s.Reason)
	}

	if res.Candidates == nil {
		res.Candidates = []types.Candidate{}
	}
	if err := artifact.WriteJSONL(store, artifact.TptSeed, res.Candidates); err != nil {
		return nil, err
	}

	stats := map[string]int{
		"rows":             len(rows),
		"accepted":         len(res.Candidates),
		"skipped":          len(res.Skipped),
		"unresolved_steps": res.UnresolvedSteps,
	}
	if len(res.Skipped) > 0 {
		log.Warn("skipped %d of %d derived food rows", len(res.Skipped), len(rows))
	}
	log.Stats("stage C complete", stats)
	return stats, nil
}
