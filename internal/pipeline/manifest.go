package pipeline

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"foodonto/internal/artifact"
	"foodonto/internal/canon"
)

// Manifest summarizes one build invocation.
type Manifest struct {
	RunID     string           `json:"run_id"`
	Selector  string           `json:"selector"`
	OK        bool             `json:"ok"`
	Stages    []StageResult    `json:"stages"`
	Artifacts []ArtifactDigest `json:"artifacts"`
}

// StageResult is the outcome of one executed stage.
type StageResult struct {
	Stage      string           `json:"stage"`
	Stats      map[string]int   `json:"stats"`
	Verified   bool             `json:"verified"`
	Report     *ContractSummary `json:"report,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// ContractSummary is the part of a verification report kept in the manifest.
type ContractSummary struct {
	OK         bool `json:"ok"`
	ErrorCount int  `json:"error_count"`
}

// ArtifactDigest identifies the content of one produced artifact.
type ArtifactDigest struct {
	Slot   string `json:"slot"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

// hashArtifacts digests slots with at most limit concurrent reads. Missing
// slots are left out. Results are sorted by slot name.
func hashArtifacts(ctx context.Context, store artifact.Store, slots []artifact.Slot, limit int) ([]ArtifactDigest, error) {
	if limit < 1 {
		limit = 1
	}
	digests := make([]*ArtifactDigest, len(slots))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, slot := range slots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := artifact.ReadBytes(store, slot)
			if artifact.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			digests[i] = &ArtifactDigest{
				Slot:   slot.Name,
				Path:   slot.Path,
				SHA256: canon.HashBytes(data),
				Bytes:  len(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ArtifactDigest, 0, len(digests))
	for _, d := range digests {
		if d != nil {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}
