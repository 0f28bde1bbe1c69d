package pipeline

import (
	"context"
	"fmt"
	"strings"

	"foodonto/internal/artifact"
	"foodonto/internal/families"
	"foodonto/internal/identity"
	"foodonto/internal/seed"
	"foodonto/internal/substrates"
	"foodonto/internal/transforms"
)

// SelectAll runs every stage in order.
const SelectAll = "all"

// Stage is one step of the build.
type Stage struct {
	Name     string
	Title    string
	Requires []artifact.Slot
	Produces []artifact.Slot
	run      func(ctx context.Context, store artifact.Store, opts Options) (map[string]int, error)
}

var stages = []Stage{
	{
		Name:     "A",
		Title:    "transform canonicalization",
		Requires: []artifact.Slot{artifact.TransformsBase},
		Produces: []artifact.Slot{artifact.TransformsCanon},
		run: func(ctx context.Context, store artifact.Store, _ Options) (map[string]int, error) {
			return transforms.Run(ctx, store)
		},
	},
	{
		Name:     "B",
		Title:    "substrate build",
		Requires: []artifact.Slot{artifact.TransformsCanon, artifact.Taxa, artifact.Parts},
		Produces: []artifact.Slot{artifact.Substrates},
		run: func(ctx context.Context, store artifact.Store, opts Options) (map[string]int, error) {
			return substrates.Run(ctx, store, opts.Substrates)
		},
	},
	{
		Name:     "C",
		Title:    "curated seed ingest",
		Requires: []artifact.Slot{artifact.TransformsCanon, artifact.Substrates},
		Produces: []artifact.Slot{artifact.TptSeed},
		run: func(ctx context.Context, store artifact.Store, _ Options) (map[string]int, error) {
			return seed.Run(ctx, store)
		},
	},
	{
		Name:     "D",
		Title:    "family expansion",
		Requires: []artifact.Slot{artifact.TransformsCanon, artifact.Substrates},
		Produces: []artifact.Slot{artifact.TptGenerated},
		run: func(ctx context.Context, store artifact.Store, opts Options) (map[string]int, error) {
			return families.Run(ctx, store, opts.Families)
		},
	},
	{
		Name:     "E",
		Title:    "identity canonicalization",
		Requires: []artifact.Slot{artifact.TransformsCanon},
		Produces: []artifact.Slot{artifact.TptCanon},
		run: func(ctx context.Context, store artifact.Store, _ Options) (map[string]int, error) {
			return identity.Run(ctx, store)
		},
	},
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return append([]Stage(nil), stages...)
}

// Names lists the accepted stage selectors.
func Names() []string {
	out := make([]string, 0, len(stages)+1)
	for _, s := range stages {
		out = append(out, s.Name)
	}
	return append(out, SelectAll)
}

// Select resolves a stage selector (a stage name or "all"), case-insensitively.
func Select(sel string) ([]Stage, error) {
	sel = strings.TrimSpace(sel)
	if strings.EqualFold(sel, SelectAll) {
		return Stages(), nil
	}
	for _, s := range stages {
		if strings.EqualFold(s.Name, sel) {
			return []Stage{s}, nil
		}
	}
	return nil, fmt.Errorf("unknown stage %q (valid: %s)", sel, strings.Join(Names(), ", "))
}
