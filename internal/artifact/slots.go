// Package artifact is the only interchange mechanism between pipeline stages.
//
// Every file a stage reads or writes is addressed through a named, versioned
// Slot. A Store resolves slots to bytes; FSStore maps them onto the ontology
// input root and the build root, MemStore keeps them in memory for tests.
package artifact

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Root selects which tree a slot lives in.
type Root int

const (
	// RootInput is the author-maintained ontology tree (--in).
	RootInput Root = iota
	// RootBuild is the generated build tree (--build).
	RootBuild
)

func (r Root) String() string {
	if r == RootInput {
		return "in"
	}
	return "build"
}

// Format describes the on-disk encoding of a slot.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// Slot names one artifact.
type Slot struct {
	Name     string
	Root     Root
	Path     string // slash separated, relative to Root
	Format   Format
	Version  int
	Producer string // who is expected to create it; used in preflight errors
}

func (s Slot) String() string {
	return fmt.Sprintf("%s (%s:%s)", s.Name, s.Root, s.Path)
}

// Author inputs.
var (
	TransformsBase     = Slot{Name: "transforms_base", Root: RootInput, Path: "rules/transforms.json", Format: FormatJSON, Version: 1, Producer: "ontology authors"}
	TransformOverrides = Slot{Name: "transform_overrides", Root: RootInput, Path: "rules/transform_overrides.json", Format: FormatJSON, Version: 1, Producer: "ontology authors"}
	Parts              = Slot{Name: "parts", Root: RootInput, Path: "rules/parts.json", Format: FormatJSON, Version: 1, Producer: "ontology authors"}
	SubstrateExtras    = Slot{Name: "substrate_extras", Root: RootInput, Path: "rules/substrate_extras.jsonl", Format: FormatJSONL, Version: 1, Producer: "ontology authors"}
	DerivedFoods       = Slot{Name: "derived_foods", Root: RootInput, Path: "rules/derived_foods.jsonl", Format: FormatJSONL, Version: 1, Producer: "ontology authors"}
	Families           = Slot{Name: "families", Root: RootInput, Path: "rules/families.json", Format: FormatJSON, Version: 1, Producer: "ontology authors"}
	FamilyAllowlist    = Slot{Name: "family_allowlist", Root: RootInput, Path: "rules/family_allowlist.jsonl", Format: FormatJSONL, Version: 1, Producer: "ontology authors"}
	ParamBuckets       = Slot{Name: "param_buckets", Root: RootInput, Path: "rules/param_buckets.json", Format: FormatJSON, Version: 1, Producer: "ontology authors"}
)

// Build artifacts.
var (
	Taxa            = Slot{Name: "taxa", Root: RootBuild, Path: "compiled/taxa.jsonl", Format: FormatJSONL, Version: 1, Producer: "taxonomy compiler"}
	TransformsCanon = Slot{Name: "transforms_canon", Root: RootBuild, Path: "tmp/transforms_canon.json", Format: FormatJSON, Version: 1, Producer: "stage A"}
	Substrates      = Slot{Name: "substrates", Root: RootBuild, Path: "graph/substrates.jsonl", Format: FormatJSONL, Version: 1, Producer: "stage B"}
	TptSeed         = Slot{Name: "tpt_seed", Root: RootBuild, Path: "tmp/tpt_seed.jsonl", Format: FormatJSONL, Version: 1, Producer: "stage C"}
	TptGenerated    = Slot{Name: "tpt_generated", Root: RootBuild, Path: "tmp/tpt_generated.jsonl", Format: FormatJSONL, Version: 1, Producer: "stage D"}
	TptCanon        = Slot{Name: "tpt_canon", Root: RootBuild, Path: "tmp/tpt_canon.jsonl", Format: FormatJSONL, Version: 1, Producer: "stage E"}
	Manifest        = Slot{Name: "build_manifest", Root: RootBuild, Path: "report/build_manifest.json", Format: FormatJSON, Version: 1, Producer: "pipeline"}
)

// Report returns the verification report slot for a stage.
func Report(stage string) Slot {
	s := strings.ToLower(stage)
	return Slot{Name: "verify_" + s, Root: RootBuild, Path: path.Join("report", "verify_"+s+".json"), Format: FormatJSON, Version: 1, Producer: "contract engine"}
}

// ContractOverride returns the optional author-supplied contract for a stage.
func ContractOverride(stage string) Slot {
	s := strings.ToLower(stage)
	return Slot{Name: "contract_" + s, Root: RootInput, Path: path.Join("contracts", "stage_"+s+".yml"), Format: FormatYAML, Version: 1, Producer: "ontology authors"}
}

var named = func() map[string]Slot {
	m := make(map[string]Slot)
	for _, s := range []Slot{
		TransformsBase, TransformOverrides, Parts, SubstrateExtras, DerivedFoods,
		Families, FamilyAllowlist, ParamBuckets,
		Taxa, TransformsCanon, Substrates, TptSeed, TptGenerated, TptCanon, Manifest,
	} {
		m[s.Name] = s
	}
	return m
}()

// ByName resolves a well-known slot by name, as referenced from contracts.
func ByName(name string) (Slot, bool) {
	s, ok := named[name]
	return s, ok
}

// Names lists every well-known slot name in sorted order.
func Names() []string {
	out := make([]string, 0, len(named))
	for n := range named {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
