// Package contract verifies stage outputs against declarative YAML contracts
// and registered custom checks, producing a pass/fail report per stage.
package contract

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"foodonto/internal/artifact"
)

//go:embed defaults/*.yml
var defaults embed.FS

// Row shapes a slot may be required to have.
const (
	FormatJSONArray  = "json_array"
	FormatJSONObject = "json_object"
	FormatJSONL      = "jsonl"
)

// Contract is the declarative part of a stage's verification.
type Contract struct {
	Stage     string         `yaml:"stage"`
	Artifacts []ArtifactRule `yaml:"artifacts"`
}

// ArtifactRule lists the validators applied to one slot.
type ArtifactRule struct {
	Slot           string     `yaml:"slot"`
	Required       bool       `yaml:"required"`
	Format         string     `yaml:"format"`
	MinRows        int        `yaml:"min_rows"`
	RequiredFields []string   `yaml:"required_fields"`
	Unique         [][]string `yaml:"unique"`
	SortedBy       []string   `yaml:"sorted_by"`
	Expr           []ExprRule `yaml:"expr"`
}

// ExprRule is a CEL expression evaluated against every row; it must yield true.
type ExprRule struct {
	Name string `yaml:"name"`
	Rule string `yaml:"rule"`
}

// Parse decodes and validates a contract document. Unknown keys are rejected.
func Parse(loc string, data []byte) (*Contract, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Contract
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return &c, nil
}

func (c *Contract) validate() error {
	if strings.TrimSpace(c.Stage) == "" {
		return fmt.Errorf("contract has no stage")
	}
	for i, a := range c.Artifacts {
		if _, ok := artifact.ByName(a.Slot); !ok {
			return fmt.Errorf("artifacts[%d]: unknown slot %q (known: %s)", i, a.Slot, strings.Join(artifact.Names(), ", "))
		}
		switch a.Format {
		case "", FormatJSONArray, FormatJSONObject, FormatJSONL:
		default:
			return fmt.Errorf("artifacts[%d]: unknown format %q", i, a.Format)
		}
		if a.MinRows < 0 {
			return fmt.Errorf("artifacts[%d]: min_rows must be >= 0", i)
		}
		for j, u := range a.Unique {
			if len(u) == 0 {
				return fmt.Errorf("artifacts[%d].unique[%d]: empty key set", i, j)
			}
		}
		for j, e := range a.Expr {
			if strings.TrimSpace(e.Rule) == "" {
				return fmt.Errorf("artifacts[%d].expr[%d]: empty rule", i, j)
			}
		}
	}
	return nil
}

// Load returns the contract for stage: the author override under
// contracts/stage_<x>.yml when present, else the built-in default.
func Load(store artifact.Store, stage string) (*Contract, error) {
	slot := artifact.ContractOverride(stage)
	ok, err := store.Exists(slot)
	if err != nil {
		return nil, err
	}
	if ok {
		data, err := artifact.ReadBytes(store, slot)
		if err != nil {
			return nil, err
		}
		return Parse(store.Location(slot), data)
	}
	return Default(stage)
}

// Default returns the built-in contract for stage.
func Default(stage string) (*Contract, error) {
	name := "defaults/stage_" + strings.ToLower(stage) + ".yml"
	data, err := defaults.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("no built-in contract for stage %q", stage)
	}
	return Parse("builtin:"+name, data)
}
