// Package regression runs identity batteries: YAML suites in which ontology
// authors state which authored paths must collapse into one identity and
// which must stay distinct, checked against the current transform canon and
// bucket specs.
package regression

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"foodonto/internal/identity"
	"foodonto/internal/transforms"
	"foodonto/internal/types"
)

// Expectations a case may state.
const (
	ExpectMerge    = "merge"
	ExpectDistinct = "distinct"
)

// Battery is a collection of identity cases.
type Battery struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases"`
}

// Case lists two or more paths on one substrate and the expected outcome.
type Case struct {
	ID      string   `yaml:"id"`
	TaxonID string   `yaml:"taxon_id"`
	PartID  string   `yaml:"part_id"`
	Paths   [][]Step `yaml:"paths"`
	Expect  string   `yaml:"expect"` // "merge" or "distinct"
}

// Step is an authored path step.
type Step struct {
	TransformID string         `yaml:"transform_id"`
	Params      map[string]any `yaml:"params,omitempty"`
}

// Result captures the outcome of one case.
type Result struct {
	CaseID  string
	Success bool
	Hashes  []string
	Error   string
}

// LoadBattery reads a YAML battery file from disk.
func LoadBattery(path string) (*Battery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Battery
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse battery YAML: %w", err)
	}
	for i, c := range b.Cases {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("case %d has no id", i+1)
		}
		if len(c.Paths) < 2 {
			return nil, fmt.Errorf("case %s needs at least two paths", c.ID)
		}
		switch c.Expect {
		case ExpectMerge, ExpectDistinct:
		default:
			return nil, fmt.Errorf("case %s: expect must be %q or %q, got %q", c.ID, ExpectMerge, ExpectDistinct, c.Expect)
		}
	}
	return &b, nil
}

// RunBattery evaluates every case. Paths are canonicalized exactly as
// Stage E does it.
func RunBattery(b *Battery, ix *transforms.Index, buckets identity.Buckets) []Result {
	if b == nil || len(b.Cases) == 0 {
		return nil
	}
	canon := identity.NewCanonicalizer(ix, buckets)

	results := make([]Result, 0, len(b.Cases))
	for _, c := range b.Cases {
		res := Result{CaseID: c.ID}
		if err := runCase(canon, ix, c, &res); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func runCase(canon *identity.Canonicalizer, ix *transforms.Index, c Case, res *Result) error {
	for _, path := range c.Paths {
		steps := make([]types.Step, 0, len(path))
		for _, s := range path {
			if _, ok := ix.Get(s.TransformID); !ok {
				return fmt.Errorf("unknown transform %s", s.TransformID)
			}
			steps = append(steps, types.Step{TransformID: s.TransformID, Params: s.Params})
		}
		ident, _, err := canon.Identity(steps)
		if err != nil {
			return err
		}
		h, err := identity.Hash(c.TaxonID, c.PartID, ident)
		if err != nil {
			return err
		}
		res.Hashes = append(res.Hashes, h)
	}

	distinct := make(map[string]struct{}, len(res.Hashes))
	for _, h := range res.Hashes {
		distinct[h] = struct{}{}
	}
	switch c.Expect {
	case ExpectMerge:
		if len(distinct) != 1 {
			return fmt.Errorf("expected one identity, got %d", len(distinct))
		}
	case ExpectDistinct:
		if len(distinct) != len(res.Hashes) {
			return fmt.Errorf("expected %d identities, got %d", len(res.Hashes), len(distinct))
		}
	}
	res.Success = true
	return nil
}

// DefaultBatteryPath returns the canonical battery path under an input root.
func DefaultBatteryPath(inRoot string) string {
	return filepath.Join(inRoot, "regression", "identity_battery.yml")
}
