package identity

import (
	"fmt"
	"sort"
	"strings"

	"foodonto/internal/artifact"
	"foodonto/internal/types"
)

// Buckets maps "transform_id.param_key" to its bucket spec.
type Buckets map[string]types.BucketSpec

// Label maps v onto the monotonic partition described by spec:
// v <= cuts[0] is labels[0], cuts[i-1] < v <= cuts[i] is labels[i], and
// anything above the last cut takes the last label.
func Label(spec types.BucketSpec, v float64) string {
	for i, cut := range spec.Cuts {
		if v <= cut {
			return spec.Labels[i]
		}
	}
	return spec.Labels[len(spec.Labels)-1]
}

// Validate checks every spec is a well-formed partition.
func (b Buckets) Validate() error {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		spec := b[k]
		if !strings.Contains(k, ".") {
			return fmt.Errorf("bucket key %q must be transform_id.param_key", k)
		}
		if len(spec.Cuts) == 0 {
			return fmt.Errorf("bucket %q has no cut points", k)
		}
		if len(spec.Labels) != len(spec.Cuts)+1 {
			return fmt.Errorf("bucket %q needs %d labels for %d cuts, got %d", k, len(spec.Cuts)+1, len(spec.Cuts), len(spec.Labels))
		}
		for i := 1; i < len(spec.Cuts); i++ {
			if spec.Cuts[i] <= spec.Cuts[i-1] {
				return fmt.Errorf("bucket %q cut points must be strictly ascending", k)
			}
		}
	}
	return nil
}

// LoadBuckets reads the optional bucket specs. A missing file means no bucketing.
func LoadBuckets(store artifact.Store) (Buckets, error) {
	b := Buckets{}
	err := artifact.ReadJSON(store, artifact.ParamBuckets, &b)
	if artifact.IsNotFound(err) {
		return Buckets{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", store.Location(artifact.ParamBuckets), err)
	}
	return b, nil
}
