package transforms

import (
	"context"
	"fmt"

	"foodonto/internal/artifact"
	"foodonto/internal/logging"
)

// Run executes Stage A against store.
func Run(ctx context.Context, store artifact.Store) (map[string]int, error) {
	timer := logging.StartTimer(logging.CategoryTransforms, "stage A")
	defer timer.Stop()
	log := logging.Get(logging.CategoryTransforms)

	baseLoc := store.Location(artifact.TransformsBase)
	var doc any
	if err := artifact.ReadJSON(store, artifact.TransformsBase, &doc); err != nil {
		return nil, err
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, &ValidationError{Location: baseLoc, Msg: "transform base must be a JSON array"}
	}
	base := make([]map[string]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &ValidationError{Location: baseLoc, Msg: fmt.Sprintf("entry %d is not an object", i)}
		}
		base = append(base, obj)
	}

	external := Layer{Name: "external", Location: store.Location(artifact.TransformOverrides)}
	var ovDoc any
	switch err := artifact.ReadJSON(store, artifact.TransformOverrides, &ovDoc); {
	case artifact.IsNotFound(err):
		log.Debug("no external overrides at %s", store.Location(artifact.TransformOverrides))
	case err != nil:
		return nil, err
	default:
		entries, err := ParseOverrides(store.Location(artifact.TransformOverrides), ovDoc)
		if err != nil {
			return nil, err
		}
		external.Entries = entries
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := Canonicalize(baseLoc, base, []Layer{external, BuiltinLayer()})
	if err != nil {
		return nil, err
	}
	for layer, ids := range res.Unmatched {
		if layer == "builtin" {
			continue
		}
		for _, id := range ids {
			log.Warn("%s override for unknown transform %q ignored", layer, id)
		}
	}

	if err := artifact.WriteJSON(store, artifact.TransformsCanon, res.Transforms); err != nil {
		return nil, err
	}

	stats := map[string]int{
		"input":              len(base),
		"external_overrides": res.Applied["external"],
		"builtin_overrides":  res.Applied["builtin"],
		"output":             len(res.Transforms),
	}
	log.Stats("stage A complete", stats)
	return stats, nil
}
