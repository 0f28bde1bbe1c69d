// Package pipeline sequences the build stages, gating each on preflight
// artifact checks and, optionally, on its verification contract.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"foodonto/internal/artifact"
	"foodonto/internal/contract"
	"foodonto/internal/families"
	"foodonto/internal/logging"
	"foodonto/internal/substrates"
)

// Options configures a Runner.
type Options struct {
	Substrates substrates.Options
	Families   families.Options

	// Verify runs each stage's contract right after the stage.
	Verify bool
	// Manifest writes report/build_manifest.json after a build.
	Manifest bool
	// HashConcurrency bounds parallel artifact hashing for the manifest.
	HashConcurrency int

	Registry *contract.Registry
	// InDir and BuildDir are handed to custom checks.
	InDir, BuildDir string
}

// Runner executes stages against a store.
type Runner struct {
	store  artifact.Store
	opts   Options
	engine *contract.Engine
	runID  string
}

// NewRunner creates a runner with a fresh run id.
func NewRunner(store artifact.Store, opts Options) *Runner {
	return &Runner{
		store:  store,
		opts:   opts,
		engine: contract.NewEngine(store, opts.Registry, contract.Env{InDir: opts.InDir, BuildDir: opts.BuildDir}),
		runID:  uuid.NewString(),
	}
}

// RunID identifies this runner's invocation in logs and the manifest.
func (r *Runner) RunID() string { return r.runID }

// Preflight fails with a PreflightError if any input of st is missing.
func (r *Runner) Preflight(st Stage) error {
	for _, slot := range st.Requires {
		ok, err := r.store.Exists(slot)
		if err != nil {
			return err
		}
		if !ok {
			return &PreflightError{Stage: st.Name, Slot: slot, Location: r.store.Location(slot)}
		}
	}
	return nil
}

// Build runs the stages chosen by sel in order, stopping at the first
// failure. The manifest is always returned, covering the stages that ran.
func (r *Runner) Build(ctx context.Context, sel string) (*Manifest, error) {
	selected, err := Select(sel)
	if err != nil {
		return nil, err
	}
	log := logging.Get(logging.CategoryPipeline)
	log.Info("run %s: building %s", r.runID, sel)

	m := &Manifest{RunID: r.runID, Selector: sel, Stages: []StageResult{}}
	var produced []artifact.Slot
	var runErr error
	for _, st := range selected {
		res, err := r.runStage(ctx, st)
		if res != nil {
			m.Stages = append(m.Stages, *res)
			produced = append(produced, st.Produces...)
			if r.opts.Verify {
				produced = append(produced, artifact.Report(st.Name))
			}
		}
		if err != nil {
			runErr = err
			break
		}
	}
	m.OK = runErr == nil

	if r.opts.Manifest && len(m.Stages) > 0 {
		digests, err := hashArtifacts(ctx, r.store, produced, r.opts.HashConcurrency)
		if err != nil && runErr == nil {
			return m, fmt.Errorf("hash artifacts: %w", err)
		}
		m.Artifacts = digests
		if m.Artifacts == nil {
			m.Artifacts = []ArtifactDigest{}
		}
		if err := artifact.WriteJSON(r.store, artifact.Manifest, m); err != nil && runErr == nil {
			return m, fmt.Errorf("write manifest: %w", err)
		}
	}

	if runErr != nil {
		log.Error("run %s failed: %v", r.runID, runErr)
		return m, runErr
	}
	log.Info("run %s complete: %d stages", r.runID, len(m.Stages))
	return m, nil
}

// runStage returns a non-nil result once the stage itself has completed, even
// if its contract then fails.
func (r *Runner) runStage(ctx context.Context, st Stage) (*StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Preflight(st); err != nil {
		return nil, err
	}

	log := logging.Get(logging.CategoryPipeline)
	log.Info("stage %s: %s", st.Name, st.Title)
	start := time.Now()

	stats, err := st.run(ctx, r.store, r.opts)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	res := &StageResult{Stage: st.Name, Stats: stats}

	if r.opts.Verify {
		rep, err := r.engine.Verify(ctx, st.Name)
		if err != nil {
			return res, fmt.Errorf("stage %s: verify: %w", st.Name, err)
		}
		res.Verified = true
		res.Report = &ContractSummary{OK: rep.OK, ErrorCount: rep.ErrorCount}
		if !rep.OK {
			res.DurationMS = time.Since(start).Milliseconds()
			return res, &ContractError{Stage: st.Name, Report: rep, Location: r.engine.ReportLocation(st.Name)}
		}
	}
	res.DurationMS = time.Since(start).Milliseconds()
	return res, nil
}

// Verify runs the contract of a single stage without building it. A failing
// contract yields both the report and a ContractError.
func (r *Runner) Verify(ctx context.Context, stage string) (*contract.Report, error) {
	selected, err := Select(stage)
	if err != nil {
		return nil, err
	}
	if len(selected) != 1 {
		return nil, fmt.Errorf("verify takes a single stage, got %q", stage)
	}
	name := selected[0].Name
	rep, err := r.engine.Verify(ctx, name)
	if err != nil {
		return nil, err
	}
	if !rep.OK {
		return rep, &ContractError{Stage: name, Report: rep, Location: r.engine.ReportLocation(name)}
	}
	return rep, nil
}

// ReportLocation is where the verification report for stage lives.
func (r *Runner) ReportLocation(stage string) string {
	return r.engine.ReportLocation(stage)
}
