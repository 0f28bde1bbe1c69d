package contract

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"foodonto/internal/artifact"
	"foodonto/internal/logging"
)

// Env is what a custom check sees.
type Env struct {
	InDir    string
	BuildDir string
	Store    artifact.Store
}

// Check is a custom verification. Returned strings are findings; a returned
// error (or a panic) becomes a single finding for the check.
type Check func(env Env) ([]string, error)

type namedCheck struct {
	name string
	fn   Check
}

// Registry holds custom checks keyed by stage. It is built once at startup.
type Registry struct {
	checks map[string][]namedCheck
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string][]namedCheck)}
}

// Register adds a check for stage. Checks run in registration order.
func (r *Registry) Register(stage, name string, fn Check) {
	s := strings.ToUpper(stage)
	r.checks[s] = append(r.checks[s], namedCheck{name: name, fn: fn})
}

// Names lists the checks registered for stage.
func (r *Registry) Names(stage string) []string {
	var out []string
	for _, c := range r.checks[strings.ToUpper(stage)] {
		out = append(out, c.name)
	}
	return out
}

// Report is the verification outcome written to report/verify_<stage>.json.
type Report struct {
	Stage      string   `json:"stage"`
	Errors     []string `json:"errors"`
	OK         bool     `json:"ok"`
	ErrorCount int      `json:"error_count"`
}

// Engine verifies stages.
type Engine struct {
	store    artifact.Store
	registry *Registry
	env      Env
}

// NewEngine creates an engine. registry may be nil.
func NewEngine(store artifact.Store, registry *Registry, env Env) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	env.Store = store
	return &Engine{store: store, registry: registry, env: env}
}

// Verify runs the stage's contract and custom checks and writes the report.
// The error result is reserved for failures to load the contract or write the
// report; findings never surface as errors.
func (e *Engine) Verify(ctx context.Context, stage string) (*Report, error) {
	stage = strings.ToUpper(stage)
	timer := logging.StartTimer(logging.CategoryContract, "verify "+stage)
	defer timer.Stop()
	log := logging.Get(logging.CategoryContract)

	c, err := Load(e.store, stage)
	if err != nil {
		return nil, err
	}

	var errs []string
	for _, rule := range c.Artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		errs = append(errs, checkArtifact(e.store, rule)...)
	}
	for _, chk := range e.registry.checks[stage] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := runCheck(chk, e.env)
		if len(found) > 0 {
			log.Debug("check %s reported %d findings", chk.name, len(found))
		}
		errs = append(errs, found...)
	}

	if errs == nil {
		errs = []string{}
	}
	rep := &Report{Stage: stage, Errors: errs, OK: len(errs) == 0, ErrorCount: len(errs)}
	if err := artifact.WriteJSON(e.store, artifact.Report(stage), rep); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	if rep.OK {
		log.Info("stage %s contract ok (%d artifacts, %d checks)", stage, len(c.Artifacts), len(e.registry.checks[stage]))
	} else {
		log.Warn("stage %s contract failed with %d errors", stage, rep.ErrorCount)
	}
	return rep, nil
}

// ReportLocation is where the report for stage is written.
func (e *Engine) ReportLocation(stage string) string {
	return e.store.Location(artifact.Report(strings.ToUpper(stage)))
}

func runCheck(chk namedCheck, env Env) (found []string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryContract).Error("check %s panicked: %v\n%s", chk.name, r, debug.Stack())
			found = []string{fmt.Sprintf("check %s panicked: %v", chk.name, r)}
		}
	}()
	out, err := chk.fn(env)
	if err != nil {
		return []string{fmt.Sprintf("check %s: %v", chk.name, err)}
	}
	prefixed := make([]string, 0, len(out))
	for _, s := range out {
		prefixed = append(prefixed, chk.name+": "+s)
	}
	return prefixed
}

// Stages lists the stages that have a built-in contract.
func Stages() []string {
	entries, err := defaults.ReadDir("defaults")
	if err != nil {
		return nil
	}
	var out []string
	for _, ent := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(ent.Name(), "stage_"), ".yml")
		out = append(out, strings.ToUpper(name))
	}
	sort.Strings(out)
	return out
}
