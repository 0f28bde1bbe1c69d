package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foodonto/internal/artifact"
	"foodonto/internal/checks"
	"foodonto/internal/families"
	"foodonto/internal/logging"
	"foodonto/internal/pipeline"
	"foodonto/internal/substrates"
	"foodonto/internal/ux"
)

var (
	noVerify        bool
	strictAllowlist bool
)

// buildCmd runs one stage or all of them
var buildCmd = &cobra.Command{
	Use:   "build <" + strings.Join(pipeline.Names(), "|") + ">",
	Short: "Run a pipeline stage (or all stages in order)",
	Long: `Runs the selected stage after checking its upstream artifacts exist.
Unless --no-verify is given, each stage's contract is verified right after it
runs and a failing contract stops the build.

Example:
  foodonto build all --in ontology --build build -v`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.Names(),
	RunE:      runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip contract verification after each stage")
	buildCmd.Flags().BoolVar(&strictAllowlist, "strict-allowlist", false, "Fail stage D when a family has no allowlist rule")
}

func newRunner(opts pipeline.Options) (*pipeline.Runner, error) {
	store, err := artifact.NewFSStore(cfg.InputRoot, cfg.BuildRoot)
	if err != nil {
		return nil, err
	}
	opts.Registry = checks.Default()
	opts.InDir = store.InRoot
	opts.BuildDir = store.BuildRoot
	r := pipeline.NewRunner(store, opts)
	logging.WithFields(zap.String("run_id", r.RunID()))
	return r, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	r, err := newRunner(pipeline.Options{
		Substrates:      substrates.Options{Ranks: cfg.Substrates.Ranks},
		Families:        families.Options{StrictAllowlist: cfg.Families.StrictAllowlist || strictAllowlist},
		Verify:          cfg.Verify.AfterBuild && !noVerify,
		Manifest:        cfg.Manifest.Enabled,
		HashConcurrency: cfg.Manifest.Concurrency,
	})
	if err != nil {
		return err
	}

	m, err := r.Build(ctx, args[0])
	styles := ux.DefaultStyles()
	out := cmd.OutOrStdout()
	fmt.Fprint(out, ux.BuildSummary(m, styles))

	var ce *pipeline.ContractError
	if errors.As(err, &ce) {
		fmt.Fprint(out, ux.ReportSummary(ce.Report, ce.Location, shownErrors(cfg.Verify.MaxErrors), styles))
	}
	return err
}

// shownErrors is how many contract errors to list: none unless verbose.
func shownErrors(limit int) int {
	if !verbose {
		return 0
	}
	return limit
}
