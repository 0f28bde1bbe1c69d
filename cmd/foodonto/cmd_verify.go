package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"foodonto/internal/pipeline"
	"foodonto/internal/ux"
)

var maxErrors int

// verifyCmd checks a stage's output against its contract
var verifyCmd = &cobra.Command{
	Use:   "verify <" + strings.Join(pipeline.Names()[:len(pipeline.Names())-1], "|") + ">",
	Short: "Verify a stage's artifacts against its contract",
	Long: `Runs the stage's declarative contract and custom checks without rebuilding,
then writes report/verify_<stage>.json. With --verbose the first --max-errors
errors are listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().IntVar(&maxErrors, "max-errors", 20, "Errors to list in verbose mode")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	r, err := newRunner(pipeline.Options{})
	if err != nil {
		return err
	}

	limit := cfg.Verify.MaxErrors
	if cmd.Flags().Changed("max-errors") {
		limit = maxErrors
	}

	rep, err := r.Verify(ctx, args[0])
	var ce *pipeline.ContractError
	if err != nil && !errors.As(err, &ce) {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), ux.ReportSummary(rep, r.ReportLocation(rep.Stage), shownErrors(limit), ux.DefaultStyles()))
	return err
}
