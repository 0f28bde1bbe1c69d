package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"foodonto/internal/artifact"
	"foodonto/internal/identity"
	"foodonto/internal/pipeline"
	"foodonto/internal/regression"
	"foodonto/internal/transforms"
	"foodonto/internal/ux"
)

// regressCmd runs an identity battery against the current transform canon
var regressCmd = &cobra.Command{
	Use:   "regress [battery.yml]",
	Short: "Check which authored paths merge or stay distinct",
	Long: `Runs an identity battery against the stage A transform canon and the
current bucket specs. Defaults to <in>/regression/identity_battery.yml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegress,
}

func init() {
	rootCmd.AddCommand(regressCmd)
}

func runRegress(cmd *cobra.Command, args []string) error {
	store, err := artifact.NewFSStore(cfg.InputRoot, cfg.BuildRoot)
	if err != nil {
		return err
	}
	path := regression.DefaultBatteryPath(store.InRoot)
	if len(args) == 1 {
		path = args[0]
	}

	ok, err := store.Exists(artifact.TransformsCanon)
	if err != nil {
		return err
	}
	if !ok {
		return &pipeline.PreflightError{Stage: "regress", Slot: artifact.TransformsCanon, Location: store.Location(artifact.TransformsCanon)}
	}
	ix, err := transforms.LoadIndex(store)
	if err != nil {
		return err
	}
	buckets, err := identity.LoadBuckets(store)
	if err != nil {
		return err
	}
	b, err := regression.LoadBattery(path)
	if err != nil {
		return err
	}

	styles := ux.DefaultStyles()
	t := ux.NewTable("identity battery "+path, "case", "status", "detail")
	failed := 0
	for _, r := range regression.RunBattery(b, ix, buckets) {
		status := styles.Success.Render("OK")
		if !r.Success {
			status = styles.Error.Render("FAIL")
			failed++
		}
		t.AddRow(r.CaseID, status, r.Error)
	}
	fmt.Fprint(cmd.OutOrStdout(), t.View(styles))
	if failed > 0 {
		return fmt.Errorf("%d of %d battery cases failed", failed, len(b.Cases))
	}
	return nil
}
