package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foodonto/internal/config"
	"foodonto/internal/logging"
	"foodonto/internal/pipeline"
)

var (
	// Global flags
	verbose    bool
	inDir      string
	buildDir   string
	configPath string

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "foodonto",
	Short: "foodonto - staged food ontology build pipeline",
	Long: `foodonto turns ontology authoring inputs into canonical
Taxon-Part-Transform identity records.

Stages run in order and communicate only through artifacts:
  A  canonicalize transforms        rules/transforms.json -> tmp/transforms_canon.json
  B  build substrates               compiled/taxa.jsonl   -> graph/substrates.jsonl
  C  ingest curated seeds           rules/derived_foods.jsonl -> tmp/tpt_seed.jsonl
  D  expand families                rules/families.json   -> tmp/tpt_generated.jsonl
  E  canonicalize identities        tmp/tpt_*.jsonl       -> tmp/tpt_canon.jsonl

Exit codes: 0 success, 1 stage or contract failure, 2 missing upstream artifact.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}

		// Initialize logger
		logger, err = logging.Initialize(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Get(logging.CategoryBoot).Debug("input root %s, build root %s", cfg.InputRoot, cfg.BuildRoot)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync()
		}
	},
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("in") {
		c.InputRoot = inDir
	}
	if flags.Changed("build") {
		c.BuildRoot = buildDir
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging and list contract errors")
	rootCmd.PersistentFlags().StringVar(&inDir, "in", ".", "Ontology input root (or set FOODONTO_IN)")
	rootCmd.PersistentFlags().StringVar(&buildDir, "build", "build", "Build output root (or set FOODONTO_BUILD)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: "+config.DefaultPath+")")

	// Add commands to root
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(verifyCmd)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pipeline.ExitCode(err))
	}
}
