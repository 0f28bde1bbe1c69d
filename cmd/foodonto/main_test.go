package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodonto/internal/config"
	"foodonto/internal/logging"
	"foodonto/internal/pipeline"
)

// setup points the CLI globals at a fresh copy of the pipeline fixtures.
func setup(t *testing.T, withInputs bool) string {
	t.Helper()
	logging.SetBase(zap.NewNop())
	logger = zap.NewNop()
	verbose = false
	noVerify = false
	strictAllowlist = false

	dir := t.TempDir()
	if withInputs {
		require.NoError(t, os.CopyFS(dir, os.DirFS(filepath.Join("..", "..", "internal", "pipeline", "testdata"))))
	}
	cfg = config.DefaultConfig()
	cfg.InputRoot = filepath.Join(dir, "in")
	cfg.BuildRoot = filepath.Join(dir, "build")
	return dir
}

func TestRunBuildAll(t *testing.T) {
	dir := setup(t, true)

	var err error
	output := captureOutput(t, func() {
		err = runBuild(&cobra.Command{}, []string{"all"})
	})
	require.NoError(t, err, output)
	assert.Contains(t, output, "build ok")
	for _, s := range []string{"A", "B", "C", "D", "E"} {
		assert.Contains(t, output, s)
	}
	assert.FileExists(t, filepath.Join(dir, "build", "tmp", "tpt_canon.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "build", "report", "build_manifest.json"))
}

func TestRunBuildPreflightExitCode(t *testing.T) {
	setup(t, false)

	var err error
	captureOutput(t, func() {
		err = runBuild(&cobra.Command{}, []string{"B"})
	})
	require.Error(t, err)
	assert.Equal(t, pipeline.ExitPreflight, pipeline.ExitCode(err))
}

func TestRunBuildNoVerify(t *testing.T) {
	dir := setup(t, true)
	noVerify = true

	var err error
	captureOutput(t, func() {
		err = runBuild(&cobra.Command{}, []string{"A"})
	})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "build", "report", "verify_a.json"))
}

func TestRunVerifyListsErrorsWhenVerbose(t *testing.T) {
	setup(t, false)
	verbose = true

	var err error
	output := captureOutput(t, func() {
		err = runVerify(&cobra.Command{}, []string{"b"})
	})
	assert.Equal(t, pipeline.ExitFailure, pipeline.ExitCode(err))
	assert.Contains(t, output, "stage B: FAIL")
	assert.Contains(t, output, "verify_b.json")
	assert.Contains(t, output, "required artifact missing")
}

func TestRunVerifyQuietHidesErrors(t *testing.T) {
	setup(t, false)

	output := captureOutput(t, func() {
		_ = runVerify(&cobra.Command{}, []string{"B"})
	})
	assert.Contains(t, output, "stage B: FAIL")
	assert.NotContains(t, output, "required artifact missing")
}

func TestRunVerifyAfterBuild(t *testing.T) {
	setup(t, true)
	captureOutput(t, func() {
		require.NoError(t, runBuild(&cobra.Command{}, []string{"A"}))
	})

	var err error
	output := captureOutput(t, func() {
		err = runVerify(&cobra.Command{}, []string{"A"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "stage A: OK")
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("FOODONTO_BUILD", "/from/env")
	path := filepath.Join(t.TempDir(), "foodonto.yml")
	require.NoError(t, os.WriteFile(path, []byte("input_root: /from/file\n"), 0644))
	configPath = path
	defer func() { configPath = "" }()

	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&inDir, "in", ".", "")
	cmd.Flags().StringVar(&buildDir, "build", "build", "")

	c, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", c.InputRoot)
	assert.Equal(t, "/from/env", c.BuildRoot)

	require.NoError(t, cmd.Flags().Set("in", "/from/flag"))
	c, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", c.InputRoot)
}

func TestExecuteRejectsUnknownStage(t *testing.T) {
	setup(t, false)
	rootCmd.SetArgs([]string{"build", "Z", "--config", filepath.Join(t.TempDir(), "none.yml")})
	defer rootCmd.SetArgs(nil)

	var err error
	captureOutput(t, func() {
		err = rootCmd.Execute()
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown stage"), err.Error())
	assert.Equal(t, pipeline.ExitFailure, pipeline.ExitCode(err))
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

func TestRunRegress(t *testing.T) {
	dir := setup(t, true)
	captureOutput(t, func() {
		require.NoError(t, runBuild(&cobra.Command{}, []string{"A"}))
	})
	battery := filepath.Join(dir, "battery.yml")
	require.NoError(t, os.WriteFile(battery, []byte(`
cases:
  - id: cook-buckets
    taxon_id: tx:plantae:fabaceae:glycine:max
    part_id: part:seed
    expect: merge
    paths:
      - [{transform_id: tf:cook, params: {temp_c: 100}}]
      - [{transform_id: tf:cook, params: {temp_c: 105}}]
  - id: wrong
    taxon_id: tx:plantae:fabaceae:glycine:max
    part_id: part:seed
    expect: merge
    paths:
      - [{transform_id: tf:cook, params: {temp_c: 100}}]
      - [{transform_id: tf:cook, params: {temp_c: 200}}]
`), 0644))

	var err error
	output := captureOutput(t, func() {
		err = runRegress(&cobra.Command{}, []string{battery})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 battery cases failed")
	assert.Contains(t, output, "cook-buckets")
	assert.Contains(t, output, "expected one identity")
}

func TestRunRegressNeedsStageA(t *testing.T) {
	setup(t, true)
	err := runRegress(&cobra.Command{}, nil)
	assert.Equal(t, pipeline.ExitPreflight, pipeline.ExitCode(err))
}

func TestRunRegressDefaultBattery(t *testing.T) {
	setup(t, true)
	captureOutput(t, func() {
		require.NoError(t, runBuild(&cobra.Command{}, []string{"A"}))
	})

	var err error
	output := captureOutput(t, func() {
		err = runRegress(&cobra.Command{}, nil)
	})
	require.NoError(t, err, output)
	assert.Contains(t, output, "soak-hours-ignored")
	assert.Contains(t, output, "cook-above-cut")
}
