package pipeline

import (
	"errors"
	"fmt"

	"foodonto/internal/artifact"
	"foodonto/internal/contract"
)

// Process exit codes.
const (
	ExitSuccess   = 0
	ExitFailure   = 1 // stage or contract failure
	ExitPreflight = 2 // missing upstream artifact
)

// PreflightError reports a stage whose required input does not exist yet.
type PreflightError struct {
	Stage    string
	Slot     artifact.Slot
	Location string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("stage %s: missing %s at %s (produced by %s)", e.Stage, e.Slot.Name, e.Location, e.Slot.Producer)
}

// ContractError reports a stage whose output failed verification.
type ContractError struct {
	Stage    string
	Report   *contract.Report
	Location string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("stage %s: contract failed with %d errors (report: %s)", e.Stage, e.Report.ErrorCount, e.Location)
}

// ExitCode maps an error returned by this package onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var pre *PreflightError
	if errors.As(err, &pre) {
		return ExitPreflight
	}
	return ExitFailure
}
