// Package result collects per-host install outcomes and produces the
// run summary and result artifact.
package result

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rollout/rollout/internal/probe"
)

// Outcome is the terminal state of a host pipeline.
type Outcome string

const (
	OutcomeSucceeded                    Outcome = "succeeded"
	OutcomeFailed                       Outcome = "failed"
	OutcomeSkippedAlreadyInstalled      Outcome = "skipped_already_installed"
	OutcomeSkippedInsufficientResources Outcome = "skipped_insufficient_resources"
	OutcomeSkippedDryRun                Outcome = "skipped_dry_run"
	OutcomeSkippedAborted               Outcome = "skipped_aborted"
)

// Intentional reports whether the outcome counts as success for the
// run's exit code. Dry-run and already-installed skips are intentional;
// resource and abort skips are not.
func (o Outcome) Intentional() bool {
	switch o {
	case OutcomeSucceeded, OutcomeSkippedAlreadyInstalled, OutcomeSkippedDryRun:
		return true
	default:
		return false
	}
}

// Diagnostic carries enough context to debug a failed or skipped host
// without logging into it.
type Diagnostic struct {
	// Step is the pipeline step that produced the diagnostic.
	Step string `json:"step"`
	// Command is the remote command that failed, when one was run.
	Command string `json:"command,omitempty"`
	// ExitCode is the remote exit code, when a command ran to completion.
	ExitCode int `json:"exit_code,omitempty"`
	// Stderr is the captured remote stderr.
	Stderr string `json:"stderr,omitempty"`
	// Message is a human readable explanation.
	Message string `json:"message"`
	// Resources is the probe snapshot for resource skips.
	Resources *probe.Resources `json:"resources,omitempty"`
}

// InstallResult is the terminal record for a single host.
type InstallResult struct {
	// Host is the target address with port.
	Host string `json:"host"`
	// Index is the host's position in the plan. Used for stable output
	// ordering, not serialized.
	Index int `json:"-"`
	// Outcome is the terminal state.
	Outcome Outcome `json:"outcome"`
	// StartedAt is when the pipeline first touched the host. Zero for
	// hosts that were never contacted.
	StartedAt time.Time `json:"started_at,omitempty"`
	// EndedAt is when the pipeline reached its terminal state.
	EndedAt time.Time `json:"ended_at,omitempty"`
	// Diagnostic explains failures and skips.
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// Summary is the per-outcome tally of a run.
type Summary struct {
	Total                 int `json:"total"`
	Succeeded             int `json:"succeeded"`
	Failed                int `json:"failed"`
	AlreadyInstalled      int `json:"already_installed"`
	InsufficientResources int `json:"insufficient_resources"`
	DryRun                int `json:"dry_run"`
	Aborted               int `json:"aborted"`
}

// Artifact is the serialized record of a complete run.
type Artifact struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Summary   Summary         `json:"summary"`
	Results   []InstallResult `json:"results"`
}

// WriteFile writes the artifact as indented JSON.
func (a *Artifact) WriteFile(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
