// Package detect decides whether a host already carries the forwarder
// before any install work starts.
package detect

import (
	"context"
	"strings"

	"github.com/rollout/rollout/internal/sshx"
	"github.com/rollout/rollout/internal/steps"
	"github.com/rollout/rollout/pkg/log"
)

// State is the outcome of an install check.
type State int

const (
	// NotInstalled means the check ran and found no existing install.
	NotInstalled State = iota
	// Installed means the install directory is present.
	Installed
	// Unknown means the check could not run. The caller decides how an
	// inconclusive host is handled.
	Unknown
)

func (s State) String() string {
	switch s {
	case Installed:
		return "installed"
	case Unknown:
		return "unknown"
	default:
		return "not_installed"
	}
}

// Detector checks hosts for an existing install.
type Detector struct {
	log log.Logger
}

// NewDetector creates a Detector.
func NewDetector(logger log.Logger) *Detector {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Detector{log: logger}
}

// Detect checks for an existing install under installDir. A check that
// could not run, a transport failure for instance, returns Unknown
// together with the reason.
func (d *Detector) Detect(ctx context.Context, runner sshx.Runner, cs steps.CommandSet, installDir string) (State, error) {
	out, err := runner.Run(ctx, cs.DetectInstalled(installDir))
	if err != nil {
		d.log.Warn().Err(err).Msg("install check inconclusive")
		return Unknown, err
	}
	if out.OK() && strings.Contains(out.Stdout, "exists") {
		return Installed, nil
	}
	return NotInstalled, nil
}
