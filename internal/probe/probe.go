// Package probe inspects target hosts for available resources before an
// install is attempted.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/sshx"
	"github.com/rollout/rollout/internal/steps"
	"github.com/rollout/rollout/pkg/log"
)

// Resources is a snapshot of the free resources on a host.
type Resources struct {
	// AvailableMemoryMB is the available memory in MB.
	AvailableMemoryMB int `json:"available_memory_mb"`
	// FreeDiskMB is the free disk in MB on the install filesystem.
	FreeDiskMB int `json:"free_disk_mb"`
	// LoadAverage is the raw uptime output. Diagnostic only.
	LoadAverage string `json:"load_average,omitempty"`
}

// Meets checks the snapshot against the configured limits. When the host
// falls short it returns false and a human readable reason.
func (r *Resources) Meets(limits config.ResourceLimits) (bool, string) {
	var shortfalls []string
	if r.AvailableMemoryMB < limits.MinMemoryMB {
		shortfalls = append(shortfalls, fmt.Sprintf("memory %dMB < required %dMB",
			r.AvailableMemoryMB, limits.MinMemoryMB))
	}
	if r.FreeDiskMB < limits.MinDiskMB {
		shortfalls = append(shortfalls, fmt.Sprintf("disk %dMB < required %dMB",
			r.FreeDiskMB, limits.MinDiskMB))
	}
	if len(shortfalls) > 0 {
		return false, strings.Join(shortfalls, "; ")
	}
	return true, ""
}

// Prober collects resource snapshots over an established session.
type Prober struct {
	log log.Logger
}

// NewProber creates a Prober.
func NewProber(logger log.Logger) *Prober {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Prober{log: logger}
}

// Probe runs the resource commands on the host. The install directory's
// parent determines which filesystem is measured for free disk.
func (p *Prober) Probe(ctx context.Context, runner sshx.Runner, cs steps.CommandSet, diskDir string) (*Resources, error) {
	res := &Resources{}

	out, err := runner.Run(ctx, cs.AvailableMemoryMB())
	if err != nil {
		return nil, fmt.Errorf("memory probe failed: %w", err)
	}
	res.AvailableMemoryMB, err = parseMB(out)
	if err != nil {
		return nil, fmt.Errorf("memory probe: %w", err)
	}

	out, err = runner.Run(ctx, cs.FreeDiskMB(diskDir))
	if err != nil {
		return nil, fmt.Errorf("disk probe failed: %w", err)
	}
	res.FreeDiskMB, err = parseMB(out)
	if err != nil {
		return nil, fmt.Errorf("disk probe: %w", err)
	}

	// Load average is informational, a failure does not block the host.
	out, err = runner.Run(ctx, cs.LoadAverage())
	if err == nil && out.OK() {
		res.LoadAverage = strings.TrimSpace(out.Stdout)
	} else {
		p.log.Debug().Msg("load average probe failed, continuing")
	}

	return res, nil
}

// parseMB parses a single MB figure from command output.
func parseMB(out *sshx.Output) (int, error) {
	if !out.OK() {
		return 0, fmt.Errorf("command exited %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr))
	}
	s := strings.TrimSpace(out.Stdout)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q as MB", s)
	}
	return v, nil
}
