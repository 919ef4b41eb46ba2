// Package pipeline drives a single host through the install sequence:
// connect, detect, probe, download, install, configure, enable
// autostart, cleanup. Every host ends in exactly one terminal outcome.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/detect"
	"github.com/rollout/rollout/internal/probe"
	"github.com/rollout/rollout/internal/result"
	"github.com/rollout/rollout/internal/sshx"
	"github.com/rollout/rollout/internal/steps"
	"github.com/rollout/rollout/pkg/log"
	"github.com/rollout/rollout/pkg/metrics"
	"github.com/rollout/rollout/pkg/tracing"
)

// Step names used in diagnostics, logs, and metrics labels.
const (
	StepConnecting        = "connecting"
	StepDetecting         = "detecting"
	StepProbing           = "probing"
	StepDownloading       = "downloading"
	StepInstalling        = "installing"
	StepConfiguring       = "configuring"
	StepEnablingAutostart = "enabling_autostart"
	StepCleanup           = "cleanup"
)

// Pipeline executes the install sequence on target hosts. A single
// Pipeline is shared by all hosts of a run; per-host state lives on the
// stack of Run.
type Pipeline struct {
	cfg      *config.RunConfig
	dialer   sshx.Dialer
	prober   *probe.Prober
	detector *detect.Detector
	dryRun   bool
	log      log.Logger
	metrics  *metrics.RunMetrics
}

// Options configures optional pipeline collaborators.
type Options struct {
	// DryRun stops each host after the probe, before any mutation.
	DryRun bool
	// Logger defaults to a no-op logger.
	Logger log.Logger
	// Metrics may be nil.
	Metrics *metrics.RunMetrics
}

// New creates a Pipeline for the given run.
func New(cfg *config.RunConfig, dialer sshx.Dialer, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		dialer:   dialer,
		prober:   probe.NewProber(logger),
		detector: detect.NewDetector(logger),
		dryRun:   opts.DryRun,
		log:      logger,
		metrics:  opts.Metrics,
	}
}

// Run drives one host to a terminal outcome. The context signals run
// abort; a command already in flight finishes naturally and the
// pipeline stops at the next step boundary. Run never returns an error:
// every failure mode is folded into the result.
func (p *Pipeline) Run(ctx context.Context, host config.HostTarget, index int) result.InstallResult {
	res := result.InstallResult{
		Host:      host.Addr(),
		Index:     index,
		StartedAt: time.Now(),
	}
	ctx = log.ContextWithHost(ctx, host.Addr())
	logger := p.log.WithContext(ctx)

	ctx, span := tracing.StartSpan(ctx, "host.pipeline",
		tracing.WithAttributes(tracing.AttrHost.String(host.Addr())))
	defer span.End()

	if p.metrics != nil {
		p.metrics.PipelineStarted()
		defer p.metrics.PipelineFinished()
	}

	defer func() {
		res.EndedAt = time.Now()
		span.SetAttributes(tracing.AttrOutcome.String(string(res.Outcome)))
	}()

	cs := steps.ForFamily(host.OSFamily)
	if cs == nil {
		res.Outcome = result.OutcomeFailed
		res.Diagnostic = &result.Diagnostic{
			Step:    StepConnecting,
			Message: fmt.Sprintf("unsupported os_family %q", host.OSFamily),
		}
		return res
	}

	// Connect
	logger.Info().Str("step", StepConnecting).Msg("connecting")
	session, err := p.dialer.Dial(ctx, host)
	if err != nil {
		logger.Error().Err(err).Msg("connection failed")
		res.Outcome = result.OutcomeFailed
		res.Diagnostic = &result.Diagnostic{
			Step:    StepConnecting,
			Message: err.Error(),
		}
		p.recordStep(StepConnecting, "failed", res.StartedAt)
		return res
	}
	defer session.Close()
	p.recordStep(StepConnecting, "ok", res.StartedAt)

	// Detect existing install
	if aborted(ctx) {
		return p.abort(logger, &res, StepDetecting)
	}
	detectCtx, cancel := p.cmdCtx(ctx)
	state, detectErr := p.detector.Detect(detectCtx, session, cs, p.cfg.InstallDir)
	cancel()
	logger.Info().Str("step", StepDetecting).Str("state", state.String()).Msg("install check")
	if state == detect.Installed && !p.cfg.ForceReinstall {
		res.Outcome = result.OutcomeSkippedAlreadyInstalled
		res.Diagnostic = &result.Diagnostic{
			Step:    StepDetecting,
			Message: fmt.Sprintf("existing install found at %s", p.cfg.InstallDir),
		}
		return res
	}
	if state == detect.Unknown {
		// An unreachable check must not strand a bare host: proceed as
		// not installed and keep the reason on the result.
		res.Diagnostic = &result.Diagnostic{
			Step:    StepDetecting,
			Message: fmt.Sprintf("install check inconclusive, proceeding as not installed: %v", detectErr),
		}
	}

	// Probe resources
	if aborted(ctx) {
		return p.abort(logger, &res, StepProbing)
	}
	started := time.Now()
	probeCtx, cancel := p.cmdCtx(ctx)
	resources, err := p.prober.Probe(probeCtx, session, cs, parentDir(p.cfg.InstallDir))
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("resource probe failed")
		res.Outcome = result.OutcomeFailed
		res.Diagnostic = &result.Diagnostic{
			Step:    StepProbing,
			Message: err.Error(),
		}
		p.recordStep(StepProbing, "failed", started)
		return res
	}
	p.recordStep(StepProbing, "ok", started)
	logger.Info().Str("step", StepProbing).
		Int("memory_mb", resources.AvailableMemoryMB).
		Int("disk_mb", resources.FreeDiskMB).
		Msg("resources probed")

	if ok, reason := resources.Meets(p.cfg.ResourceLimits); !ok {
		logger.Warn().Str("reason", reason).Msg("insufficient resources")
		res.Outcome = result.OutcomeSkippedInsufficientResources
		res.Diagnostic = &result.Diagnostic{
			Step:      StepProbing,
			Message:   reason,
			Resources: resources,
		}
		return res
	}

	// Dry run stops before any mutation.
	if p.dryRun {
		res.Outcome = result.OutcomeSkippedDryRun
		res.Diagnostic = &result.Diagnostic{
			Step:      StepProbing,
			Message:   "dry run, host is eligible for install",
			Resources: resources,
		}
		return res
	}

	// Download
	if aborted(ctx) {
		return p.abort(logger, &res, StepDownloading)
	}
	if d := p.download(ctx, session, cs, logger); d != nil {
		res.Outcome = result.OutcomeFailed
		res.Diagnostic = d
		return res
	}

	// The package is staged from here on: whatever terminal state the
	// remaining steps reach, cleanup still runs before the host is
	// released.
	outcome, diag := p.completeInstall(ctx, session, cs, logger)
	res.Outcome = outcome
	if diag != nil {
		res.Diagnostic = diag
	}

	// Cleanup is best effort and never changes the outcome.
	if p.cfg.Cleanup() {
		if d := p.runCommand(ctx, session, StepCleanup, cs.Cleanup(p.cfg.PackagePath()), logger); d != nil {
			logger.Warn().Str("stderr", d.Stderr).Msg("package cleanup failed")
		}
	}

	if res.Outcome == result.OutcomeSucceeded {
		logger.Info().Msg("install succeeded")
	}
	return res
}

// completeInstall runs the steps that follow a staged package: install,
// configure, enable autostart.
func (p *Pipeline) completeInstall(ctx context.Context, session sshx.Session, cs steps.CommandSet, logger log.Logger) (result.Outcome, *result.Diagnostic) {
	// Install
	if aborted(ctx) {
		return p.abortStep(logger, StepInstalling)
	}
	installCmd, err := cs.Install(p.cfg.PackagePath(), p.cfg.InstallDir)
	if err != nil {
		return result.OutcomeFailed, &result.Diagnostic{
			Step:    StepInstalling,
			Message: err.Error(),
		}
	}
	if d := p.runCommand(ctx, session, StepInstalling, installCmd, logger); d != nil {
		return result.OutcomeFailed, d
	}

	// Configure
	if aborted(ctx) {
		return p.abortStep(logger, StepConfiguring)
	}
	for _, cmd := range cs.Configure(p.cfg.InstallDir, p.cfg.DeploymentServer, p.cfg.ReceivingIndexer) {
		if d := p.runCommand(ctx, session, StepConfiguring, cmd, logger); d != nil {
			return result.OutcomeFailed, d
		}
	}

	// Enable autostart and start the service. A failure here is fatal:
	// a forwarder that does not survive a reboot is not installed.
	if aborted(ctx) {
		return p.abortStep(logger, StepEnablingAutostart)
	}
	for _, cmd := range cs.EnableBootStart(p.cfg.InstallDir) {
		if d := p.runCommand(ctx, session, StepEnablingAutostart, cmd, logger); d != nil {
			return result.OutcomeFailed, d
		}
	}

	return result.OutcomeSucceeded, nil
}

// download stages the package, skipping the fetch when it is already
// present from an earlier run.
func (p *Pipeline) download(ctx context.Context, session sshx.Session, cs steps.CommandSet, logger log.Logger) *result.Diagnostic {
	pkgPath := p.cfg.PackagePath()

	checkCtx, cancel := p.cmdCtx(ctx)
	out, err := session.Run(checkCtx, cs.PackagePresent(pkgPath))
	cancel()
	if err == nil && out.OK() && strings.Contains(out.Stdout, "present") {
		logger.Info().Str("step", StepDownloading).Msg("package already staged, skipping download")
		return nil
	}

	if d := p.runCommand(ctx, session, StepDownloading, cs.Download(p.cfg.DownloadURL, pkgPath), logger); d != nil {
		return d
	}

	// The download command chain can exit zero with nothing fetched,
	// so confirm the file landed.
	verifyCtx, cancel := p.cmdCtx(ctx)
	out, err = session.Run(verifyCtx, cs.PackagePresent(pkgPath))
	cancel()
	if err != nil {
		return &result.Diagnostic{
			Step:    StepDownloading,
			Message: fmt.Sprintf("package verification failed: %v", err),
		}
	}
	if !out.OK() || !strings.Contains(out.Stdout, "present") {
		return &result.Diagnostic{
			Step:    StepDownloading,
			Message: fmt.Sprintf("package missing after download: %s", pkgPath),
		}
	}
	return nil
}

// runCommand executes one remote command and converts any failure into
// a diagnostic.
func (p *Pipeline) runCommand(ctx context.Context, session sshx.Session, step, cmd string, logger log.Logger) *result.Diagnostic {
	logger.Debug().Str("step", step).Str("cmd", cmd).Msg("running command")
	tracing.AddSpanEvent(ctx, step, tracing.AttrStep.String(step))
	started := time.Now()

	cmdCtx, cancel := p.cmdCtx(ctx)
	defer cancel()

	out, err := session.Run(cmdCtx, cmd)
	if err != nil {
		p.recordStep(step, "failed", started)
		logger.Error().Str("step", step).Err(err).Msg("command failed")
		return &result.Diagnostic{
			Step:    step,
			Command: cmd,
			Message: err.Error(),
		}
	}
	if !out.OK() {
		p.recordStep(step, "failed", started)
		logger.Error().Str("step", step).Int("exit_code", out.ExitCode).Msg("command exited non-zero")
		return &result.Diagnostic{
			Step:     step,
			Command:  cmd,
			ExitCode: out.ExitCode,
			Stderr:   strings.TrimSpace(out.Stderr),
			Message:  fmt.Sprintf("command exited %d", out.ExitCode),
		}
	}

	p.recordStep(step, "ok", started)
	return nil
}

// cmdCtx bounds a single remote command. The run context is deliberately
// detached so an abort lets the in-flight command finish and takes
// effect at the next step boundary.
func (p *Pipeline) cmdCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CommandTimeout())
}

// abort marks a host that was stopped between steps.
func (p *Pipeline) abort(logger log.Logger, res *result.InstallResult, nextStep string) result.InstallResult {
	res.Outcome, res.Diagnostic = p.abortStep(logger, nextStep)
	return *res
}

func (p *Pipeline) abortStep(logger log.Logger, nextStep string) (result.Outcome, *result.Diagnostic) {
	logger.Warn().Str("step", nextStep).Msg("run aborted before step")
	return result.OutcomeSkippedAborted, &result.Diagnostic{
		Step:    nextStep,
		Message: "run aborted before this step started",
	}
}

func (p *Pipeline) recordStep(step, status string, started time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStep(step, status, time.Since(started).Seconds())
	}
}

func aborted(ctx context.Context) bool {
	return ctx.Err() != nil
}

// parentDir returns the directory holding dir, the filesystem that the
// disk probe measures.
func parentDir(dir string) string {
	if i := strings.LastIndex(strings.TrimRight(dir, "/"), "/"); i > 0 {
		return dir[:i]
	}
	return "/"
}
