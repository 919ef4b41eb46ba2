package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rollout/rollout/internal/artifact"
	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/history"
	"github.com/rollout/rollout/internal/pipeline"
	"github.com/rollout/rollout/internal/result"
	"github.com/rollout/rollout/internal/scheduler"
	"github.com/rollout/rollout/internal/sshx"
	"github.com/rollout/rollout/pkg/log"
	"github.com/rollout/rollout/pkg/metrics"
	"github.com/rollout/rollout/pkg/tracing"
)

var (
	dryRun         bool
	forceReinstall bool
	artifactPath   string
)

// runCmd executes a rollout plan against the fleet
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a rollout plan against the fleet",
	Long: `Install and configure the forwarder on every host in the plan,
working through the fleet in batches of max_concurrent_installs hosts.

A first SIGINT or SIGTERM aborts the run cooperatively: commands already
running on hosts finish, remaining work is skipped and reported.`,
	RunE: runRollout,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Connect, detect and probe only; never modify a host")
	runCmd.Flags().BoolVar(&forceReinstall, "force", false, "Reinstall even on hosts that already have the forwarder")
	runCmd.Flags().StringVar(&artifactPath, "output", "", "Result artifact path (default: results_<timestamp>.json)")
}

func runRollout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(planFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 2
		return nil
	}

	if forceReinstall {
		cfg.ForceReinstall = true
	}
	if artifactPath != "" {
		cfg.Artifact.Path = artifactPath
	}

	logger := log.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runMetrics *metrics.RunMetrics
	if cfg.Metrics.Enabled {
		m := metrics.NewMetrics()
		runMetrics = m.Run

		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.Info().Str("listen", cfg.Metrics.Listen).Msg("serving metrics")
	}

	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "rollout",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       *cfg.Tracing.Insecure,
		SampleRate:     *cfg.Tracing.SampleRate,
		Environment:    cfg.Tracing.Environment,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing init failed, continuing without traces")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracer shutdown failed")
			}
		}()
	}

	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)
	runLogger := logger.WithContext(ctx)

	dialer := sshx.NewDialer(sshx.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		OnRetry: func() {
			if runMetrics != nil {
				runMetrics.RecordConnectRetry()
			}
		},
	})

	pipe := pipeline.New(cfg, dialer, pipeline.Options{
		DryRun: dryRun,
		// The pipeline derives run and host fields from the context.
		Logger:  logger,
		Metrics: runMetrics,
	})
	agg := result.NewAggregator()
	sched := scheduler.New(cfg, pipe, agg, scheduler.Options{
		Logger:  runLogger,
		Metrics: runMetrics,
	})

	startedAt := time.Now().UTC()
	runLogger.Info().
		Int("hosts", len(cfg.Hosts)).
		Int("batch_size", cfg.MaxConcurrentInstalls).
		Bool("dry_run", dryRun).
		Msg("rollout started")

	runCtx, runSpan := tracing.StartSpan(ctx, "rollout.run",
		tracing.WithAttributes(tracing.AttrRunID.String(runID)))
	sched.Run(runCtx)
	runSpan.End()

	endedAt := time.Now().UTC()
	if runMetrics != nil {
		runMetrics.RecordRunComplete(endedAt.Sub(startedAt).Seconds())
	}

	art := &result.Artifact{
		RunID:     runID,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Summary:   agg.Summary(),
		Results:   agg.Results(),
	}

	runLogger.Info().
		Dur("duration", endedAt.Sub(startedAt)).
		Int("succeeded", art.Summary.Succeeded).
		Int("failed", art.Summary.Failed).
		Msg("rollout finished")

	printRunResult(art, dryRun)

	if cfg.Artifact.Path == "" {
		cfg.Artifact.Path = fmt.Sprintf("results_%s.json", startedAt.Format("20060102_150405"))
	}
	persistRun(cfg, art, dryRun, runLogger)

	if !agg.OK() {
		exitCode = 1
	}
	return nil
}

// persistRun writes the result artifact and history record. The run is
// already over, so failures here are reported but never change the exit
// code that reflects host outcomes.
func persistRun(cfg *config.RunConfig, art *result.Artifact, dry bool, logger log.Logger) {
	if err := art.WriteFile(cfg.Artifact.Path); err != nil {
		Error(fmt.Sprintf("write artifact: %v", err))
	} else {
		Success(fmt.Sprintf("artifact written to %s", cfg.Artifact.Path))
	}

	if cfg.Artifact.Store != nil {
		uploadArtifact(cfg.Artifact.Store, art, logger)
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			Error(fmt.Sprintf("open history store: %v", err))
			return
		}
		defer store.Close()

		rec := history.Record{
			RunID:     art.RunID,
			StartedAt: art.StartedAt,
			EndedAt:   art.EndedAt,
			DryRun:    dry,
			Summary:   art.Summary,
			Results:   art.Results,
		}
		if err := store.Save(rec); err != nil {
			Error(fmt.Sprintf("record run history: %v", err))
		}
	}
}

// uploadArtifact pushes the result artifact to S3-compatible storage.
// A fresh context is used: an aborted run still gets its artifact out.
func uploadArtifact(store *config.StoreConfig, art *result.Artifact, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	up, err := artifact.NewUploader(store, logger)
	if err != nil {
		Error(fmt.Sprintf("artifact store: %v", err))
		return
	}
	if err := up.EnsureBucket(ctx); err != nil {
		Error(fmt.Sprintf("artifact store: %v", err))
		return
	}
	path, err := up.Upload(ctx, art)
	if err != nil {
		Error(fmt.Sprintf("upload artifact: %v", err))
		return
	}
	Success(fmt.Sprintf("artifact uploaded to %s/%s", store.Bucket, path))
}
