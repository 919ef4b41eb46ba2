// Package scheduler coordinates batched execution of host pipelines.
// Hosts are worked in plan order, at most one batch at a time, with a
// configurable pause between batches.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/result"
	"github.com/rollout/rollout/pkg/log"
	"github.com/rollout/rollout/pkg/metrics"
	"github.com/rollout/rollout/pkg/tracing"
)

// PipelineRunner drives a single host to a terminal outcome.
type PipelineRunner interface {
	Run(ctx context.Context, host config.HostTarget, index int) result.InstallResult
}

// Scheduler slices the fleet into batches and runs each batch's
// pipelines concurrently. A batch must fully finish before the next one
// starts.
type Scheduler struct {
	cfg     *config.RunConfig
	runner  PipelineRunner
	agg     *result.Aggregator
	log     log.Logger
	metrics *metrics.RunMetrics
}

// Options configures optional scheduler collaborators.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger log.Logger
	// Metrics may be nil.
	Metrics *metrics.RunMetrics
}

// New creates a Scheduler for the given run.
func New(cfg *config.RunConfig, runner PipelineRunner, agg *result.Aggregator, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		agg:     agg,
		log:     logger,
		metrics: opts.Metrics,
	}
}

// Run works through the fleet batch by batch. When the context is
// cancelled, in-flight pipelines stop at their next step boundary and
// hosts that were never contacted are recorded as aborted.
func (s *Scheduler) Run(ctx context.Context) {
	hosts := s.cfg.Hosts
	batchSize := s.cfg.MaxConcurrentInstalls

	if s.metrics != nil {
		s.metrics.SetHostCount(float64(len(hosts)))
	}

	for start := 0; start < len(hosts); start += batchSize {
		end := start + batchSize
		if end > len(hosts) {
			end = len(hosts)
		}

		if ctx.Err() != nil {
			s.recordUnstarted(hosts, start)
			return
		}

		s.log.Info().
			Int("batch", start/batchSize+1).
			Int("hosts", end-start).
			Msg("starting batch")
		if s.metrics != nil {
			s.metrics.RecordBatch()
		}

		batchCtx, span := tracing.StartSpan(ctx, "scheduler.batch",
			tracing.WithAttributes(tracing.AttrBatch.Int(start/batchSize+1)))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				res := s.runner.Run(batchCtx, hosts[idx], idx)
				s.agg.Record(res)
				if s.metrics != nil {
					s.metrics.RecordResult(string(res.Outcome))
				}
			}(i)
		}
		wg.Wait()
		span.End()

		// Pause between batches, cutting the run short on abort.
		if end < len(hosts) && s.cfg.DelayBetweenBatches() > 0 {
			select {
			case <-ctx.Done():
				s.recordUnstarted(hosts, end)
				return
			case <-time.After(s.cfg.DelayBetweenBatches()):
			}
		}
	}
}

// recordUnstarted marks every host from start onward as aborted without
// contacting it.
func (s *Scheduler) recordUnstarted(hosts []config.HostTarget, start int) {
	for i := start; i < len(hosts); i++ {
		s.log.Warn().Str("host", hosts[i].Addr()).Msg("run aborted before host was contacted")
		res := result.InstallResult{
			Host:    hosts[i].Addr(),
			Index:   i,
			Outcome: result.OutcomeSkippedAborted,
			Diagnostic: &result.Diagnostic{
				Step:    "scheduling",
				Message: "run aborted before host was contacted",
			},
		}
		s.agg.Record(res)
		if s.metrics != nil {
			s.metrics.RecordResult(string(res.Outcome))
		}
	}
}
