package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/result"
)

// fakeRunner returns scripted outcomes and tracks how many pipelines
// run at the same time.
type fakeRunner struct {
	mu          sync.Mutex
	outcomes    map[string]result.Outcome
	delay       time.Duration
	inFlight    int
	maxInFlight int
	starts      map[int]time.Time
	ends        map[int]time.Time
}

func (f *fakeRunner) Run(ctx context.Context, host config.HostTarget, index int) result.InstallResult {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	if f.starts == nil {
		f.starts = make(map[int]time.Time)
		f.ends = make(map[int]time.Time)
	}
	f.starts[index] = time.Now()
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.ends[index] = time.Now()
	outcome, ok := f.outcomes[host.Address]
	f.mu.Unlock()

	if !ok {
		outcome = result.OutcomeSucceeded
	}
	res := result.InstallResult{
		Host:      host.Addr(),
		Index:     index,
		Outcome:   outcome,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	}
	if outcome == result.OutcomeFailed {
		res.Diagnostic = &result.Diagnostic{Step: "installing", Message: "scripted failure"}
	}
	return res
}

func fleet(n int) []config.HostTarget {
	hosts := make([]config.HostTarget, n)
	for i := range hosts {
		hosts[i] = config.HostTarget{
			Address:  fmt.Sprintf("10.0.0.%d", i+1),
			Port:     22,
			Username: "root",
			Password: "secret",
			OSFamily: "linux",
		}
	}
	return hosts
}

func testConfig(hosts int, batchSize, delaySeconds int) *config.RunConfig {
	return &config.RunConfig{
		Hosts:                      fleet(hosts),
		MaxConcurrentInstalls:      batchSize,
		DelayBetweenBatchesSeconds: &delaySeconds,
	}
}

func TestRun_AllHostsProcessed(t *testing.T) {
	cfg := testConfig(7, 3, 0)
	runner := &fakeRunner{}
	agg := result.NewAggregator()

	New(cfg, runner, agg, Options{}).Run(context.Background())

	results := agg.Results()
	require.Len(t, results, 7)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("10.0.0.%d:22", i+1), res.Host)
		assert.Equal(t, result.OutcomeSucceeded, res.Outcome)
	}
}

func TestRun_ConcurrencyCapped(t *testing.T) {
	cfg := testConfig(10, 3, 0)
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	agg := result.NewAggregator()

	New(cfg, runner, agg, Options{}).Run(context.Background())

	assert.Equal(t, 10, agg.Summary().Total)
	assert.LessOrEqual(t, runner.maxInFlight, 3)
	assert.Equal(t, 3, runner.maxInFlight)
}

func TestRun_BatchBarrierAndDelay(t *testing.T) {
	cfg := testConfig(5, 2, 1)
	runner := &fakeRunner{delay: 30 * time.Millisecond}
	agg := result.NewAggregator()

	started := time.Now()
	New(cfg, runner, agg, Options{}).Run(context.Background())
	elapsed := time.Since(started)

	require.Equal(t, 5, agg.Summary().Total)

	// 5 hosts at batch size 2 split into [2, 2, 1].
	batches := [][]int{{0, 1}, {2, 3}, {4}}
	delay := cfg.DelayBetweenBatches()

	for k := 1; k < len(batches); k++ {
		var prevEnd time.Time
		for _, i := range batches[k-1] {
			if runner.ends[i].After(prevEnd) {
				prevEnd = runner.ends[i]
			}
		}
		for _, i := range batches[k] {
			assert.False(t, runner.starts[i].Before(prevEnd.Add(delay)),
				"host %d started before the pause after batch %d elapsed", i, k)
		}
	}

	// Exactly two inter-batch pauses, none after the final batch.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Less(t, elapsed, 3*delay)
}

func TestRun_SingleBatchNoDelay(t *testing.T) {
	cfg := testConfig(3, 3, 60)
	runner := &fakeRunner{}
	agg := result.NewAggregator()

	started := time.Now()
	New(cfg, runner, agg, Options{}).Run(context.Background())

	// The inter-batch delay never applies after the final batch.
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 3, agg.Summary().Total)
}

func TestRun_FailedHostDoesNotStopOthers(t *testing.T) {
	cfg := testConfig(4, 2, 0)
	runner := &fakeRunner{
		outcomes: map[string]result.Outcome{
			"10.0.0.2": result.OutcomeFailed,
		},
	}
	agg := result.NewAggregator()

	New(cfg, runner, agg, Options{}).Run(context.Background())

	s := agg.Summary()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.False(t, agg.OK())
}

func TestRun_AbortBeforeStart(t *testing.T) {
	cfg := testConfig(5, 2, 0)
	runner := &fakeRunner{}
	agg := result.NewAggregator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	New(cfg, runner, agg, Options{}).Run(ctx)

	results := agg.Results()
	require.Len(t, results, 5)
	for _, res := range results {
		assert.Equal(t, result.OutcomeSkippedAborted, res.Outcome)
		require.NotNil(t, res.Diagnostic)
		assert.Equal(t, "scheduling", res.Diagnostic.Step)
		assert.True(t, res.StartedAt.IsZero())
	}
}

func TestRun_AbortDuringDelayCutsRunShort(t *testing.T) {
	cfg := testConfig(4, 2, 60)
	runner := &fakeRunner{}
	agg := result.NewAggregator()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	New(cfg, runner, agg, Options{}).Run(ctx)

	// The 60s inter-batch pause is cut short by the abort.
	assert.Less(t, time.Since(started), 5*time.Second)

	s := agg.Summary()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 2, s.Aborted)
}
