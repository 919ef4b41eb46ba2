package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/probe"
)

func TestOutcomeIntentional(t *testing.T) {
	assert.True(t, OutcomeSucceeded.Intentional())
	assert.True(t, OutcomeSkippedAlreadyInstalled.Intentional())
	assert.True(t, OutcomeSkippedDryRun.Intentional())
	assert.False(t, OutcomeFailed.Intentional())
	assert.False(t, OutcomeSkippedInsufficientResources.Intentional())
	assert.False(t, OutcomeSkippedAborted.Intentional())
}

func TestAggregatorSummary(t *testing.T) {
	agg := NewAggregator()
	agg.Record(InstallResult{Host: "a:22", Outcome: OutcomeSucceeded})
	agg.Record(InstallResult{Host: "b:22", Outcome: OutcomeSucceeded})
	agg.Record(InstallResult{Host: "c:22", Outcome: OutcomeFailed})
	agg.Record(InstallResult{Host: "d:22", Outcome: OutcomeSkippedAlreadyInstalled})
	agg.Record(InstallResult{Host: "e:22", Outcome: OutcomeSkippedInsufficientResources})
	agg.Record(InstallResult{Host: "f:22", Outcome: OutcomeSkippedAborted})

	s := agg.Summary()
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.AlreadyInstalled)
	assert.Equal(t, 1, s.InsufficientResources)
	assert.Equal(t, 1, s.Aborted)
	assert.Equal(t, 0, s.DryRun)
}

func TestAggregatorOK(t *testing.T) {
	agg := NewAggregator()
	agg.Record(InstallResult{Host: "a:22", Outcome: OutcomeSucceeded})
	agg.Record(InstallResult{Host: "b:22", Outcome: OutcomeSkippedAlreadyInstalled})
	assert.True(t, agg.OK())

	agg.Record(InstallResult{Host: "c:22", Outcome: OutcomeSkippedInsufficientResources})
	assert.False(t, agg.OK())
}

func TestAggregatorResultsInPlanOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Record(InstallResult{Host: "c:22", Index: 2, Outcome: OutcomeSucceeded})
	agg.Record(InstallResult{Host: "a:22", Index: 0, Outcome: OutcomeSucceeded})
	agg.Record(InstallResult{Host: "b:22", Index: 1, Outcome: OutcomeFailed})

	results := agg.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "a:22", results[0].Host)
	assert.Equal(t, "b:22", results[1].Host)
	assert.Equal(t, "c:22", results[2].Host)
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.Record(InstallResult{Index: i, Outcome: OutcomeSucceeded})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, agg.Summary().Total)
	assert.True(t, agg.OK())
}

func TestArtifactWriteFile(t *testing.T) {
	art := &Artifact{
		RunID:     "run-123",
		StartedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC),
		Summary:   Summary{Total: 1, Failed: 1},
		Results: []InstallResult{
			{
				Host:    "10.0.0.1:22",
				Outcome: OutcomeSkippedInsufficientResources,
				Diagnostic: &Diagnostic{
					Step:      "probing",
					Message:   "memory 256MB < required 512MB",
					Resources: &probe.Resources{AvailableMemoryMB: 256, FreeDiskMB: 4096},
				},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, art.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Artifact
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-123", got.RunID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, OutcomeSkippedInsufficientResources, got.Results[0].Outcome)
	require.NotNil(t, got.Results[0].Diagnostic)
	assert.Equal(t, 256, got.Results[0].Diagnostic.Resources.AvailableMemoryMB)
}
