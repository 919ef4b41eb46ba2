package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/result"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(runID string, started time.Time) Record {
	return Record{
		RunID:     runID,
		StartedAt: started,
		EndedAt:   started.Add(2 * time.Minute),
		Summary:   result.Summary{Total: 2, Succeeded: 1, Failed: 1},
		Results: []result.InstallResult{
			{Host: "10.0.0.1:22", Outcome: result.OutcomeSucceeded},
			{
				Host:    "10.0.0.2:22",
				Outcome: result.OutcomeFailed,
				Diagnostic: &result.Diagnostic{
					Step:    "installing",
					Message: "command exited 2",
				},
			},
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	store := openTestStore(t)

	rec := sampleRecord("run-1", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(rec))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.Summary.Total)
	require.Len(t, got.Results, 2)
	assert.Equal(t, result.OutcomeFailed, got.Results[1].Outcome)
	require.NotNil(t, got.Results[1].Diagnostic)
	assert.Equal(t, "installing", got.Results[1].Diagnostic.Step)
}

func TestGet_Missing(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Get("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_Upsert(t *testing.T) {
	store := openTestStore(t)

	rec := sampleRecord("run-1", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(rec))

	rec.Summary.Succeeded = 2
	rec.Summary.Failed = 0
	require.NoError(t, store.Save(rec))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Summary.Succeeded)
	assert.Equal(t, 0, got.Summary.Failed)

	records, err := store.List(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestList_NewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 5; i++ {
		rec := sampleRecord(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Save(rec))
	}

	records, err := store.List(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "run-4", records[0].RunID)
	assert.Equal(t, "run-3", records[1].RunID)
	assert.Equal(t, "run-2", records[2].RunID)
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)

	old := sampleRecord("run-old", time.Now().Add(-72*time.Hour))
	recent := sampleRecord("run-recent", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(old))
	require.NoError(t, store.Save(recent))

	require.NoError(t, store.Prune(24*time.Hour))

	got, err := store.Get("run-old")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Get("run-recent")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
