package result

import (
	"sort"
	"sync"
)

// Aggregator collects host results from concurrent pipelines.
// It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	results []InstallResult
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record adds a terminal host result.
func (a *Aggregator) Record(res InstallResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, res)
}

// Results returns a copy of all recorded results in plan order.
func (a *Aggregator) Results() []InstallResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]InstallResult, len(a.results))
	copy(out, a.results)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Summary tallies recorded results by outcome.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Total: len(a.results)}
	for _, r := range a.results {
		switch r.Outcome {
		case OutcomeSucceeded:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkippedAlreadyInstalled:
			s.AlreadyInstalled++
		case OutcomeSkippedInsufficientResources:
			s.InsufficientResources++
		case OutcomeSkippedDryRun:
			s.DryRun++
		case OutcomeSkippedAborted:
			s.Aborted++
		}
	}
	return s
}

// OK reports whether every recorded outcome is intentional.
func (a *Aggregator) OK() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.results {
		if !r.Outcome.Intentional() {
			return false
		}
	}
	return true
}
