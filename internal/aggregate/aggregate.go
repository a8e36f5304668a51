// Package aggregate keeps the per-run mapping from instance id to result.
package aggregate

import (
	"errors"
	"sync"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

var (
	ErrDuplicateResult = errors.New("result already recorded for instance")
	ErrStaleEpoch      = errors.New("result belongs to a superseded run")
)

// Aggregator is insert-only within one epoch; Reset starts a new one.
type Aggregator struct {
	mu      sync.RWMutex
	epoch   uint64
	results map[string]domain.ProbeResult
	success int
}

func New() *Aggregator {
	return &Aggregator{results: make(map[string]domain.ProbeResult)}
}

// Reset clears all results and tags the aggregator with epoch.
func (a *Aggregator) Reset(epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch = epoch
	a.results = make(map[string]domain.ProbeResult)
	a.success = 0
}

func (a *Aggregator) Record(epoch uint64, instanceID string, r domain.ProbeResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epoch != a.epoch {
		return ErrStaleEpoch
	}
	if _, ok := a.results[instanceID]; ok {
		return ErrDuplicateResult
	}
	a.results[instanceID] = r
	if r.Passed() {
		a.success++
	}
	return nil
}

// Counts returns the number of successful results and the number recorded.
func (a *Aggregator) Counts() (success, total int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.success, len(a.results)
}

func (a *Aggregator) Epoch() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epoch
}

// Results returns a copy of the current mapping.
func (a *Aggregator) Results() map[string]domain.ProbeResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]domain.ProbeResult, len(a.results))
	for k, v := range a.results {
		out[k] = v
	}
	return out
}
