// Package ops implements the asynchronous operation core: the in-memory
// operation table, the orchestrator that fans requests out to per-container
// executors, and the group/bulk coordinators that resolve target sets.
package ops

import (
	"context"
	"sync"
	"time"

	"github.com/devcage/devcage/internal/models"
)

// operation is one tracked asynchronous job. Only the owning worker mutates
// it (single-writer discipline); all other access goes through snapshot().
type operation struct {
	mu sync.RWMutex

	id          string
	kind        models.OperationKind
	status      models.OperationStatus
	targets     []string
	counters    models.OperationCounters
	errs        []string
	results     map[string]models.TargetResult
	createdAt   time.Time
	completedAt *time.Time

	// sequential forces declared-order execution (group_start)
	sequential bool

	// softCancel stops new targets from launching; hardCancel tears down
	// in-flight work after the cancellation grace period
	softCancel context.CancelFunc
	hardCancel context.CancelFunc
}

// snapshot returns an immutable deep copy safe for concurrent pollers.
func (o *operation) snapshot() models.OperationSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := models.OperationSnapshot{
		ID:        o.id,
		Kind:      o.kind,
		Status:    o.status,
		Targets:   append([]string(nil), o.targets...),
		Counters:  o.counters,
		CreatedAt: o.createdAt,
	}
	if len(o.errs) > 0 {
		snap.Errors = append([]string(nil), o.errs...)
	}
	if len(o.results) > 0 {
		snap.Results = make(map[string]models.TargetResult, len(o.results))
		for name, result := range o.results {
			copied := result
			copied.ScriptResults = append([]models.ScriptResult(nil), result.ScriptResults...)
			snap.Results[name] = copied
		}
	}
	if o.completedAt != nil {
		completed := *o.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// setStatus transitions the operation unless it is already terminal.
func (o *operation) setStatus(status models.OperationStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Terminal() {
		return false
	}
	o.status = status
	if status.Terminal() {
		now := time.Now()
		o.completedAt = &now
	}
	return true
}

// settle records one target's outcome, updating counters and the error list
// atomically so pollers never observe a rollback.
func (o *operation) settle(result models.TargetResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.Add(result.Outcome)
	o.results[result.Name] = result
	if result.Outcome == models.OutcomeFailed {
		o.errs = append(o.errs, result.Name+": "+result.Detail)
	}
}

// fail aborts the whole operation with a single error message.
func (o *operation) fail(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Terminal() {
		return
	}
	o.status = models.OperationStatusError
	o.errs = append(o.errs, msg)
	now := time.Now()
	o.completedAt = &now
}

// terminal reports whether the operation has settled.
func (o *operation) terminal() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status.Terminal()
}

// evictable reports whether the operation may be removed from the table.
func (o *operation) evictable(retention time.Duration, now time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.status.Terminal() || o.completedAt == nil {
		return false
	}
	return now.Sub(*o.completedAt) >= retention
}
