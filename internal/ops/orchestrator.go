package ops

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/runtime"
	"github.com/devcage/devcage/internal/scripts"
)

// Options configures an Orchestrator.
type Options struct {
	// Adapter talks to the container runtime
	Adapter runtime.Adapter
	// Resolver supplies declared container and group specs
	Resolver SpecResolver
	// Runner executes lifecycle scripts inside containers
	Runner ScriptRunner
	// Logger defaults to logrus.New() when nil
	Logger *logrus.Logger
	// MaxConcurrent bounds per-operation target parallelism (default 8)
	MaxConcurrent int
	// Retention keeps terminal operations pollable for this long (default 1h)
	Retention time.Duration
	// SweepInterval is how often expired operations are evicted (default 5m)
	SweepInterval time.Duration
	// ReadyTimeout bounds the post-start readiness observation (default 30s)
	ReadyTimeout time.Duration
	// CancelGrace is how long in-flight work may run after a cancel (default 10s)
	CancelGrace time.Duration
}

// Orchestrator owns the operation table. It accepts lifecycle requests,
// runs each one on its own worker goroutine with bounded per-target
// parallelism, and serves point-in-time snapshots to pollers.
type Orchestrator struct {
	adapter     runtime.Adapter
	exec        *executor
	logger      *logrus.Logger
	maxParallel int
	retention   time.Duration
	sweepEvery  time.Duration
	cancelGrace time.Duration

	mu  sync.RWMutex
	ops map[string]*operation

	watchMu  sync.Mutex
	watchers map[string]map[chan models.OperationSnapshot]struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewOrchestrator builds an orchestrator and starts its eviction sweeper.
func NewOrchestrator(options Options) *Orchestrator {
	if options.Logger == nil {
		options.Logger = logrus.New()
	}
	if options.MaxConcurrent <= 0 {
		options.MaxConcurrent = 8
	}
	if options.Retention <= 0 {
		options.Retention = time.Hour
	}
	if options.SweepInterval <= 0 {
		options.SweepInterval = 5 * time.Minute
	}
	if options.ReadyTimeout <= 0 {
		options.ReadyTimeout = 30 * time.Second
	}
	if options.CancelGrace <= 0 {
		options.CancelGrace = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		adapter:     options.Adapter,
		exec:        newExecutor(options.Adapter, options.Resolver, options.Runner, scripts.Failed, options.ReadyTimeout, options.Logger),
		logger:      options.Logger,
		maxParallel: options.MaxConcurrent,
		retention:   options.Retention,
		sweepEvery:  options.SweepInterval,
		cancelGrace: options.CancelGrace,
		ops:         make(map[string]*operation),
		watchers:    make(map[string]map[chan models.OperationSnapshot]struct{}),
		rootCtx:     ctx,
		rootCancel:  cancel,
	}

	o.wg.Add(1)
	go o.sweepLoop()

	return o
}

// Submit registers a new operation over the given targets and returns its
// snapshot immediately. The actual work happens on a dedicated worker
// goroutine. An empty target set settles the operation at once.
func (o *Orchestrator) Submit(kind models.OperationKind, targets []string, sequential bool) (models.OperationSnapshot, error) {
	if !kind.IsValid() {
		return models.OperationSnapshot{}, errors.Wrapf(models.ErrValidation, "unknown operation kind %q", kind)
	}
	if err := o.rootCtx.Err(); err != nil {
		return models.OperationSnapshot{}, errors.Wrap(err, "orchestrator stopped")
	}

	softCtx, softCancel := context.WithCancel(o.rootCtx)
	hardCtx, hardCancel := context.WithCancel(context.Background())

	op := &operation{
		id:         uuid.NewString(),
		kind:       kind,
		status:     models.OperationStatusPending,
		targets:    append([]string(nil), targets...),
		results:    make(map[string]models.TargetResult, len(targets)),
		createdAt:  time.Now(),
		sequential: sequential,
		softCancel: softCancel,
		hardCancel: hardCancel,
	}

	if len(op.targets) == 0 {
		op.status = models.OperationStatusCompleted
		now := op.createdAt
		op.completedAt = &now
		softCancel()
		hardCancel()
	}

	o.mu.Lock()
	o.ops[op.id] = op
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"operation_id": op.id,
		"kind":         kind,
		"targets":      len(op.targets),
	}).Info("operation accepted")

	if !op.terminal() {
		o.wg.Add(1)
		go o.run(op, softCtx, hardCtx)
	}

	return op.snapshot(), nil
}

// Status returns a point-in-time copy of the operation, or ErrNotFound if
// the id is unknown or already evicted.
func (o *Orchestrator) Status(id string) (models.OperationSnapshot, error) {
	o.mu.RLock()
	op, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return models.OperationSnapshot{}, errors.Wrapf(models.ErrNotFound, "operation %s", id)
	}
	return op.snapshot(), nil
}

// List returns snapshots for every tracked operation, newest first.
func (o *Orchestrator) List() []models.OperationSnapshot {
	o.mu.RLock()
	snaps := make([]models.OperationSnapshot, 0, len(o.ops))
	for _, op := range o.ops {
		snaps = append(snaps, op.snapshot())
	}
	o.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps
}

// Cancel requests best-effort cancellation: unstarted targets stay
// unstarted, in-flight work gets the configured grace period. Cancelling a
// terminal operation returns ErrOperationTerminal.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.RLock()
	op, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "operation %s", id)
	}
	if op.terminal() {
		return errors.Wrapf(models.ErrOperationTerminal, "operation %s", id)
	}

	o.logger.WithField("operation_id", id).Info("operation cancel requested")
	op.softCancel()
	grace := o.cancelGrace
	hard := op.hardCancel
	time.AfterFunc(grace, hard)
	return nil
}

// Watch subscribes to snapshot updates for an operation. The current
// snapshot is delivered immediately; the channel closes once the operation
// turns terminal or is evicted. The returned func unsubscribes.
func (o *Orchestrator) Watch(id string) (<-chan models.OperationSnapshot, func(), error) {
	o.mu.RLock()
	op, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return nil, nil, errors.Wrapf(models.ErrNotFound, "operation %s", id)
	}

	ch := make(chan models.OperationSnapshot, 16)

	// The terminal check and registration happen under watchMu, the same
	// lock the worker's final notify takes: either we observe the terminal
	// state here, or the channel is registered before that notify runs.
	o.watchMu.Lock()
	ch <- op.snapshot()
	if op.terminal() {
		o.watchMu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	set, ok := o.watchers[id]
	if !ok {
		set = make(map[chan models.OperationSnapshot]struct{})
		o.watchers[id] = set
	}
	set[ch] = struct{}{}
	o.watchMu.Unlock()

	unsubscribe := func() {
		o.watchMu.Lock()
		if set, ok := o.watchers[id]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(o.watchers, id)
			}
		}
		o.watchMu.Unlock()
	}
	return ch, unsubscribe, nil
}

// Stop cancels all in-flight operations and waits for workers to exit.
func (o *Orchestrator) Stop() {
	o.rootCancel()

	o.mu.RLock()
	for _, op := range o.ops {
		op.hardCancel()
	}
	o.mu.RUnlock()

	o.wg.Wait()
}

// run is the per-operation worker. It probes the runtime, fans targets out
// under the concurrency bound, and settles the final status.
func (o *Orchestrator) run(op *operation, softCtx, hardCtx context.Context) {
	defer o.wg.Done()
	defer op.hardCancel()
	defer op.softCancel()

	log := o.logger.WithFields(logrus.Fields{"operation_id": op.id, "kind": op.kind})

	pingCtx, cancel := context.WithTimeout(hardCtx, 10*time.Second)
	err := o.adapter.Ping(pingCtx)
	cancel()
	if err != nil {
		log.WithError(err).Error("runtime unavailable, aborting operation")
		op.fail(errors.Wrap(models.ErrRuntimeUnavailable, err.Error()).Error())
		o.notify(op)
		return
	}

	op.setStatus(models.OperationStatusRunning)
	o.notify(op)

	if op.sequential {
		o.runSequential(op, softCtx, hardCtx)
	} else {
		o.runParallel(op, softCtx, hardCtx)
	}

	snap := op.snapshot()
	final := models.OperationStatusCompleted
	if softCtx.Err() != nil && snap.Counters.Sum() < len(snap.Targets) {
		final = models.OperationStatusCancelled
	}
	op.setStatus(final)
	o.notify(op)

	snap = op.snapshot()
	log.WithFields(logrus.Fields{
		"status":   snap.Status,
		"settled":  snap.Counters.Sum(),
		"failed":   snap.Counters.Failed,
		"duration": time.Since(snap.CreatedAt).String(),
	}).Info("operation finished")
}

func (o *Orchestrator) runSequential(op *operation, softCtx, hardCtx context.Context) {
	for _, name := range op.targets {
		if softCtx.Err() != nil {
			return
		}
		op.settle(o.exec.execute(hardCtx, name, op.kind))
		o.notify(op)
	}
}

func (o *Orchestrator) runParallel(op *operation, softCtx, hardCtx context.Context) {
	limit := int64(o.maxParallel)
	if n := int64(len(op.targets)); n < limit {
		limit = n
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for _, name := range op.targets {
		if err := sem.Acquire(softCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer sem.Release(1)
			op.settle(o.exec.execute(hardCtx, name, op.kind))
			o.notify(op)
		}(name)
	}
	wg.Wait()
}

// notify pushes the current snapshot to every watcher without blocking; a
// slow consumer just misses intermediate states and catches up on the next
// update.
func (o *Orchestrator) notify(op *operation) {
	snap := op.snapshot()

	o.watchMu.Lock()
	defer o.watchMu.Unlock()

	set, ok := o.watchers[op.id]
	if !ok {
		return
	}
	for ch := range set {
		select {
		case ch <- snap:
		default:
		}
	}
	if snap.Done() {
		for ch := range set {
			close(ch)
		}
		delete(o.watchers, op.id)
	}
}

// sweepLoop periodically evicts terminal operations past the retention
// window.
func (o *Orchestrator) sweepLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
			o.sweep(time.Now())
		}
	}
}

func (o *Orchestrator) sweep(now time.Time) {
	var evicted []string

	o.mu.Lock()
	for id, op := range o.ops {
		if op.evictable(o.retention, now) {
			delete(o.ops, id)
			evicted = append(evicted, id)
		}
	}
	o.mu.Unlock()

	if len(evicted) == 0 {
		return
	}

	o.watchMu.Lock()
	for _, id := range evicted {
		if set, ok := o.watchers[id]; ok {
			for ch := range set {
				close(ch)
			}
			delete(o.watchers, id)
		}
	}
	o.watchMu.Unlock()

	o.logger.WithField("count", len(evicted)).Debug("evicted expired operations")
}
