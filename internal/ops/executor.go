package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/runtime"
)

// SpecResolver supplies declared container and group definitions, with
// lifecycle scripts already resolved into executable form.
type SpecResolver interface {
	ResolveContainer(name string) (*models.ContainerSpec, error)
	ResolveGroup(name string) (*models.GroupSpec, error)
	ContainerNames() []string
	GroupNames() []string
}

// ScriptRunner executes an ordered list of lifecycle scripts inside a
// container and reports every attempt.
type ScriptRunner interface {
	Run(ctx context.Context, container string, phase models.ScriptPhase, scripts []models.ScriptSpec) []models.ScriptResult
}

// scriptsFailed reports whether a phase's results represent a failure.
type scriptsFailed func(results []models.ScriptResult) bool

// executor drives a single container through one lifecycle transition:
// runtime action, readiness observation, then the lifecycle script phase.
type executor struct {
	adapter      runtime.Adapter
	resolver     SpecResolver
	runner       ScriptRunner
	failed       scriptsFailed
	readyTimeout time.Duration
	logger       *logrus.Logger

	// initDone remembers which container instance already ran its
	// post_start scripts, so repeated starts of a running container
	// stay side-effect free. Keyed by container name, valued by the
	// instance marker (container ID plus start time).
	initMu   sync.Mutex
	initDone map[string]string
}

func newExecutor(adapter runtime.Adapter, resolver SpecResolver, runner ScriptRunner, failed scriptsFailed, readyTimeout time.Duration, logger *logrus.Logger) *executor {
	return &executor{
		adapter:      adapter,
		resolver:     resolver,
		runner:       runner,
		failed:       failed,
		readyTimeout: readyTimeout,
		logger:       logger,
		initDone:     make(map[string]string),
	}
}

// execute performs kind on the named container and returns its settled
// result. It never returns an error: every failure mode folds into an
// OutcomeFailed result so sibling targets keep going.
func (e *executor) execute(ctx context.Context, name string, kind models.OperationKind) models.TargetResult {
	switch kind {
	case models.OperationStart, models.OperationGroupStart:
		return e.start(ctx, name)
	case models.OperationStop, models.OperationGroupStop, models.OperationStopAll:
		return e.stop(ctx, name)
	case models.OperationRestart, models.OperationRestartAll:
		return e.restart(ctx, name)
	case models.OperationCleanup, models.OperationCleanupAll:
		return e.cleanup(ctx, name)
	}
	return failedResult(name, fmt.Sprintf("unsupported operation kind %q", kind))
}

func (e *executor) start(ctx context.Context, name string) models.TargetResult {
	log := e.logger.WithFields(logrus.Fields{"container": name, "action": "start"})

	status, err := e.adapter.Inspect(ctx, name)
	if err != nil {
		return failedResult(name, fmt.Sprintf("inspect: %v", err))
	}

	if status.State == models.RunStateRunning {
		// Same instance already initialized: nothing to do. A running
		// container we have not initialized this instance of still
		// gets its post_start phase.
		if e.instanceInitialized(name, instanceMarker(status)) {
			log.Debug("container already running, scripts already applied")
			return models.TargetResult{Name: name, Outcome: models.OutcomeAlreadyRunning}
		}
		result := models.TargetResult{Name: name, Outcome: models.OutcomeAlreadyRunning}
		if failedRes, ok := e.runPhase(ctx, name, models.PhasePostStart, instanceMarker(status), &result); !ok {
			return failedRes
		}
		return result
	}

	spec, err := e.resolver.ResolveContainer(name)
	if err != nil {
		return failedResult(name, fmt.Sprintf("resolve: %v", err))
	}

	if _, err := e.adapter.EnsureStarted(ctx, spec); err != nil {
		return failedResult(name, err.Error())
	}

	observed, err := e.awaitRunning(ctx, name)
	if err != nil {
		return failedResult(name, err.Error())
	}
	log.WithField("container_id", observed.ContainerID).Info("container started")

	result := models.TargetResult{Name: name, Outcome: models.OutcomeStarted}
	if failedRes, ok := e.runPhase(ctx, name, models.PhasePostStart, instanceMarker(observed), &result); !ok {
		return failedRes
	}
	return result
}

func (e *executor) stop(ctx context.Context, name string) models.TargetResult {
	log := e.logger.WithFields(logrus.Fields{"container": name, "action": "stop"})

	status, err := e.adapter.Inspect(ctx, name)
	if err != nil {
		return failedResult(name, fmt.Sprintf("inspect: %v", err))
	}
	if status.State != models.RunStateRunning {
		log.Debug("container not running")
		return models.TargetResult{Name: name, Outcome: models.OutcomeNotRunning}
	}

	result := models.TargetResult{Name: name, Outcome: models.OutcomeStopped}
	if failedRes, ok := e.runPreStop(ctx, name, &result); !ok {
		return failedRes
	}

	if err := e.adapter.Stop(ctx, name); err != nil {
		return failedResultScripts(name, fmt.Sprintf("stop: %v", err), result.ScriptResults)
	}
	e.clearInstance(name)
	log.Info("container stopped")
	return result
}

func (e *executor) restart(ctx context.Context, name string) models.TargetResult {
	status, err := e.adapter.Inspect(ctx, name)
	if err != nil {
		return failedResult(name, fmt.Sprintf("inspect: %v", err))
	}

	result := models.TargetResult{Name: name, Outcome: models.OutcomeRestarted}

	if status.State == models.RunStateRunning {
		if failedRes, ok := e.runPreStop(ctx, name, &result); !ok {
			return failedRes
		}
		if err := e.adapter.Stop(ctx, name); err != nil {
			return failedResultScripts(name, fmt.Sprintf("stop: %v", err), result.ScriptResults)
		}
		e.clearInstance(name)
	}

	spec, err := e.resolver.ResolveContainer(name)
	if err != nil {
		return failedResultScripts(name, fmt.Sprintf("resolve: %v", err), result.ScriptResults)
	}
	if _, err := e.adapter.EnsureStarted(ctx, spec); err != nil {
		return failedResultScripts(name, err.Error(), result.ScriptResults)
	}
	observed, err := e.awaitRunning(ctx, name)
	if err != nil {
		return failedResultScripts(name, err.Error(), result.ScriptResults)
	}

	if failedRes, ok := e.runPhase(ctx, name, models.PhasePostStart, instanceMarker(observed), &result); !ok {
		return failedRes
	}
	return result
}

func (e *executor) cleanup(ctx context.Context, name string) models.TargetResult {
	log := e.logger.WithFields(logrus.Fields{"container": name, "action": "cleanup"})

	status, err := e.adapter.Inspect(ctx, name)
	if err != nil {
		return failedResult(name, fmt.Sprintf("inspect: %v", err))
	}

	result := models.TargetResult{Name: name, Outcome: models.OutcomeRemoved}

	if status.State == models.RunStateRunning {
		// Removal is irreversible, so a pre_stop failure leaves the
		// container untouched rather than destroying state the scripts
		// were meant to preserve.
		if failedRes, ok := e.runPreStop(ctx, name, &result); !ok {
			return failedRes
		}
		if err := e.adapter.Stop(ctx, name); err != nil {
			return failedResultScripts(name, fmt.Sprintf("stop: %v", err), result.ScriptResults)
		}
	}

	// Containers declaring shared volumes keep them; undeclared
	// containers get the full purge.
	purgeVolumes := true
	if spec, err := e.resolver.ResolveContainer(name); err == nil && spec.Shared {
		purgeVolumes = false
	}

	if err := e.adapter.Remove(ctx, name, purgeVolumes, true); err != nil {
		return failedResultScripts(name, fmt.Sprintf("remove: %v", err), result.ScriptResults)
	}
	e.clearInstance(name)
	log.Info("container removed")
	return result
}

// runPreStop resolves and runs the pre_stop phase. Containers known to the
// runtime but not declared in configuration simply have no scripts.
func (e *executor) runPreStop(ctx context.Context, name string, result *models.TargetResult) (models.TargetResult, bool) {
	spec, err := e.resolver.ResolveContainer(name)
	if err != nil {
		if models.IsNotFound(err) {
			return models.TargetResult{}, true
		}
		return failedResult(name, fmt.Sprintf("resolve: %v", err)), false
	}

	scriptSpecs := spec.Scripts[models.PhasePreStop]
	if len(scriptSpecs) == 0 {
		return models.TargetResult{}, true
	}

	results := e.runner.Run(ctx, name, models.PhasePreStop, scriptSpecs)
	result.ScriptResults = append(result.ScriptResults, results...)
	if e.failed(results) {
		return failedResultScripts(name, "pre_stop scripts failed", result.ScriptResults), false
	}
	return models.TargetResult{}, true
}

// runPhase resolves and runs the post_start phase, recording the instance
// marker on success so the phase never repeats for the same instance.
func (e *executor) runPhase(ctx context.Context, name string, phase models.ScriptPhase, marker string, result *models.TargetResult) (models.TargetResult, bool) {
	spec, err := e.resolver.ResolveContainer(name)
	if err != nil {
		if models.IsNotFound(err) {
			e.markInstance(name, marker)
			return models.TargetResult{}, true
		}
		return failedResult(name, fmt.Sprintf("resolve: %v", err)), false
	}

	scriptSpecs := spec.Scripts[phase]
	if len(scriptSpecs) == 0 {
		e.markInstance(name, marker)
		return models.TargetResult{}, true
	}

	results := e.runner.Run(ctx, name, phase, scriptSpecs)
	result.ScriptResults = append(result.ScriptResults, results...)
	if e.failed(results) {
		return failedResultScripts(name, string(phase)+" scripts failed", result.ScriptResults), false
	}
	e.markInstance(name, marker)
	return models.TargetResult{}, true
}

// awaitRunning polls the runtime until the container reports running or the
// readiness window closes.
func (e *executor) awaitRunning(ctx context.Context, name string) (models.ContainerStatus, error) {
	deadline := time.Now().Add(e.readyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, err := e.adapter.Inspect(ctx, name)
		if err != nil {
			return models.ContainerStatus{}, fmt.Errorf("inspect: %w", err)
		}
		if status.State == models.RunStateRunning {
			return status, nil
		}
		if status.State == models.RunStateExited {
			return models.ContainerStatus{}, fmt.Errorf("container exited during startup (exit code %d)", status.ExitCode)
		}
		if time.Now().After(deadline) {
			return models.ContainerStatus{}, fmt.Errorf("container did not reach running state within %s", e.readyTimeout)
		}
		select {
		case <-ctx.Done():
			return models.ContainerStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *executor) instanceInitialized(name, marker string) bool {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	return e.initDone[name] == marker && marker != ""
}

func (e *executor) markInstance(name, marker string) {
	if marker == "" {
		return
	}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	e.initDone[name] = marker
}

func (e *executor) clearInstance(name string) {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	delete(e.initDone, name)
}

// instanceMarker identifies one running incarnation of a container. A plain
// container ID is not enough because restarting keeps the ID but spawns a
// fresh process that needs its post_start phase again.
func instanceMarker(status models.ContainerStatus) string {
	if status.ContainerID == "" {
		return ""
	}
	marker := status.ContainerID
	if status.StartedAt != nil {
		marker += "@" + status.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	return marker
}

func failedResult(name, detail string) models.TargetResult {
	return models.TargetResult{Name: name, Outcome: models.OutcomeFailed, Detail: detail}
}

func failedResultScripts(name, detail string, scripts []models.ScriptResult) models.TargetResult {
	return models.TargetResult{Name: name, Outcome: models.OutcomeFailed, Detail: detail, ScriptResults: scripts}
}
