package ops

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/runtime"
)

// Coordinator resolves request targets into concrete container sets and
// submits them to the orchestrator. Unknown containers and groups are
// rejected here, before an operation ever exists.
type Coordinator struct {
	orch     *Orchestrator
	resolver SpecResolver
	adapter  runtime.Adapter
}

// NewCoordinator wires a coordinator over an orchestrator.
func NewCoordinator(orch *Orchestrator, resolver SpecResolver, adapter runtime.Adapter) *Coordinator {
	return &Coordinator{orch: orch, resolver: resolver, adapter: adapter}
}

// StartContainer submits a start operation for one declared container.
func (c *Coordinator) StartContainer(name string) (models.OperationSnapshot, error) {
	return c.single(models.OperationStart, name)
}

// StopContainer submits a stop operation for one declared container.
func (c *Coordinator) StopContainer(name string) (models.OperationSnapshot, error) {
	return c.single(models.OperationStop, name)
}

// RestartContainer submits a restart operation for one declared container.
func (c *Coordinator) RestartContainer(name string) (models.OperationSnapshot, error) {
	return c.single(models.OperationRestart, name)
}

// CleanupContainer submits a cleanup operation for one declared container.
func (c *Coordinator) CleanupContainer(name string) (models.OperationSnapshot, error) {
	return c.single(models.OperationCleanup, name)
}

func (c *Coordinator) single(kind models.OperationKind, name string) (models.OperationSnapshot, error) {
	if _, err := c.resolver.ResolveContainer(name); err != nil {
		return models.OperationSnapshot{}, err
	}
	return c.orch.Submit(kind, []string{name}, false)
}

// StartGroup starts every member of a declared group in declared order,
// one at a time.
func (c *Coordinator) StartGroup(name string) (models.OperationSnapshot, error) {
	group, err := c.resolver.ResolveGroup(name)
	if err != nil {
		return models.OperationSnapshot{}, err
	}
	return c.orch.Submit(models.OperationGroupStart, group.Members, true)
}

// StopGroup stops every member of a declared group. The recorded target
// set keeps the declared order; members go down under the orchestrator's
// normal concurrency bound.
func (c *Coordinator) StopGroup(name string) (models.OperationSnapshot, error) {
	group, err := c.resolver.ResolveGroup(name)
	if err != nil {
		return models.OperationSnapshot{}, err
	}
	return c.orch.Submit(models.OperationGroupStop, group.Members, false)
}

// StopAll stops every managed container found at submission time.
func (c *Coordinator) StopAll(ctx context.Context) (models.OperationSnapshot, error) {
	return c.bulk(ctx, models.OperationStopAll)
}

// RestartAll restarts every managed container found at submission time.
func (c *Coordinator) RestartAll(ctx context.Context) (models.OperationSnapshot, error) {
	return c.bulk(ctx, models.OperationRestartAll)
}

// CleanupAll removes every managed container found at submission time.
func (c *Coordinator) CleanupAll(ctx context.Context) (models.OperationSnapshot, error) {
	return c.bulk(ctx, models.OperationCleanupAll)
}

// bulk snapshots the managed container set once; containers created after
// submission are not picked up by the running operation.
func (c *Coordinator) bulk(ctx context.Context, kind models.OperationKind) (models.OperationSnapshot, error) {
	names, err := c.adapter.ListManaged(ctx)
	if err != nil {
		return models.OperationSnapshot{}, errors.Wrap(models.ErrRuntimeUnavailable, err.Error())
	}
	sort.Strings(names)
	return c.orch.Submit(kind, names, false)
}

// ContainerStatus returns one declared container's live state.
func (c *Coordinator) ContainerStatus(ctx context.Context, name string) (models.ContainerDetail, error) {
	spec, err := c.resolver.ResolveContainer(name)
	if err != nil {
		return models.ContainerDetail{}, err
	}
	status, err := c.adapter.Inspect(ctx, name)
	if err != nil {
		return models.ContainerDetail{}, errors.Wrap(models.ErrRuntimeUnavailable, err.Error())
	}
	return models.ContainerDetail{Spec: *spec, Status: status}, nil
}

// ListContainers returns the live state of every declared container.
func (c *Coordinator) ListContainers(ctx context.Context) ([]models.ContainerDetail, error) {
	names := c.resolver.ContainerNames()
	details := make([]models.ContainerDetail, 0, len(names))
	for _, name := range names {
		detail, err := c.ContainerStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

// ListGroups returns the live status of every declared group.
func (c *Coordinator) ListGroups(ctx context.Context) ([]models.GroupStatus, error) {
	names := c.resolver.GroupNames()
	groups := make([]models.GroupStatus, 0, len(names))
	for _, name := range names {
		status, err := c.GroupStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, status)
	}
	return groups, nil
}

// GroupStatus returns a group's declared membership with each member's
// live state.
func (c *Coordinator) GroupStatus(ctx context.Context, name string) (models.GroupStatus, error) {
	group, err := c.resolver.ResolveGroup(name)
	if err != nil {
		return models.GroupStatus{}, err
	}

	status := models.GroupStatus{Name: group.Name, Description: group.Description}
	for _, member := range group.Members {
		st, err := c.adapter.Inspect(ctx, member)
		if err != nil {
			return models.GroupStatus{}, errors.Wrap(models.ErrRuntimeUnavailable, err.Error())
		}
		status.Members = append(status.Members, st)
		switch st.State {
		case models.RunStateRunning:
			status.Running++
		case models.RunStateExited:
			status.Exited++
		case models.RunStateAbsent:
			status.Absent++
		}
	}
	return status, nil
}
