package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcage/devcage/internal/models"
)

func newTestCoordinator(t *testing.T, adapter *fakeAdapter, resolver *fakeResolver) *Coordinator {
	t.Helper()
	orch := newTestOrchestrator(t, adapter, resolver, newFakeRunner())
	return NewCoordinator(orch, resolver, adapter)
}

func TestCoordinatorRejectsUnknownContainer(t *testing.T) {
	adapter := newFakeAdapter()
	coord := newTestCoordinator(t, adapter, newFakeResolver("dev-env"))

	_, err := coord.StartContainer("ghost")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
	assert.Empty(t, coord.orch.List(), "rejected submissions must not create operations")
}

func TestCoordinatorRejectsUnknownGroup(t *testing.T) {
	adapter := newFakeAdapter()
	coord := newTestCoordinator(t, adapter, newFakeResolver("dev-env"))

	_, err := coord.StartGroup("ghost")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestCoordinatorStartContainer(t *testing.T) {
	adapter := newFakeAdapter()
	coord := newTestCoordinator(t, adapter, newFakeResolver("dev-env"))

	snap, err := coord.StartContainer("dev-env")
	require.NoError(t, err)
	assert.Equal(t, models.OperationStart, snap.Kind)
	assert.Equal(t, []string{"dev-env"}, snap.Targets)

	final := waitDone(t, coord.orch, snap.ID)
	assert.Equal(t, models.OperationStatusCompleted, final.Status)
	assert.Equal(t, []string{"dev-env"}, adapter.startedOrder())
}

func TestCoordinatorStopGroupKeepsDeclaredTargetOrder(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setRunning("db")
	adapter.setRunning("cache")
	adapter.setRunning("app")
	resolver := newFakeResolver("db", "cache", "app").withGroup("stack", "db", "cache", "app")
	coord := newTestCoordinator(t, adapter, resolver)

	snap, err := coord.StopGroup("stack")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "cache", "app"}, snap.Targets,
		"target set records the group's declared order")

	final := waitDone(t, coord.orch, snap.ID)
	assert.Equal(t, models.OperationStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Counters.Stopped)
	assert.ElementsMatch(t, []string{"db", "cache", "app"}, adapter.stoppedOrder())
}

func TestCoordinatorStartGroupKeepsDeclaredOrder(t *testing.T) {
	adapter := newFakeAdapter()
	resolver := newFakeResolver("db", "cache", "app").withGroup("stack", "db", "cache", "app")
	coord := newTestCoordinator(t, adapter, resolver)

	snap, err := coord.StartGroup("stack")
	require.NoError(t, err)

	final := waitDone(t, coord.orch, snap.ID)
	assert.Equal(t, models.OperationStatusCompleted, final.Status)
	assert.Equal(t, []string{"db", "cache", "app"}, adapter.startedOrder())
}

func TestCoordinatorStopAllSnapshotsManagedSet(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setRunning("alpha")
	adapter.setRunning("beta")
	coord := newTestCoordinator(t, adapter, newFakeResolver("alpha", "beta"))

	snap, err := coord.StopAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, snap.Targets)

	final := waitDone(t, coord.orch, snap.ID)
	assert.Equal(t, 2, final.Counters.Stopped)
}

func TestCoordinatorBulkWithNothingManaged(t *testing.T) {
	adapter := newFakeAdapter()
	coord := newTestCoordinator(t, adapter, newFakeResolver())

	snap, err := coord.RestartAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusCompleted, snap.Status)
	assert.Empty(t, snap.Targets)
}

func TestCoordinatorContainerStatus(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setRunning("dev-env")
	coord := newTestCoordinator(t, adapter, newFakeResolver("dev-env"))

	detail, err := coord.ContainerStatus(context.Background(), "dev-env")
	require.NoError(t, err)
	assert.Equal(t, "dev-env", detail.Spec.Name)
	assert.Equal(t, models.RunStateRunning, detail.Status.State)

	_, err = coord.ContainerStatus(context.Background(), "ghost")
	assert.True(t, models.IsNotFound(err))
}

func TestCoordinatorListContainers(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setRunning("beta")
	coord := newTestCoordinator(t, adapter, newFakeResolver("alpha", "beta"))

	details, err := coord.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "alpha", details[0].Spec.Name)
	assert.Equal(t, models.RunStateAbsent, details[0].Status.State)
	assert.Equal(t, models.RunStateRunning, details[1].Status.State)
}

func TestCoordinatorGroupStatusCounts(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setRunning("db")
	adapter.setExited("cache")
	resolver := newFakeResolver("db", "cache", "app").withGroup("stack", "db", "cache", "app")
	coord := newTestCoordinator(t, adapter, resolver)

	status, err := coord.GroupStatus(context.Background(), "stack")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Running)
	assert.Equal(t, 1, status.Exited)
	assert.Equal(t, 1, status.Absent)
	require.Len(t, status.Members, 3)
	assert.Equal(t, "db", status.Members[0].Name)
}

func TestCoordinatorListGroups(t *testing.T) {
	adapter := newFakeAdapter()
	resolver := newFakeResolver("db", "app").
		withGroup("backend", "db").
		withGroup("frontend", "app")
	coord := newTestCoordinator(t, adapter, resolver)

	groups, err := coord.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "backend", groups[0].Name)
	assert.Equal(t, "frontend", groups[1].Name)
}
