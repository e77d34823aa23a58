package ops

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devcage/devcage/internal/models"
)

// fakeAdapter is an in-memory runtime.Adapter.
type fakeAdapter struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	pingErr    error
	startErr   map[string]error
	stopErr    map[string]error
	removeErr  map[string]error
	blockStart map[string]bool

	startOrder []string
	stopOrder  []string
	removed    []string
	purges     map[string]bool
	seq        int
}

type fakeContainer struct {
	state     models.ContainerRunState
	id        string
	startedAt time.Time
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		containers: make(map[string]*fakeContainer),
		startErr:   make(map[string]error),
		stopErr:    make(map[string]error),
		removeErr:  make(map[string]error),
		blockStart: make(map[string]bool),
		purges:     make(map[string]bool),
	}
}

func (f *fakeAdapter) setRunning(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.containers[name] = &fakeContainer{
		state:     models.RunStateRunning,
		id:        fmt.Sprintf("cid-%s-%d", name, f.seq),
		startedAt: time.Now(),
	}
}

func (f *fakeAdapter) setExited(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.containers[name] = &fakeContainer{
		state: models.RunStateExited,
		id:    fmt.Sprintf("cid-%s-%d", name, f.seq),
	}
}

func (f *fakeAdapter) EnsureStarted(ctx context.Context, spec *models.ContainerSpec) (string, error) {
	f.mu.Lock()
	block := f.blockStart[spec.Name]
	err := f.startErr[spec.Name]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.startOrder = append(f.startOrder, spec.Name)
	f.seq++
	f.containers[spec.Name] = &fakeContainer{
		state:     models.RunStateRunning,
		id:        fmt.Sprintf("cid-%s-%d", spec.Name, f.seq),
		startedAt: time.Now(),
	}
	id := f.containers[spec.Name].id
	f.mu.Unlock()
	return id, nil
}

func (f *fakeAdapter) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopErr[name]; err != nil {
		return err
	}
	f.stopOrder = append(f.stopOrder, name)
	if c, ok := f.containers[name]; ok {
		c.state = models.RunStateExited
	}
	return nil
}

func (f *fakeAdapter) Remove(ctx context.Context, name string, purgeVolumes, purgeImage bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[name]; err != nil {
		return err
	}
	f.removed = append(f.removed, name)
	f.purges[name] = purgeVolumes
	delete(f.containers, name)
	return nil
}

func (f *fakeAdapter) Inspect(ctx context.Context, name string) (models.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return models.ContainerStatus{Name: name, State: models.RunStateAbsent}, nil
	}
	started := c.startedAt
	return models.ContainerStatus{
		Name:        name,
		ContainerID: c.id,
		State:       c.state,
		StartedAt:   &started,
	}, nil
}

func (f *fakeAdapter) Exec(ctx context.Context, name string, cmd []string, stdout, stderr io.Writer) (int, error) {
	return 0, nil
}

func (f *fakeAdapter) ListManaged(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.containers))
	for name := range f.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeAdapter) Logs(ctx context.Context, name string, tail string, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeAdapter) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, f.pingErr)
	}
	return nil
}

func (f *fakeAdapter) startedOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.startOrder...)
}

func (f *fakeAdapter) stoppedOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopOrder...)
}

func (f *fakeAdapter) removedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeAdapter) purgedVolumes(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purges[name]
}

// fakeResolver serves specs from a static map.
type fakeResolver struct {
	containers map[string]*models.ContainerSpec
	groups     map[string]*models.GroupSpec
}

func newFakeResolver(names ...string) *fakeResolver {
	r := &fakeResolver{
		containers: make(map[string]*models.ContainerSpec),
		groups:     make(map[string]*models.GroupSpec),
	}
	for _, name := range names {
		r.containers[name] = &models.ContainerSpec{
			Name:    name,
			Image:   "alpine:3.20",
			Scripts: map[models.ScriptPhase][]models.ScriptSpec{},
		}
	}
	return r
}

func (r *fakeResolver) withGroup(name string, members ...string) *fakeResolver {
	r.groups[name] = &models.GroupSpec{Name: name, Members: members}
	return r
}

func (r *fakeResolver) withShared(name string) *fakeResolver {
	r.containers[name].Shared = true
	return r
}

func (r *fakeResolver) withScripts(name string, phase models.ScriptPhase) *fakeResolver {
	spec := r.containers[name]
	spec.Scripts[phase] = append(spec.Scripts[phase], models.ScriptSpec{
		Phase: phase, Origin: models.OriginCustom, Command: "true", Shell: "/bin/sh",
	})
	return r
}

func (r *fakeResolver) ResolveContainer(name string) (*models.ContainerSpec, error) {
	spec, ok := r.containers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown container %q", models.ErrNotFound, name)
	}
	return spec, nil
}

func (r *fakeResolver) ResolveGroup(name string) (*models.GroupSpec, error) {
	group, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group %q", models.ErrNotFound, name)
	}
	return group, nil
}

func (r *fakeResolver) ContainerNames() []string {
	names := make([]string, 0, len(r.containers))
	for name := range r.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *fakeResolver) GroupNames() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fakeRunner records script phases and returns canned results.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]bool)}
}

func (f *fakeRunner) Run(ctx context.Context, container string, phase models.ScriptPhase, scripts []models.ScriptSpec) []models.ScriptResult {
	key := container + "/" + string(phase)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	failed := f.fail[key]
	f.mu.Unlock()

	result := models.ScriptResult{Phase: phase, Origin: models.OriginCustom, Attempt: 1}
	if failed {
		result.ExitCode = 1
		result.Error = "exited with code 1"
	}
	return []models.ScriptResult{result}
}

func (f *fakeRunner) phaseCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
