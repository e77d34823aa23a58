package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/models"
)

// Adapter errors.
var (
	// ErrContainerNotFound indicates the named container does not exist
	ErrContainerNotFound = errors.New("container not found")
)

// Adapter is the call surface the orchestrator core consumes. Implemented by
// DockerAdapter; tests substitute fakes.
type Adapter interface {
	// EnsureStarted creates (pulling the image if needed) and starts the
	// container, or starts an existing stopped one. Returns the container ID.
	EnsureStarted(ctx context.Context, spec *models.ContainerSpec) (string, error)

	// Stop stops the named container. ErrContainerNotFound when absent.
	Stop(ctx context.Context, name string) error

	// Remove deletes the container; optionally its exclusively-owned named
	// volumes and its image.
	Remove(ctx context.Context, name string, purgeVolumes, purgeImage bool) error

	// Inspect reports the observed runtime state of the named container.
	// An absent container is reported with RunStateAbsent, not an error.
	Inspect(ctx context.Context, name string) (models.ContainerStatus, error)

	// Exec runs a command inside the running container, streaming demuxed
	// stdout/stderr into the writers, and returns the exit code.
	Exec(ctx context.Context, name string, cmd []string, stdout, stderr io.Writer) (int, error)

	// ListManaged returns the names of all containers bearing the managed label.
	ListManaged(ctx context.Context) ([]string, error)

	// Logs streams container logs. The caller closes the reader.
	Logs(ctx context.Context, name string, tail string, follow bool) (io.ReadCloser, error)

	// Ping probes runtime reachability.
	Ping(ctx context.Context) error
}

// DockerAdapter implements Adapter over the Docker Engine API.
type DockerAdapter struct {
	clients     *ClientManager
	logger      *logrus.Logger
	stopTimeout time.Duration
	platform    *ocispec.Platform
}

// AdapterOptions defines options for creating a DockerAdapter.
type AdapterOptions struct {
	// Clients is the managed Docker client source
	Clients *ClientManager

	// Logger is the logger to use
	Logger *logrus.Logger

	// StopTimeout is the grace period passed to the daemon on stop
	StopTimeout time.Duration

	// Platform optionally pins the image platform for container creation
	Platform *ocispec.Platform
}

// NewDockerAdapter creates a Docker-backed runtime adapter.
func NewDockerAdapter(options AdapterOptions) *DockerAdapter {
	logger := options.Logger
	if logger == nil {
		logger = logrus.New()
	}
	stopTimeout := options.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &DockerAdapter{
		clients:     options.Clients,
		logger:      logger,
		stopTimeout: stopTimeout,
		platform:    options.Platform,
	}
}

// EnsureStarted creates and starts the container described by spec, or
// starts the existing container when one with the name already exists.
func (a *DockerAdapter) EnsureStarted(ctx context.Context, spec *models.ContainerSpec) (string, error) {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return "", err
	}

	inspect, err := cli.ContainerInspect(ctx, spec.Name)
	if err == nil {
		if inspect.State != nil && inspect.State.Running {
			return inspect.ID, nil
		}
		a.logger.WithField("container", spec.Name).Debug("Starting existing container")
		if err := cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
		}
		return inspect.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("failed to inspect container %s: %w", spec.Name, err)
	}

	if err := a.ensureImage(ctx, cli, spec.Image); err != nil {
		return "", err
	}

	exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return "", fmt.Errorf("invalid port mapping for %s: %w", spec.Name, err)
	}

	labels := map[string]string{models.ManagedLabel: "true"}
	if spec.Group != "" {
		labels[models.GroupLabel] = spec.Group
	}

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			ExposedPorts: exposed,
			Labels:       labels,
		},
		&container.HostConfig{
			PortBindings: bindings,
		},
		nil, a.platform, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	a.logger.WithFields(logrus.Fields{
		"container": spec.Name,
		"id":        created.ID[:12],
		"image":     spec.Image,
	}).Info("Container created and started")

	return created.ID, nil
}

// ensureImage pulls the image when it is not present locally.
func (a *DockerAdapter) ensureImage(ctx context.Context, cli *client.Client, ref string) error {
	_, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	a.logger.WithField("image", ref).Info("Pulling image")
	rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull completes when the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Stop stops the named container with the configured grace period.
func (a *DockerAdapter) Stop(ctx context.Context, name string) error {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return err
	}

	timeout := int(a.stopTimeout.Seconds())
	err = cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// Remove deletes the container. Anonymous volumes follow the container;
// named volumes are attempted individually so volumes still referenced by
// other containers survive. The image is removed last when requested.
func (a *DockerAdapter) Remove(ctx context.Context, name string, purgeVolumes, purgeImage bool) error {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return err
	}

	inspect, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	var namedVolumes []string
	if purgeVolumes {
		for _, m := range inspect.Mounts {
			if m.Type == "volume" && m.Name != "" {
				namedVolumes = append(namedVolumes, m.Name)
			}
		}
	}

	err = cli.ContainerRemove(ctx, inspect.ID, container.RemoveOptions{
		RemoveVolumes: purgeVolumes,
		Force:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}

	for _, vol := range namedVolumes {
		if err := cli.VolumeRemove(ctx, vol, false); err != nil {
			// A volume still in use by another container is not exclusively
			// owned; leave it in place.
			a.logger.WithError(err).WithFields(logrus.Fields{
				"container": name,
				"volume":    vol,
			}).Debug("Skipping volume removal")
		}
	}

	if purgeImage && inspect.Config != nil && inspect.Config.Image != "" {
		if _, err := cli.ImageRemove(ctx, inspect.Config.Image, image.RemoveOptions{}); err != nil {
			// Other containers may still reference the image.
			a.logger.WithError(err).WithFields(logrus.Fields{
				"container": name,
				"image":     inspect.Config.Image,
			}).Debug("Skipping image removal")
		}
	}

	return nil
}

// Inspect reports the container's observed state.
func (a *DockerAdapter) Inspect(ctx context.Context, name string) (models.ContainerStatus, error) {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return models.ContainerStatus{}, err
	}

	inspect, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return models.ContainerStatus{Name: name, State: models.RunStateAbsent}, nil
		}
		return models.ContainerStatus{}, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	status := models.ContainerStatus{
		Name:        name,
		ContainerID: inspect.ID,
		State:       models.RunStateExited,
	}
	if inspect.Config != nil {
		status.Image = inspect.Config.Image
	}
	if inspect.State != nil {
		status.Detail = inspect.State.Status
		status.ExitCode = inspect.State.ExitCode
		if inspect.State.Running {
			status.State = models.RunStateRunning
			if started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
				status.StartedAt = &started
			}
		}
	}
	return status, nil
}

// Exec runs cmd inside the running container and blocks until it exits or
// ctx is done, demuxing output into the provided writers.
func (a *DockerAdapter) Exec(ctx context.Context, name string, cmd []string, stdout, stderr io.Writer) (int, error) {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return -1, err
	}

	created, err := cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return -1, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		return -1, fmt.Errorf("failed to create exec in %s: %w", name, err)
	}

	resp, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach to exec in %s: %w", name, err)
	}
	defer resp.Close()

	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(stdout, stderr, resp.Reader)
		copyDone <- copyErr
	}()

	select {
	case copyErr := <-copyDone:
		if copyErr != nil && !errors.Is(copyErr, io.EOF) {
			return -1, fmt.Errorf("error reading exec output from %s: %w", name, copyErr)
		}
	case <-ctx.Done():
		// Closing the hijacked connection terminates the copy goroutine.
		resp.Close()
		<-copyDone
		return -1, ctx.Err()
	}

	return a.waitForExecExit(ctx, cli, created.ID)
}

// waitForExecExit polls the exec instance until it reports completion.
func (a *DockerAdapter) waitForExecExit(ctx context.Context, cli *client.Client, execID string) (int, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-ticker.C:
			inspect, err := cli.ContainerExecInspect(ctx, execID)
			if err != nil {
				return -1, fmt.Errorf("failed to inspect exec instance: %w", err)
			}
			if !inspect.Running {
				return inspect.ExitCode, nil
			}
		}
	}
}

// ListManaged returns the names of all containers bearing the managed label,
// running or not.
func (a *DockerAdapter) ListManaged(ctx context.Context) ([]string, error) {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	list, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", models.ManagedLabel+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list managed containers: %w", err)
	}

	names := make([]string, 0, len(list))
	for _, c := range list {
		if len(c.Names) == 0 {
			continue
		}
		// Docker prefixes names with a slash.
		name := c.Names[0]
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
		names = append(names, name)
	}
	return names, nil
}

// Logs streams the container's logs.
func (a *DockerAdapter) Logs(ctx context.Context, name string, tail string, follow bool) (io.ReadCloser, error) {
	cli, err := a.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	rc, err := cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
		Follow:     follow,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		return nil, fmt.Errorf("failed to stream logs for %s: %w", name, err)
	}
	return rc, nil
}

// Ping probes the daemon through the managed client.
func (a *DockerAdapter) Ping(ctx context.Context) error {
	return a.clients.Ping(ctx)
}

