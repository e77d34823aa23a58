// Package runtime is the thin call surface over the container runtime:
// create/start, stop, remove, inspect, exec, list-by-label and log
// streaming. The orchestrator depends on it and never re-implements it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/models"
)

// Client errors.
var (
	// ErrClientClosed indicates the client manager has been closed
	ErrClientClosed = errors.New("docker client manager has been closed")
)

// ClientConfig configures the managed Docker client.
type ClientConfig struct {
	// Host is the Docker daemon socket to connect to
	Host string

	// APIVersion pins the Docker API version; empty uses negotiation
	APIVersion string

	// PingTimeout bounds daemon reachability probes
	PingTimeout time.Duration

	// RetryCount is the number of retries for client creation
	RetryCount int

	// RetryDelay is the delay between creation retries
	RetryDelay time.Duration

	// Logger is the logger to use
	Logger *logrus.Logger
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:        "unix:///var/run/docker.sock",
		PingTimeout: 5 * time.Second,
		RetryCount:  3,
		RetryDelay:  500 * time.Millisecond,
	}
}

// ClientManager lazily creates and health-checks a shared Docker client.
// The handle it returns may be shared read-only across operation workers.
type ClientManager struct {
	config ClientConfig
	logger *logrus.Logger

	mu     sync.RWMutex
	client *client.Client
	closed bool
}

// NewClientManager creates a client manager. The first connection attempt is
// deferred until a client is requested, so a daemon that is down at startup
// does not prevent the server from coming up.
func NewClientManager(config ClientConfig) *ClientManager {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = DefaultClientConfig().PingTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultClientConfig().RetryDelay
	}
	return &ClientManager{config: config, logger: logger}
}

// Get returns a healthy Docker client, creating or recreating one if needed.
func (m *ClientManager) Get(ctx context.Context) (*client.Client, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClientClosed
	}
	if cli := m.client; cli != nil {
		m.mu.RUnlock()
		pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
		defer cancel()
		if _, err := cli.Ping(pingCtx); err == nil {
			return cli, nil
		}
		m.logger.Warn("Existing Docker client failed ping, recreating")
	} else {
		m.mu.RUnlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClientClosed
	}
	if m.client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
		_, err := m.client.Ping(pingCtx)
		cancel()
		if err == nil {
			return m.client, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.config.RetryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cli, err := m.createClient(ctx)
		if err == nil {
			m.client = cli
			m.logger.WithField("attempt", attempt+1).Debug("Docker client created")
			return cli, nil
		}
		lastErr = err
		m.logger.WithError(err).WithField("attempt", attempt+1).Warn("Failed to create Docker client")

		if attempt < m.config.RetryCount {
			select {
			case <-time.After(m.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, lastErr)
}

func (m *ClientManager) createClient(ctx context.Context) (*client.Client, error) {
	opts := []client.Opt{}
	if m.config.Host != "" {
		opts = append(opts, client.WithHost(m.config.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	if m.config.APIVersion != "" {
		opts = append(opts, client.WithVersion(m.config.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to ping docker daemon: %w", err)
	}

	return cli, nil
}

// Ping probes daemon reachability through the managed client.
func (m *ClientManager) Ping(ctx context.Context) error {
	cli, err := m.Get(ctx)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, err)
	}
	return nil
}

// Close closes the managed client and marks the manager closed.
func (m *ClientManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.client != nil {
		err := m.client.Close()
		m.client = nil
		if err != nil {
			return fmt.Errorf("failed to close docker client: %w", err)
		}
	}
	return nil
}
