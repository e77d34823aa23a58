package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcage/devcage/internal/models"
)

func envelope(data interface{}) models.Response {
	return models.Response{Success: true, Data: data}
}

func errorEnvelope(code, message string) models.Response {
	return models.Response{Success: false, Error: &models.APIError{Code: code, Message: message}}
}

func serve(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithBaseURL(""))
	assert.Error(t, err)

	_, err = New(WithTimeout(-time.Second))
	assert.Error(t, err)

	_, err = New(WithUserAgent(""))
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, "devcage-client/1.0", r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, envelope(models.HealthStatus{Status: "ok", RuntimeOK: true, Version: "1.2.3"}))
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
}

func TestStartContainer(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/containers/dev-env/start", r.URL.Path)
		writeJSON(w, http.StatusAccepted, envelope(models.OperationAccepted{
			OperationID: "op-1",
			Kind:        models.OperationStart,
			Targets:     []string{"dev-env"},
		}))
	})

	op, err := c.StartContainer(context.Background(), "dev-env")
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.OperationID)
	assert.Equal(t, models.OperationStart, op.Kind)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorEnvelope(models.CodeNotFound, `unknown container "ghost"`))
	})

	_, err := c.StartContainer(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusConflict, ErrConflict},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusInternalServerError, ErrServerError},
	}
	for _, tc := range cases {
		c := serve(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, errorEnvelope("X", "nope"))
		})
		_, err := c.GetOperation(context.Background(), "op-1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestConnectionFailure(t *testing.T) {
	c, err := New(WithBaseURL("http://127.0.0.1:1"), WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestCustomHeaderSent(t *testing.T) {
	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("X-Team")
		writeJSON(w, http.StatusOK, envelope(models.HealthStatus{Status: "ok"}))
	}))
	t.Cleanup(server.Close)

	c, err := New(WithBaseURL(server.URL), WithHeader("X-Team", "platform"))
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "platform", <-seen)
}

func TestGetOperationEscapesID(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/operations/op%2F1", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, envelope(models.OperationSnapshot{ID: "op/1"}))
	})

	snap, err := c.GetOperation(context.Background(), "op/1")
	require.NoError(t, err)
	assert.Equal(t, "op/1", snap.ID)
}

func TestListContainers(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/containers", r.URL.Path)
		writeJSON(w, http.StatusOK, envelope([]models.ContainerDetail{
			{Spec: models.ContainerSpec{Name: "dev-env", Image: "alpine:3.20"}},
		}))
	})

	details, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "dev-env", details[0].Spec.Name)
}

func TestWaitForOperationPollsUntilDone(t *testing.T) {
	var polls int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		snap := models.OperationSnapshot{ID: "op-1", Status: models.OperationStatusRunning}
		if n >= 3 {
			snap.Status = models.OperationStatusCompleted
		}
		writeJSON(w, http.StatusOK, envelope(snap))
	})

	snap, err := c.WaitForOperation(context.Background(), "op-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusCompleted, snap.Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestWaitForOperationContextExpiry(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope(models.OperationSnapshot{
			ID: "op-1", Status: models.OperationStatusRunning,
		}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	snap, err := c.WaitForOperation(ctx, "op-1", 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.OperationStatusRunning, snap.Status)
}
