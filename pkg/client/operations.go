package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/devcage/devcage/internal/models"
)

// ListOperations returns a snapshot of every tracked operation.
func (c *Client) ListOperations(ctx context.Context) ([]models.OperationSnapshot, error) {
	var snaps []models.OperationSnapshot
	err := c.do(ctx, http.MethodGet, APIBasePath+APIPathOperations, nil, &snaps)
	return snaps, err
}

// GetOperation returns the current snapshot of one operation.
func (c *Client) GetOperation(ctx context.Context, id string) (models.OperationSnapshot, error) {
	var snap models.OperationSnapshot
	err := c.do(ctx, http.MethodGet, operationPath(id), nil, &snap)
	return snap, err
}

// CancelOperation requests best-effort cancellation and returns the
// snapshot as of the request.
func (c *Client) CancelOperation(ctx context.Context, id string) (models.OperationSnapshot, error) {
	var snap models.OperationSnapshot
	err := c.do(ctx, http.MethodDelete, operationPath(id), nil, &snap)
	return snap, err
}

// StopAll stops every managed container.
func (c *Client) StopAll(ctx context.Context) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, APIBasePath+APIPathOperations+"/stop-all", nil, &op)
	return op, err
}

// RestartAll restarts every managed container.
func (c *Client) RestartAll(ctx context.Context) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, APIBasePath+APIPathOperations+"/restart-all", nil, &op)
	return op, err
}

// CleanupAll removes every managed container.
func (c *Client) CleanupAll(ctx context.Context) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, APIBasePath+APIPathOperations+"/cleanup-all", nil, &op)
	return op, err
}

// WaitForOperation polls until the operation settles or ctx expires.
func (c *Client) WaitForOperation(ctx context.Context, id string, interval time.Duration) (models.OperationSnapshot, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := c.GetOperation(ctx, id)
		if err != nil {
			return models.OperationSnapshot{}, err
		}
		if snap.Done() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("operation %s still %s: %w", id, snap.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func operationPath(id string) string {
	return APIBasePath + APIPathOperations + "/" + url.PathEscape(id)
}
