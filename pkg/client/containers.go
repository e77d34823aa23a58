package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/devcage/devcage/internal/models"
)

// ListContainers returns the declared containers with their live state.
func (c *Client) ListContainers(ctx context.Context) ([]models.ContainerDetail, error) {
	var details []models.ContainerDetail
	err := c.do(ctx, http.MethodGet, APIBasePath+APIPathContainers, nil, &details)
	return details, err
}

// GetContainer returns one declared container with its live state.
func (c *Client) GetContainer(ctx context.Context, name string) (models.ContainerDetail, error) {
	var detail models.ContainerDetail
	err := c.do(ctx, http.MethodGet, containerPath(name, ""), nil, &detail)
	return detail, err
}

// StartContainer submits an asynchronous start and returns the accepted
// operation.
func (c *Client) StartContainer(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, containerPath(name, "start"), nil, &op)
	return op, err
}

// StopContainer submits an asynchronous stop.
func (c *Client) StopContainer(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, containerPath(name, "stop"), nil, &op)
	return op, err
}

// RestartContainer submits an asynchronous restart.
func (c *Client) RestartContainer(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, containerPath(name, "restart"), nil, &op)
	return op, err
}

// CleanupContainer submits an asynchronous stop-and-remove.
func (c *Client) CleanupContainer(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, containerPath(name, "cleanup"), nil, &op)
	return op, err
}

// ContainerLogs fetches a one-shot log tail as plain text.
func (c *Client) ContainerLogs(ctx context.Context, name, tail string) (string, error) {
	path := containerPath(name, "logs")
	if tail != "" {
		path += "?tail=" + url.QueryEscape(tail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError(resp.StatusCode, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func containerPath(name, action string) string {
	path := APIBasePath + APIPathContainers + "/" + url.PathEscape(name)
	if action != "" {
		path += "/" + action
	}
	return path
}
