package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/devcage/devcage/internal/models"
)

// ListGroups returns every declared group with live member state.
func (c *Client) ListGroups(ctx context.Context) ([]models.GroupStatus, error) {
	var groups []models.GroupStatus
	err := c.do(ctx, http.MethodGet, APIBasePath+APIPathGroups, nil, &groups)
	return groups, err
}

// GetGroup returns one group's live status.
func (c *Client) GetGroup(ctx context.Context, name string) (models.GroupStatus, error) {
	var status models.GroupStatus
	err := c.do(ctx, http.MethodGet, groupPath(name, ""), nil, &status)
	return status, err
}

// StartGroup submits an asynchronous ordered group start.
func (c *Client) StartGroup(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, groupPath(name, "start"), nil, &op)
	return op, err
}

// StopGroup submits an asynchronous group stop.
func (c *Client) StopGroup(ctx context.Context, name string) (models.OperationAccepted, error) {
	var op models.OperationAccepted
	err := c.do(ctx, http.MethodPost, groupPath(name, "stop"), nil, &op)
	return op, err
}

func groupPath(name, action string) string {
	path := APIBasePath + APIPathGroups + "/" + url.PathEscape(name)
	if action != "" {
		path += "/" + action
	}
	return path
}
