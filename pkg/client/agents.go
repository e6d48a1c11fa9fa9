package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/offlineai/localchat/core/types"
)

// ListAgents returns the agents in display order
func (c *Client) ListAgents(ctx context.Context) ([]types.Agent, error) {
	var agents []types.Agent
	if err := c.decode(ctx, http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// CreateAgent creates an agent. The server derives the id when it is empty.
func (c *Client) CreateAgent(ctx context.Context, agent types.Agent) (types.Agent, error) {
	var created types.Agent
	err := c.decode(ctx, http.MethodPost, "/agents", agent, &created)
	return created, err
}

// UpdateAgent applies patch to the agent with the given id
func (c *Client) UpdateAgent(ctx context.Context, id string, patch types.AgentPatch) (types.Agent, error) {
	var updated types.Agent
	err := c.decode(ctx, http.MethodPut, "/agents/"+url.PathEscape(id), patch, &updated)
	return updated, err
}

// DeleteAgent removes an agent and its saved chats
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	var response map[string]string
	if err := c.decode(ctx, http.MethodDelete, "/agents/"+url.PathEscape(id), nil, &response); err != nil {
		return err
	}
	if response["status"] != "deleted" {
		return fmt.Errorf("failed to delete agent: %v", response)
	}
	return nil
}

// ReorderAgents sets the display order. ids must list every agent once.
func (c *Client) ReorderAgents(ctx context.Context, ids []string) error {
	var response map[string]string
	if err := c.decode(ctx, http.MethodPost, "/agents/reorder", map[string][]string{"order": ids}, &response); err != nil {
		return err
	}
	if response["status"] != "success" {
		return fmt.Errorf("failed to reorder agents: %v", response)
	}
	return nil
}
