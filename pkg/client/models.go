package client

import (
	"context"
	"net/http"
)

type ModelList struct {
	Models       []string `json:"models"`
	CurrentModel string   `json:"current_model"`
}

func (c *Client) Models(ctx context.Context) (ModelList, error) {
	var list ModelList
	err := c.decode(ctx, http.MethodGet, "/models", nil, &list)
	return list, err
}

// RefreshModels asks the server to list the installed models again
func (c *Client) RefreshModels(ctx context.Context) (ModelList, error) {
	var list ModelList
	err := c.decode(ctx, http.MethodPost, "/models/refresh", nil, &list)
	return list, err
}

// ChangeModel switches the active model and returns it
func (c *Client) ChangeModel(ctx context.Context, model string) (string, error) {
	var response struct {
		Status       string `json:"status"`
		CurrentModel string `json:"current_model"`
	}
	if err := c.decode(ctx, http.MethodPost, "/change_model", map[string]string{"model": model}, &response); err != nil {
		return "", err
	}
	return response.CurrentModel, nil
}
