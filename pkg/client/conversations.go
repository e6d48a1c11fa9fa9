package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/offlineai/localchat/core/types"
)

// Conversations returns the saved chats of every agent. The map is empty
// when the server does not keep history.
func (c *Client) Conversations(ctx context.Context) (map[string][]types.ChatRecord, error) {
	all := map[string][]types.ChatRecord{}
	err := c.decode(ctx, http.MethodGet, "/conversations", nil, &all)
	return all, err
}

func (c *Client) SaveChat(ctx context.Context, agentID string, record types.ChatRecord) (types.ChatRecord, error) {
	var saved types.ChatRecord
	err := c.decode(ctx, http.MethodPost, "/conversations/"+url.PathEscape(agentID), record, &saved)
	return saved, err
}

func (c *Client) UpdateChat(ctx context.Context, agentID, chatID string, history []types.ChatMessage) (types.ChatRecord, error) {
	var saved types.ChatRecord
	err := c.decode(ctx, http.MethodPut, chatPath(agentID, chatID), map[string][]types.ChatMessage{"history": history}, &saved)
	return saved, err
}

func (c *Client) DeleteChat(ctx context.Context, agentID, chatID string) error {
	return c.decode(ctx, http.MethodDelete, chatPath(agentID, chatID), nil, nil)
}

// ExportChat returns the chat rendered as an HTML page
func (c *Client) ExportChat(ctx context.Context, agentID, chatID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, chatPath(agentID, chatID)+"/export", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

func chatPath(agentID, chatID string) string {
	return "/conversations/" + url.PathEscape(agentID) + "/" + url.PathEscape(chatID)
}
