// Package client is a Go client for the localchat HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/offlineai/localchat/core/types"
)

// Client represents a client for the localchat API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// StreamClient is used for /stream_chat. It has no timeout: a reply
	// lasts as long as the model keeps generating.
	StreamClient *http.Client
}

// NewClient creates a new localchat client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = time.Second * 30
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		StreamClient: &http.Client{},
	}
}

// SetTimeout sets the HTTP client timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// doRequest performs an HTTP request and returns the response
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(c.HTTPClient, req)
}

func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errorData, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, errorData)
	}

	return resp, nil
}

// decode performs the request and decodes the JSON answer into out.
func (c *Client) decode(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// apiError maps an error answer back to the error kinds of core/types, so
// that callers can use errors.Is across the wire.
func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch status {
	case http.StatusBadRequest:
		return types.NewValidationError("%s", msg)
	case http.StatusForbidden:
		return types.NewPermissionError("%s", msg)
	case http.StatusNotFound:
		return types.NewNotFoundError("%s", msg)
	}
	return fmt.Errorf("api error (status %d): %s", status, msg)
}
