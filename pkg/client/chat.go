package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/offlineai/localchat/core/types"
)

// StreamChat posts req to /stream_chat and calls fn for every event, in
// order. Cancelling ctx closes the connection, which stops the model on
// the server side. An error returned by fn stops the stream and is
// returned.
func (c *Client) StreamChat(ctx context.Context, req types.ChatRequest, fn func(types.StreamEvent) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("error marshaling request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/stream_chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(c.StreamClient, httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if err := readEvents(resp.Body, fn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// readEvents parses `data:` frames. Lines of other fields are ignored.
func readEvents(r io.Reader, fn func(types.StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var event types.StreamEvent
			if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
				return fmt.Errorf("invalid stream event %q: %w", data.String(), err)
			}
			data.Reset()
			if err := fn(event); err != nil {
				return err
			}
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
	}
	return scanner.Err()
}

// UploadPDF converts a PDF on the server and returns one data URI per
// page.
func (c *Client) UploadPDF(ctx context.Context, filename string, pdf io.Reader) ([]string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("pdf_file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return nil, fmt.Errorf("error reading pdf: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload_pdf", &buf)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(c.HTTPClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return response.Images, nil
}
