// Package sse writes server-sent events over fasthttp body stream writers.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Event is one server-sent event. Name is optional.
type Event struct {
	Name string
	Data string
}

// NewEvent marshals v as the event data.
func NewEvent(name string, v any) (Event, error) {
	data, err := marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s event: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// marshal encodes v as one line of JSON. Model output is full of markup,
// so HTML characters are left as they are.
func marshal(v any) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func (e Event) String() string {
	sb := strings.Builder{}
	if e.Name != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", e.Name))
	}
	sb.WriteString(fmt.Sprintf("data: %s\n\n", e.Data))
	return sb.String()
}

func setHeaders(c *fiber.Ctx) {
	ctx := c.Context()
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")
}

// Writer sends events on one response and flushes after each of them.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes v as a `data:` frame. An error means the client is gone.
func (w *Writer) Send(v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return w.SendEvent(Event{Data: data})
}

func (w *Writer) SendEvent(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.WriteString(e.String()); err != nil {
		return err
	}
	return w.w.Flush()
}

// Stream answers the request with an event stream and runs fn from the body
// stream writer, after the handler has returned. The context given to fn
// is cancelled when the server shuts down or fn returns.
func Stream(c *fiber.Ctx, fn func(ctx context.Context, w *Writer)) {
	setHeaders(c)
	reqCtx := c.Context()

	reqCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(bw *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			select {
			case <-reqCtx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		fn(ctx, NewWriter(bw))
	}))
}
