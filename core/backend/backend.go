// Package backend talks to the local inference server.
package backend

import (
	"context"
)

// Message is a flattened chat message as the inference server expects it.
// Images hold base64 payloads without the data URI prefix.
type Message struct {
	Role    string   `json:"role"`
	Images  []string `json:"images,omitempty"`
	Content string   `json:"content"`
}

// Options are the model parameters sent with every chat request.
type Options struct {
	NumCtx           int
	Temperature      float64
	TopK             int
	TopP             float64
	FrequencyPenalty float64
	RepeatPenalty    float64
}

// DefaultOptions returns the sampling parameters used for every turn.
func DefaultOptions() Options {
	return Options{
		NumCtx:           16000,
		Temperature:      0.4,
		TopK:             60,
		TopP:             0.95,
		FrequencyPenalty: 1.0,
		RepeatPenalty:    1.0,
	}
}

type Request struct {
	Model    string
	Messages []Message
	Options  Options
}

// Usage is the token accounting reported at the end of a stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// ModelLister lists the models installed locally.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Backend is a streaming chat server. Chat calls fn once per content
// fragment, in order, and returns the usage reported when the stream ends.
// Reasoning delivered on a separate channel is passed to fn wrapped in
// literal <think> and </think> markers.
type Backend interface {
	ModelLister
	Name() string
	Chat(ctx context.Context, req Request, fn func(fragment string) error) (Usage, error)
}

const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// thinkWrapper turns a separate reasoning channel into inline markers.
type thinkWrapper struct {
	fn       func(string) error
	thinking bool
}

func (w *thinkWrapper) reasoning(s string) error {
	if s == "" {
		return nil
	}
	if !w.thinking {
		w.thinking = true
		if err := w.fn(ThinkOpen); err != nil {
			return err
		}
	}
	return w.fn(s)
}

func (w *thinkWrapper) content(s string) error {
	if s == "" {
		return nil
	}
	if err := w.close(); err != nil {
		return err
	}
	return w.fn(s)
}

func (w *thinkWrapper) close() error {
	if !w.thinking {
		return nil
	}
	w.thinking = false
	return w.fn(ThinkClose)
}
