package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama streams chats through the native Ollama API, which is the only
// one that honours num_ctx, top_k and repeat_penalty.
type Ollama struct {
	client *api.Client
}

// NewOllama returns a client for the server at base. The HTTP client has
// no timeout: a turn lasts as long as the model keeps generating.
func NewOllama(base *url.URL) *Ollama {
	return &Ollama{
		client: api.NewClient(base, &http.Client{}),
	}
}

func (o *Ollama) Name() string { return "Ollama" }

func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	resp, err := o.client.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (o *Ollama) Chat(ctx context.Context, req Request, fn func(string) error) (Usage, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := api.Message{Role: m.Role}
		for _, img := range m.Images {
			data, err := base64.StdEncoding.DecodeString(img)
			if err != nil {
				return Usage{}, fmt.Errorf("invalid image payload: %w", err)
			}
			msg.Images = append(msg.Images, api.ImageData(data))
		}
		msg.Content = m.Content
		messages = append(messages, msg)
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"num_ctx":           req.Options.NumCtx,
			"temperature":       req.Options.Temperature,
			"top_k":             req.Options.TopK,
			"top_p":             req.Options.TopP,
			"frequency_penalty": req.Options.FrequencyPenalty,
			"repeat_penalty":    req.Options.RepeatPenalty,
		},
	}

	var usage Usage
	w := &thinkWrapper{fn: fn}
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if err := w.reasoning(resp.Message.Thinking); err != nil {
			return err
		}
		if err := w.content(resp.Message.Content); err != nil {
			return err
		}
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
			}
			return w.close()
		}
		return nil
	})
	return usage, err
}
