package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI streams chats through an OpenAI compatible endpoint, such as the
// /v1 API of a local Ollama. The protocol has no place for num_ctx, top_k
// or repeat_penalty, so those options are not sent.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if apiKey == "" {
		apiKey = "sk-xxx"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = &http.Client{}

	return &OpenAI{client: openai.NewClientWithConfig(config)}
}

func (o *OpenAI) Name() string { return "OpenAI-compatible" }

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	return models, nil
}

func (o *OpenAI) Chat(ctx context.Context, req Request, fn func(string) error) (Usage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Stream:           true,
		Temperature:      float32(req.Options.Temperature),
		TopP:             float32(req.Options.TopP),
		FrequencyPenalty: float32(req.Options.FrequencyPenalty),
		StreamOptions:    &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return Usage{}, err
	}
	defer stream.Close()

	var usage Usage
	w := &thinkWrapper{fn: fn}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, w.close()
		}
		if err != nil {
			return usage, err
		}

		if len(resp.Choices) > 0 {
			delta := resp.Choices[0].Delta
			if err := w.reasoning(delta.ReasoningContent); err != nil {
				return usage, err
			}
			if err := w.content(delta.Content); err != nil {
				return usage, err
			}
		}
		if resp.Usage != nil {
			usage = Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
		}
	}
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: DataURI(img)},
		})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: m.Content,
	})
	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

// DataURI rebuilds a data URI from a base64 image payload, sniffing the
// content type from the decoded header bytes.
func DataURI(payload string) string {
	return fmt.Sprintf("data:%s;base64,%s", sniffImageType(payload), payload)
}

func sniffImageType(payload string) string {
	head := payload
	if len(head) > 88 {
		head = head[:88]
	}
	data, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return "image/jpeg"
	}
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
