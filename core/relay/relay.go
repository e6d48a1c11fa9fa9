// Package relay forwards chat requests to the inference backend and turns
// its stream into chunk, warning and error events.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/offlineai/localchat/core/backend"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

// ModelSource provides the model used when a request names none.
type ModelSource interface {
	Active() string
}

type Relay struct {
	backend backend.Backend
	models  ModelSource
	options backend.Options
}

func New(b backend.Backend, models ModelSource, options backend.Options) *Relay {
	return &Relay{
		backend: b,
		models:  models,
		options: options,
	}
}

// Flatten turns client messages into backend messages: images first, in
// order, then every text part joined by a single space.
func Flatten(messages []types.WireMessage) []backend.Message {
	out := make([]backend.Message, 0, len(messages))
	for _, m := range messages {
		msg := backend.Message{Role: string(m.Role)}
		if m.Content.Parts == nil {
			msg.Content = m.Content.Text
			out = append(out, msg)
			continue
		}

		var texts []string
		for _, p := range m.Content.Parts {
			switch p.Type {
			case types.PartImageURL:
				if p.ImageURL == nil {
					continue
				}
				url := p.ImageURL.URL
				msg.Images = append(msg.Images, url[strings.Index(url, ",")+1:])
			case types.PartText:
				texts = append(texts, p.Text)
			}
		}
		msg.Content = strings.Join(texts, " ")
		out = append(out, msg)
	}
	return out
}

// NeedsWarning reports whether total tokens reached 90% of the context
// window.
func NeedsWarning(total, contextWindow int) bool {
	return 10*total >= 9*contextWindow
}

func WarningMessage(total, contextWindow int) string {
	return fmt.Sprintf("Chat history is now %d tokens. The maximum is %d. The AI will lose track of the conversation. Please start a new chat.", total, contextWindow)
}

// Stream runs one chat turn. Every fragment is passed to emit as a chunk
// event as soon as it arrives. Backend failures become a single error
// event and are not returned. The returned error is only set when emit
// fails, which means the client went away; the backend request is
// cancelled in that case.
func (r *Relay) Stream(ctx context.Context, req types.ChatRequest, emit func(types.StreamEvent) error) error {
	if err := req.Validate(); err != nil {
		return err
	}

	model := req.Model
	if model == "" && r.models != nil {
		model = r.models.Active()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var emitErr error
	usage, err := r.backend.Chat(ctx, backend.Request{
		Model:    model,
		Messages: Flatten(req.Messages),
		Options:  r.options,
	}, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if err := emit(types.ChunkEvent(fragment)); err != nil {
			emitErr = err
			cancel()
			return err
		}
		return nil
	})

	switch {
	case emitErr != nil:
		xlog.Debug("Client went away, backend request cancelled", "model", model, "error", emitErr)
		return emitErr
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		xlog.Debug("Chat stream cancelled", "model", model)
		return nil
	case err != nil:
		berr := types.NewBackendError(r.backend.Name(), err)
		xlog.Error("Chat stream failed", "model", model, "error", berr)
		return emit(types.ErrorEvent(berr.Error()))
	}

	total := usage.Total()
	xlog.Debug("Chat stream finished", "model", model, "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
	if NeedsWarning(total, r.options.NumCtx) {
		return emit(types.WarningEvent(WarningMessage(total, r.options.NumCtx)))
	}
	return nil
}
