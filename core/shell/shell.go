// Package shell holds the per-tab chat state of a client: optimistic user
// messages, the live demultiplexed reply, cancellation and persistence.
// The terminal client drives it directly; the browser UI mirrors it.
package shell

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/offlineai/localchat/core/demux"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

const (
	// NewChatID marks a tab whose chat has not been persisted yet.
	NewChatID    = "new"
	CancelNotice = "\n\n*Stream stopped by user.*"
	errorNotice  = "\n\n**Error:** "
)

// ErrBusy is returned by Submit while a reply that blocks it is streaming.
var ErrBusy = errors.New("a reply is still streaming")

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateStreaming  State = "streaming"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// Policy decides which streaming tabs block a submission.
type Policy string

const (
	// PolicyGlobal blocks every tab while any tab streams.
	PolicyGlobal Policy = "global"
	// PolicyPerTab only blocks the streaming tab.
	PolicyPerTab Policy = "per-tab"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyGlobal:
		return PolicyGlobal, nil
	case PolicyPerTab:
		return PolicyPerTab, nil
	}
	return "", types.NewValidationError("unknown typing policy %q", s)
}

// Streamer sends one chat turn and calls fn for every event received.
type Streamer interface {
	StreamChat(ctx context.Context, req types.ChatRequest, fn func(types.StreamEvent) error) error
}

// Persister stores finished turns.
type Persister interface {
	SaveChat(ctx context.Context, agentID string, record types.ChatRecord) (types.ChatRecord, error)
	UpdateChat(ctx context.Context, agentID, chatID string, history []types.ChatMessage) (types.ChatRecord, error)
}

// Renderer is called with a fresh view after every change of a tab.
type Renderer interface {
	Render(agentID string, view View)
}

// Observer receives out of band notices.
type Observer interface {
	Warning(agentID, message string)
}

// Live is the reply being streamed.
type Live struct {
	Answer     string
	Thinking   string
	InThinking bool
}

// View is a snapshot of a tab.
type View struct {
	Agent       types.Agent
	ChatID      string
	History     []types.ChatMessage
	State       State
	ShowHistory bool
	Live        *Live
}

type tab struct {
	agent       types.Agent
	chatID      string
	history     []types.ChatMessage
	state       State
	showHistory bool
	live        *Live
	cancel      context.CancelFunc
}

func (t *tab) view() View {
	v := View{
		Agent:       t.agent,
		ChatID:      t.chatID,
		History:     slices.Clone(t.history),
		State:       t.state,
		ShowHistory: t.showHistory,
	}
	if t.live != nil {
		live := *t.live
		v.Live = &live
	}
	return v
}

func (t *tab) busy() bool {
	return t.state == StateSubmitting || t.state == StateStreaming
}

type Shell struct {
	mu        sync.Mutex
	policy    Policy
	tabs      map[string]*tab
	streamer  Streamer
	persister Persister
	renderer  Renderer
	observer  Observer
}

type Option func(*Shell)

func WithPolicy(p Policy) Option {
	return func(s *Shell) {
		s.policy = p
	}
}

// WithPersister saves every finished turn. Without it chats only live in
// memory.
func WithPersister(p Persister) Option {
	return func(s *Shell) {
		s.persister = p
	}
}

func WithRenderer(r Renderer) Option {
	return func(s *Shell) {
		s.renderer = r
	}
}

func WithObserver(o Observer) Option {
	return func(s *Shell) {
		s.observer = o
	}
}

func New(streamer Streamer, opts ...Option) *Shell {
	s := &Shell{
		policy:   PolicyGlobal,
		tabs:     map[string]*tab{},
		streamer: streamer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens a tab for agent, or returns the existing one.
func (s *Shell) Open(agent types.Agent) View {
	s.mu.Lock()
	t, ok := s.tabs[agent.ID]
	if !ok {
		t = &tab{agent: agent, chatID: NewChatID, state: StateIdle}
		s.tabs[agent.ID] = t
	}
	v := t.view()
	s.mu.Unlock()

	s.render(agent.ID, v)
	return v
}

// Resume opens a tab on a saved chat.
func (s *Shell) Resume(agent types.Agent, record types.ChatRecord) (View, error) {
	s.mu.Lock()
	if t, ok := s.tabs[agent.ID]; ok && t.busy() {
		s.mu.Unlock()
		return View{}, ErrBusy
	}
	t := &tab{
		agent:   agent,
		chatID:  record.ID,
		history: slices.Clone(record.History),
		state:   StateIdle,
	}
	s.tabs[agent.ID] = t
	v := t.view()
	s.mu.Unlock()

	s.render(agent.ID, v)
	return v, nil
}

// Close drops the tab, cancelling its reply if one is streaming.
func (s *Shell) Close(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tabs[agentID]; ok {
		if t.cancel != nil {
			t.cancel()
		}
		delete(s.tabs, agentID)
	}
}

func (s *Shell) Tab(agentID string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tabs[agentID]
	if !ok {
		return View{}, false
	}
	return t.view(), true
}

func (s *Shell) ToggleHistory(agentID string) (bool, error) {
	s.mu.Lock()
	t, ok := s.tabs[agentID]
	if !ok {
		s.mu.Unlock()
		return false, types.NewNotFoundError("no tab for agent %s", agentID)
	}
	t.showHistory = !t.showHistory
	v := t.view()
	s.mu.Unlock()

	s.render(agentID, v)
	return v.ShowHistory, nil
}

// Cancel stops the reply streaming in the tab. It reports whether there
// was one.
func (s *Shell) Cancel(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tabs[agentID]
	if !ok || !t.busy() || t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	return true
}

// Busy reports whether a submission to the tab would be refused.
func (s *Shell) Busy(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked(agentID)
}

func (s *Shell) blocked(agentID string) bool {
	if s.policy == PolicyPerTab {
		t, ok := s.tabs[agentID]
		return ok && t.busy()
	}
	for _, t := range s.tabs {
		if t.busy() {
			return true
		}
	}
	return false
}

// Submit sends text and images as a user message and blocks until the
// reply is complete, failed or cancelled. It returns the assistant message
// appended to the tab.
func (s *Shell) Submit(ctx context.Context, agentID, text string, images []string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return types.ChatMessage{}, types.NewValidationError("message is empty")
	}

	s.mu.Lock()
	t, ok := s.tabs[agentID]
	if !ok {
		s.mu.Unlock()
		return types.ChatMessage{}, types.NewNotFoundError("no tab for agent %s", agentID)
	}
	if s.blocked(agentID) {
		s.mu.Unlock()
		return types.ChatMessage{}, ErrBusy
	}

	t.history = append(t.history, types.ChatMessage{
		Role:  types.RoleUser,
		Parts: []types.Part{{Text: text, Images: images}},
	})
	t.state = StateSubmitting
	t.live = &Live{}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	req := buildRequest(t.agent, t.history)
	v := t.view()
	s.mu.Unlock()
	defer cancel()

	s.render(agentID, v)

	d := demux.New()
	var streamErr string
	err := s.streamer.StreamChat(ctx, req, func(e types.StreamEvent) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case e.Chunk != "":
			d.Feed(e.Chunk)
			s.update(agentID, t, d, StateStreaming)
		case e.Warning != "":
			if s.observer != nil {
				s.observer.Warning(agentID, e.Warning)
			}
		case e.Error != "":
			streamErr = e.Error
		}
		return nil
	})

	// From here on the turn is over and Cancel has nothing to stop. Only a
	// stream that ended because of the cancel counts as cancelled.
	s.mu.Lock()
	t.cancel = nil
	s.mu.Unlock()
	cancelled := errors.Is(err, context.Canceled)

	if err != nil && streamErr == "" && !cancelled {
		streamErr = err.Error()
	}
	d.Close()

	reply := d.Answer()
	final := StateIdle
	switch {
	case cancelled:
		reply += CancelNotice
		final = StateCancelled
	case streamErr != "":
		reply += errorNotice + streamErr
		final = StateError
		xlog.Warn("Chat turn failed", "agent", agentID, "error", streamErr)
	}

	msg := types.ChatMessage{
		Role:  types.RoleAssistant,
		Parts: []types.Part{{Text: reply, Thinking: d.Committed()}},
	}

	s.mu.Lock()
	t.history = append(t.history, msg)
	t.state = final
	t.live = nil
	v = t.view()
	s.mu.Unlock()
	s.render(agentID, v)

	s.mu.Lock()
	t.state = StateIdle
	v = t.view()
	s.mu.Unlock()
	s.render(agentID, v)

	s.persist(agentID, t, v)
	return msg, nil
}

// update publishes the live reply unless the turn has been cancelled.
func (s *Shell) update(agentID string, t *tab, d *demux.Demuxer, state State) {
	s.mu.Lock()
	if t.cancel == nil {
		s.mu.Unlock()
		return
	}
	t.state = state
	t.live = &Live{
		Answer:     d.Answer(),
		Thinking:   d.Thinking(),
		InThinking: d.InThinking(),
	}
	v := t.view()
	s.mu.Unlock()

	s.render(agentID, v)
}

func (s *Shell) persist(agentID string, t *tab, v View) {
	if s.persister == nil {
		return
	}
	ctx := context.Background()

	if v.ChatID == NewChatID || v.ChatID == "" {
		record, err := s.persister.SaveChat(ctx, agentID, types.ChatRecord{History: v.History})
		if err != nil {
			xlog.Error("Failed to save chat", "agent", agentID, "error", err)
			return
		}
		s.mu.Lock()
		t.chatID = record.ID
		s.mu.Unlock()
		return
	}

	if _, err := s.persister.UpdateChat(ctx, agentID, v.ChatID, v.History); err != nil {
		xlog.Error("Failed to update chat", "agent", agentID, "chat", v.ChatID, "error", err)
	}
}

func (s *Shell) render(agentID string, v View) {
	if s.renderer != nil {
		s.renderer.Render(agentID, v)
	}
}

// buildRequest prepends the persona and, for single-turn agents, only
// sends the latest message.
func buildRequest(agent types.Agent, history []types.ChatMessage) types.ChatRequest {
	if agent.Type == types.AgentSingleTurn && len(history) > 1 {
		history = history[len(history)-1:]
	}

	messages := make([]types.WireMessage, 0, len(history)+1)
	messages = append(messages, types.WireMessage{
		Role:    types.RoleSystem,
		Content: types.Content{Text: agent.Persona},
	})
	for _, m := range history {
		messages = append(messages, m.Wire())
	}
	return types.ChatRequest{Messages: messages}
}
