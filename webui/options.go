package webui

import (
	"github.com/offlineai/localchat/core/agents"
	"github.com/offlineai/localchat/core/conversations"
	"github.com/offlineai/localchat/core/models"
	"github.com/offlineai/localchat/core/pdf"
	"github.com/offlineai/localchat/core/relay"
	"github.com/offlineai/localchat/core/shell"
	"github.com/offlineai/localchat/core/sse"
)

// DefaultBodyLimit caps request bodies, PDF uploads included.
const DefaultBodyLimit = 20 * 1024 * 1024

type Config struct {
	Title          string
	BodyLimit      int
	HistoryEnabled bool
	TypingPolicy   shell.Policy

	Agents        *agents.Store
	Models        *models.Registry
	Conversations conversations.Store
	Relay         *relay.Relay
	PDF           *pdf.Converter
	Hub           *sse.Hub

	// OnReady is called with the base URL once the server accepts
	// connections.
	OnReady func(url string)
}

type Option func(*Config)

func WithTitle(title string) Option {
	return func(c *Config) {
		c.Title = title
	}
}

func WithBodyLimit(limit int) Option {
	return func(c *Config) {
		c.BodyLimit = limit
	}
}

// WithHistory turns on persisted chat history in the browser UI.
func WithHistory(enabled bool) Option {
	return func(c *Config) {
		c.HistoryEnabled = enabled
	}
}

func WithTypingPolicy(p shell.Policy) Option {
	return func(c *Config) {
		c.TypingPolicy = p
	}
}

func WithAgents(s *agents.Store) Option {
	return func(c *Config) {
		c.Agents = s
	}
}

func WithModels(r *models.Registry) Option {
	return func(c *Config) {
		c.Models = r
	}
}

func WithConversations(s conversations.Store) Option {
	return func(c *Config) {
		c.Conversations = s
	}
}

func WithRelay(r *relay.Relay) Option {
	return func(c *Config) {
		c.Relay = r
	}
}

func WithPDFConverter(p *pdf.Converter) Option {
	return func(c *Config) {
		c.PDF = p
	}
}

func WithHub(h *sse.Hub) Option {
	return func(c *Config) {
		c.Hub = h
	}
}

func WithReadyHandler(fn func(url string)) Option {
	return func(c *Config) {
		c.OnReady = fn
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func NewConfig(opts ...Option) *Config {
	c := &Config{
		Title:        "localchat",
		BodyLimit:    DefaultBodyLimit,
		TypingPolicy: shell.PolicyGlobal,
	}
	c.Apply(opts...)

	if c.Conversations == nil {
		c.Conversations = conversations.Disabled{}
	}
	if c.PDF == nil {
		c.PDF = pdf.NewConverter()
	}
	if c.Hub == nil {
		c.Hub = sse.NewHub()
	}
	return c
}
