package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type AgentType string

const (
	AgentMultiTurn  AgentType = "multi-turn"
	AgentSingleTurn AgentType = "single-turn"
)

func (t AgentType) Valid() bool {
	return t == AgentMultiTurn || t == AgentSingleTurn
}

const DefaultAgentColor = "#4f46e5"

// Agent is a persona preset: a system instruction plus the conversational
// mode used when chatting with it.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Persona   string    `json:"persona"`
	Color     string    `json:"color,omitempty"`
	Type      AgentType `json:"type"`
	IsDefault bool      `json:"isDefault"`
}

// DefaultAgent returns the built-in agent that always heads a fresh store.
func DefaultAgent() Agent {
	return Agent{
		ID:        "assistant",
		Name:      "Ai Assistant",
		Title:     "A friendly Ai Assistant",
		Persona:   "You are a friendly and helpful assistant. Do not use emojis. Use LaTeX notation for mathematical or scientific expressions only.",
		Color:     DefaultAgentColor,
		Type:      AgentMultiTurn,
		IsDefault: true,
	}
}

// AgentPatch carries the editable fields of an agent. Nil fields are left
// untouched. ID and IsDefault are only present so that attempts to change
// them can be detected and refused.
type AgentPatch struct {
	ID        *string    `json:"id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Persona   *string    `json:"persona,omitempty"`
	Color     *string    `json:"color,omitempty"`
	Type      *AgentType `json:"type,omitempty"`
	IsDefault *bool      `json:"isDefault,omitempty"`
}

// Validate checks the fields required to create an agent.
func (a Agent) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(a.Persona) == "" {
		missing = append(missing, "persona")
	}
	if a.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return NewValidationError("missing agent data: %s", strings.Join(missing, ", "))
	}
	if !a.Type.Valid() {
		return NewValidationError("invalid agent type %q", a.Type)
	}
	return nil
}

// Apply returns a copy of a with the patch applied.
func (p AgentPatch) Apply(a Agent) (Agent, error) {
	if p.ID != nil && *p.ID != a.ID {
		return a, NewValidationError("agent id cannot be changed")
	}
	if p.IsDefault != nil && *p.IsDefault != a.IsDefault {
		return a, NewValidationError("isDefault cannot be changed")
	}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return a, NewValidationError("name cannot be empty")
		}
		a.Name = *p.Name
	}
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Persona != nil {
		a.Persona = *p.Persona
	}
	if p.Color != nil {
		a.Color = *p.Color
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return a, NewValidationError("invalid agent type %q", *p.Type)
		}
		a.Type = *p.Type
	}
	return a, nil
}

var nonSlug = regexp.MustCompile(`\s+`)

// NewAgentID derives an id from the agent name and its creation time, the
// same shape the browser uses when it picks one itself.
func NewAgentID(name string, at time.Time) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	if slug == "" {
		slug = "agent"
	}
	return fmt.Sprintf("%s-%d", slug, at.UnixMilli())
}
