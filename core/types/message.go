package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Part is one piece of a chat message as the client keeps it.
type Part struct {
	Text     string   `json:"text"`
	Images   []string `json:"images,omitempty"`
	Thinking string   `json:"thinking,omitempty"`
}

// ChatMessage is a message of a client-side chat session.
type ChatMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

func (m ChatMessage) Validate() error {
	if !m.Role.Valid() {
		return NewValidationError("invalid role %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return NewValidationError("message has no parts")
	}
	if m.Role == RoleUser {
		for _, p := range m.Parts {
			if p.Thinking != "" {
				return NewValidationError("user messages cannot carry thinking")
			}
		}
	}
	return nil
}

// Text returns the text of all parts joined by a space.
func (m ChatMessage) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, " ")
}

// Wire converts the message to the shape posted to /stream_chat. Thinking
// is never sent back to the model.
func (m ChatMessage) Wire() WireMessage {
	var parts []ContentPart
	for _, p := range m.Parts {
		if p.Text != "" {
			parts = append(parts, ContentPart{Type: PartText, Text: p.Text})
		}
		for _, img := range p.Images {
			parts = append(parts, ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: img}})
		}
	}
	if parts == nil {
		parts = []ContentPart{}
	}
	return WireMessage{Role: m.Role, Content: Content{Parts: parts}}
}

const (
	PartText     = "text"
	PartImageURL = "image_url"
)

type ImageURL struct {
	URL string `json:"url"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Content is either a plain string or a list of typed parts.
type Content struct {
	Text  string
	Parts []ContentPart
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return NewValidationError("message content is required")
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return NewValidationError("invalid content parts: %v", err)
		}
		for _, p := range parts {
			switch p.Type {
			case PartText:
			case PartImageURL:
				if p.ImageURL == nil || !strings.Contains(p.ImageURL.URL, ",") {
					return NewValidationError("image_url part must carry a data URI")
				}
			default:
				return NewValidationError("unknown content part type %q", p.Type)
			}
		}
		c.Parts = parts
		return nil
	default:
		return NewValidationError("message content must be a string or a list of parts")
	}
}

// WireMessage is a message in the /stream_chat request body.
type WireMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ChatRequest is the /stream_chat request body.
type ChatRequest struct {
	Messages []WireMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("messages are required")
	}
	for _, m := range r.Messages {
		if !m.Role.Valid() {
			return NewValidationError("invalid role %q", m.Role)
		}
	}
	return nil
}
