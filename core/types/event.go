package types

import "time"

// StreamEvent is one frame of the /stream_chat event stream. Exactly one of
// the fields is set.
type StreamEvent struct {
	Chunk   string `json:"chunk,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ChunkEvent(s string) StreamEvent   { return StreamEvent{Chunk: s} }
func WarningEvent(s string) StreamEvent { return StreamEvent{Warning: s} }
func ErrorEvent(s string) StreamEvent   { return StreamEvent{Error: s} }

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Error != ""
}

// ChatRecord is a persisted chat session.
type ChatRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Title     string        `json:"title"`
	History   []ChatMessage `json:"history"`
}
