package conversations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
	"github.com/offlineai/localchat/pkg/xstrings"
)

const titleLength = 40

// Store persists chat sessions per agent, most recently touched first.
type Store interface {
	All() map[string][]types.ChatRecord
	Save(agentID string, record types.ChatRecord) (types.ChatRecord, error)
	Update(agentID, chatID string, history []types.ChatMessage) (types.ChatRecord, error)
	Delete(agentID, chatID string) error
	DeleteAgent(agentID string) error
}

// New returns a JSON backed store when enabled, and a store that forgets
// everything otherwise.
func New(filePath string, enabled bool) (Store, error) {
	if !enabled {
		return Disabled{}, nil
	}
	return NewJSONStore(filePath)
}

// JSONStore keeps all conversations in a single JSON file.
type JSONStore struct {
	filePath string
	mu       sync.Mutex
	data     map[string][]types.ChatRecord
	now      func() time.Time
}

func NewJSONStore(filePath string) (*JSONStore, error) {
	s := &JSONStore{
		filePath: filePath,
		data:     map[string][]types.ChatRecord{},
		now:      time.Now,
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			xlog.Error("Could not load conversations, starting empty", "error", types.NewStorageError(filePath, err))
			if err := os.Rename(filePath, filePath+".bak"); err != nil {
				xlog.Warn("Could not move corrupt conversations file aside", "error", err)
			}
			s.data = map[string][]types.ChatRecord{}
		}
	}
	return s, nil
}

func (s *JSONStore) All() map[string][]types.ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string][]types.ChatRecord, len(s.data))
	for agentID, records := range s.data {
		all[agentID] = append([]types.ChatRecord(nil), records...)
	}
	return all
}

func (s *JSONStore) Save(agentID string, record types.ChatRecord) (types.ChatRecord, error) {
	record, err := prepare(record, s.now())
	if err != nil {
		return types.ChatRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.data[agentID] {
		if r.ID == record.ID {
			return types.ChatRecord{}, types.NewValidationError("chat %s already exists", record.ID)
		}
	}

	previous := s.data[agentID]
	s.data[agentID] = append([]types.ChatRecord{record}, previous...)
	if err := s.save(); err != nil {
		s.restore(agentID, previous)
		return types.ChatRecord{}, err
	}
	return record, nil
}

func (s *JSONStore) Update(agentID, chatID string, history []types.ChatMessage) (types.ChatRecord, error) {
	if err := validateHistory(history); err != nil {
		return types.ChatRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.data[agentID]
	for i, r := range records {
		if r.ID != chatID {
			continue
		}
		r.History = history
		r.Timestamp = s.now().UTC()

		updated := make([]types.ChatRecord, 0, len(records))
		updated = append(updated, r)
		updated = append(updated, records[:i]...)
		updated = append(updated, records[i+1:]...)
		s.data[agentID] = updated
		if err := s.save(); err != nil {
			s.restore(agentID, records)
			return types.ChatRecord{}, err
		}
		return r, nil
	}
	return types.ChatRecord{}, types.NewNotFoundError("History not found")
}

func (s *JSONStore) Delete(agentID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.data[agentID]
	for i, r := range records {
		if r.ID == chatID {
			s.data[agentID] = append(records[:i:i], records[i+1:]...)
			if err := s.save(); err != nil {
				s.restore(agentID, records)
				return err
			}
			return nil
		}
	}
	return types.NewNotFoundError("History not found")
}

func (s *JSONStore) DeleteAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[agentID]; !ok {
		return nil
	}
	previous := s.data[agentID]
	delete(s.data, agentID)
	if err := s.save(); err != nil {
		s.data[agentID] = previous
		return err
	}
	return nil
}

// restore puts back the records of agentID after a failed write.
func (s *JSONStore) restore(agentID string, records []types.ChatRecord) {
	if records == nil {
		delete(s.data, agentID)
		return
	}
	s.data[agentID] = records
}

func (s *JSONStore) load() error {
	file, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	if len(strings.TrimSpace(string(file))) == 0 {
		return nil
	}

	return json.Unmarshal(file, &s.data)
}

func (s *JSONStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}

	basePath := filepath.Dir(s.filePath)
	os.MkdirAll(basePath, 0755)

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return types.NewStorageError(s.filePath, err)
	}
	return nil
}

// Disabled is the store used when history persistence is switched off.
// Writes succeed but nothing is kept.
type Disabled struct{}

func (Disabled) All() map[string][]types.ChatRecord {
	return map[string][]types.ChatRecord{}
}

func (Disabled) Save(_ string, record types.ChatRecord) (types.ChatRecord, error) {
	return prepare(record, time.Now())
}

func (Disabled) Update(_, chatID string, history []types.ChatMessage) (types.ChatRecord, error) {
	if err := validateHistory(history); err != nil {
		return types.ChatRecord{}, err
	}
	return types.ChatRecord{ID: chatID, Timestamp: time.Now().UTC(), History: history}, nil
}

func (Disabled) Delete(_, _ string) error { return nil }

func (Disabled) DeleteAgent(_ string) error { return nil }

func prepare(record types.ChatRecord, now time.Time) (types.ChatRecord, error) {
	if err := validateHistory(record.History); err != nil {
		return types.ChatRecord{}, err
	}
	if record.ID == "" {
		record.ID = "chat-" + uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = now.UTC()
	}
	if strings.TrimSpace(record.Title) == "" {
		record.Title = Title(record.History)
	}
	return record, nil
}

func validateHistory(history []types.ChatMessage) error {
	if len(history) == 0 {
		return types.NewValidationError("Invalid chat session format: history is required")
	}
	for _, m := range history {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Title derives a chat title from the first user message.
func Title(history []types.ChatMessage) string {
	for _, m := range history {
		if m.Role != types.RoleUser {
			continue
		}
		if text := xstrings.Squash(m.Text()); text != "" {
			return xstrings.Truncate(text, titleLength)
		}
	}
	return "New chat"
}
