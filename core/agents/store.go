package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

// Cascader is notified when an agent is deleted so that data hanging off
// the agent (saved chats) goes with it.
type Cascader interface {
	DeleteAgent(agentID string) error
}

// Store keeps the ordered agent list in a JSON file. Every mutation
// rewrites the whole file.
type Store struct {
	filePath string
	mu       sync.Mutex
	agents   []types.Agent
	cascade  Cascader
	now      func() time.Time
}

// NewStore loads the agent list from filePath, healing it so that it holds
// exactly one default agent. cascade may be nil.
func NewStore(filePath string, cascade Cascader) (*Store, error) {
	s := &Store{
		filePath: filePath,
		cascade:  cascade,
		now:      time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns a copy of the agents in display order.
func (s *Store) List() []types.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]types.Agent, len(s.agents))
	copy(agents, s.agents)
	return agents
}

// Get returns the agent with the given id.
func (s *Store) Get(id string) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return types.Agent{}, types.NewNotFoundError("Agent not found")
	}
	return s.agents[i], nil
}

// Create validates the agent and inserts it at the top of the list.
func (s *Store) Create(agent types.Agent) (types.Agent, error) {
	if err := agent.Validate(); err != nil {
		return types.Agent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == "" {
		at := s.now()
		agent.ID = types.NewAgentID(agent.Name, at)
		for s.index(agent.ID) >= 0 {
			at = at.Add(time.Millisecond)
			agent.ID = types.NewAgentID(agent.Name, at)
		}
	} else if s.index(agent.ID) >= 0 {
		return types.Agent{}, types.NewValidationError("agent with id %s already exists", agent.ID)
	}
	agent.IsDefault = false
	if agent.Color == "" {
		agent.Color = types.DefaultAgentColor
	}

	previous := s.agents
	s.agents = append([]types.Agent{agent}, s.agents...)
	if err := s.save(); err != nil {
		s.agents = previous
		return types.Agent{}, err
	}

	xlog.Info("Agent created", "id", agent.ID, "name", agent.Name)
	return agent, nil
}

// Update applies patch to the agent with the given id. The default agent is
// read-only.
func (s *Store) Update(id string, patch types.AgentPatch) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return types.Agent{}, types.NewNotFoundError("Agent not found")
	}
	if s.agents[i].IsDefault {
		return types.Agent{}, types.NewPermissionError("Default agent properties cannot be modified.")
	}

	updated, err := patch.Apply(s.agents[i])
	if err != nil {
		return types.Agent{}, err
	}

	previous := s.agents[i]
	s.agents[i] = updated
	if err := s.save(); err != nil {
		s.agents[i] = previous
		return types.Agent{}, err
	}

	xlog.Info("Agent updated", "id", id)
	return updated, nil
}

// Delete removes the agent and its saved chats. The default agent cannot be
// deleted.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return types.NewNotFoundError("Agent not found")
	}
	if s.agents[i].IsDefault {
		return types.NewPermissionError("The default agent cannot be deleted.")
	}

	previous := s.agents
	agents := make([]types.Agent, 0, len(s.agents)-1)
	agents = append(agents, s.agents[:i]...)
	agents = append(agents, s.agents[i+1:]...)
	s.agents = agents
	if err := s.save(); err != nil {
		s.agents = previous
		return err
	}

	if s.cascade != nil {
		if err := s.cascade.DeleteAgent(id); err != nil {
			xlog.Error("Failed to delete chats of agent", "id", id, "error", err)
		}
	}

	xlog.Info("Agent deleted", "id", id)
	return nil
}

// Reorder sets the display order. ids must be a permutation of the current
// agent ids.
func (s *Store) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) != len(s.agents) {
		return types.NewValidationError("Mismatch in agent count during reordering")
	}

	seen := make(map[string]bool, len(ids))
	reordered := make([]types.Agent, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return types.NewValidationError("duplicate agent id %s in order", id)
		}
		seen[id] = true

		i := s.index(id)
		if i < 0 {
			return types.NewValidationError("unknown agent id %s in order", id)
		}
		reordered = append(reordered, s.agents[i])
	}

	previous := s.agents
	s.agents = reordered
	if err := s.save(); err != nil {
		s.agents = previous
		return err
	}
	return nil
}

func (s *Store) index(id string) int {
	for i, a := range s.agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// load reads the agent file. Unreadable or corrupt files are moved aside
// and replaced by a default-only list.
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	switch {
	case os.IsNotExist(err):
		xlog.Info("Agents file not found, creating it with the default agent", "file", s.filePath)
		s.agents = []types.Agent{types.DefaultAgent()}
		return s.save()
	case err != nil:
		xlog.Error("Could not read agents file, using the default agent", "error", types.NewStorageError(s.filePath, err))
		s.agents = []types.Agent{types.DefaultAgent()}
		return nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		xlog.Info("Agents file is empty, re-creating it with the default agent", "file", s.filePath)
		s.agents = []types.Agent{types.DefaultAgent()}
		return s.save()
	}

	var agents []types.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		xlog.Error("Agents file is corrupt, re-creating it with the default agent", "error", types.NewStorageError(s.filePath, err))
		if err := os.Rename(s.filePath, s.filePath+".bak"); err != nil {
			xlog.Warn("Could not move corrupt agents file aside", "error", err)
		}
		s.agents = []types.Agent{types.DefaultAgent()}
		return s.save()
	}

	s.agents = heal(agents)
	if len(s.agents) != len(agents) || !sameDefaults(agents, s.agents) {
		xlog.Info("Default agent not found in agents file, prepending it", "file", s.filePath)
		return s.save()
	}
	return nil
}

// heal makes sure the list has exactly one default agent.
func heal(agents []types.Agent) []types.Agent {
	healed := make([]types.Agent, 0, len(agents)+1)
	found := false
	for _, a := range agents {
		if a.IsDefault {
			if found {
				a.IsDefault = false
			}
			found = true
		}
		healed = append(healed, a)
	}
	if !found {
		healed = append([]types.Agent{types.DefaultAgent()}, healed...)
	}
	return healed
}

func sameDefaults(a, b []types.Agent) bool {
	for i := range a {
		if a[i].IsDefault != b[i].IsDefault {
			return false
		}
	}
	return true
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.agents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal agents: %w", err)
	}

	basePath := filepath.Dir(s.filePath)
	os.MkdirAll(basePath, 0755)

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return types.NewStorageError(s.filePath, err)
	}
	return nil
}
