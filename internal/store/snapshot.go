package store

import (
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// Mode selects how much state the durable snapshot carries.
type Mode string

const (
	// ModeOptions persists only the active conversation's chat options.
	ModeOptions Mode = "options"
	// ModeFull persists the whole conversation map.
	ModeFull Mode = "full"
)

// Snapshot is the serializable subset of store state. Loading flags, cancel
// handles and per-turn event logs are deliberately excluded.
type Snapshot struct {
	ChatOptions   map[string]any        `json:"chat_options,omitempty"`
	Conversations []*model.Conversation `json:"conversations,omitempty"`
	Current       string                `json:"current,omitempty"`
}

// Snapshot captures the durable subset of the store under the given mode.
func (s *Store) Snapshot(mode Mode) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mode == ModeOptions {
		if conv, ok := s.conversations[s.current]; ok {
			return &Snapshot{ChatOptions: conv.ChatOptions}
		}
		return &Snapshot{}
	}

	snap := &Snapshot{Current: s.current}
	for _, conv := range s.conversations {
		snap.Conversations = append(snap.Conversations, conv.Clone())
	}
	return snap
}

// Restore installs a previously captured snapshot. It must run before any
// events are dispatched.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snap.Conversations) > 0 {
		s.conversations = make(map[string]*model.Conversation, len(snap.Conversations))
		for _, conv := range snap.Conversations {
			c := conv.Clone()
			c.Loading = false
			c.Cancel = nil
			s.conversations[c.Identity.Key()] = c
		}
		if _, ok := s.conversations[snap.Current]; ok {
			s.current = snap.Current
		} else {
			fresh := model.NewConversation()
			s.conversations[fresh.Identity.Key()] = fresh
			s.current = fresh.Identity.Key()
		}
		metrics.ConversationsActive.Set(float64(len(s.conversations)))
		return
	}

	if snap.ChatOptions != nil {
		conv := s.currentLocked().Clone()
		conv.ChatOptions = snap.ChatOptions
		s.conversations[conv.Identity.Key()] = conv
	}
}

// MarshalSnapshot renders the snapshot for the persistence adapter.
func (s *Store) MarshalSnapshot(mode Mode) ([]byte, error) {
	data, err := json.Marshal(s.Snapshot(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// RestoreJSON decodes and installs a snapshot previously produced by
// MarshalSnapshot.
func (s *Store) RestoreJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	s.Restore(&snap)
	return nil
}
