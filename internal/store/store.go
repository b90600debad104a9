// Package store owns the conversation map and the active-conversation
// pointer. All cross-conversation state lives here; mutations replace whole
// conversation snapshots so readers never observe a partially applied
// change.
package store

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// Store holds all open conversations keyed by identity.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	current       string
	log           *logger.Logger
}

// New creates a store seeded with one empty temporary conversation, which
// becomes the active one.
func New(log *logger.Logger) *Store {
	s := &Store{
		conversations: make(map[string]*model.Conversation),
		log:           log,
	}
	conv := model.NewConversation()
	s.conversations[conv.Identity.Key()] = conv
	s.current = conv.Identity.Key()
	metrics.ConversationsActive.Set(1)
	return s
}

// Current returns the active conversation, creating a fresh one if the
// pointer does not resolve. It never fails.
func (s *Store) Current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Store) currentLocked() *model.Conversation {
	if conv, ok := s.conversations[s.current]; ok {
		return conv
	}
	conv := model.NewConversation()
	s.conversations[conv.Identity.Key()] = conv
	s.current = conv.Identity.Key()
	metrics.ConversationsActive.Set(float64(len(s.conversations)))
	return conv
}

// CurrentKey returns the active conversation's key, lazily creating the
// conversation like Current does.
func (s *Store) CurrentKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLocked()
	return s.current
}

// CurrentSnapshot returns the active conversation and its key as one
// consistent read. Callers that fetch the key and the snapshot separately
// can be split by a concurrent Delete.
func (s *Store) CurrentSnapshot() (string, *model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.currentLocked()
	return s.current, conv
}

// Get returns the snapshot for a key.
func (s *Store) Get(key string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[key]
	return conv, ok
}

// Commit replaces the snapshot stored under key.
func (s *Store) Commit(key string, conv *model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[key] = conv
}

// CommitIfPresent replaces the snapshot stored under key only while the key
// still exists, reporting whether the write happened. Writers that release
// the lock between reading a snapshot and committing its replacement must
// use this form, or a concurrent Delete is silently undone by the commit.
func (s *Store) CommitIfPresent(key string, conv *model.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[key]; !ok {
		return false
	}
	s.conversations[key] = conv
	return true
}

// Select makes an existing conversation the active one.
func (s *Store) Select(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[key]; !ok {
		return fmt.Errorf("select %q: %w", key, model.ErrNotFound)
	}
	s.current = key
	return nil
}

// Delete removes a conversation. Any in-flight stream for it is cancelled
// first. Deleting the active conversation transitions the store to a
// freshly created one before the entry goes away, so the active pointer
// never references a removed key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return fmt.Errorf("delete %q: %w", key, model.ErrNotFound)
	}

	if conv.Cancel != nil {
		conv.Cancel()
	}

	if s.current == key {
		fresh := model.NewConversation()
		s.conversations[fresh.Identity.Key()] = fresh
		s.current = fresh.Identity.Key()
	}

	delete(s.conversations, key)
	metrics.ConversationsActive.Set(float64(len(s.conversations)))
	s.log.Debug("conversation deleted", zap.String("conversation_id", key))
	return nil
}

// NewConversation creates a fresh temporary conversation and makes it
// active. Other temporary conversations that never accumulated a message
// are garbage-collected so abandoned drafts do not pile up.
func (s *Store) NewConversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation()
	s.conversations[conv.Identity.Key()] = conv
	s.current = conv.Identity.Key()

	for key, other := range s.conversations {
		if key == s.current {
			continue
		}
		if other.Identity.Temporary && other.Empty() {
			delete(s.conversations, key)
		}
	}

	metrics.ConversationsActive.Set(float64(len(s.conversations)))
	return conv
}

// PromoteIdentity re-keys a conversation from its temporary key to the
// server-assigned permanent id, updating the active pointer when it
// referenced the temporary key. A missing source entry means the transport
// delivered events for a conversation this store never created; that is a
// contract violation, not a recoverable condition.
func (s *Store) PromoteIdentity(tempKey, permanentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[tempKey]
	if !ok {
		return fmt.Errorf("promote %q -> %q: source absent: %w", tempKey, permanentID, model.ErrIntegrity)
	}
	if _, exists := s.conversations[permanentID]; exists && permanentID != tempKey {
		return fmt.Errorf("promote %q -> %q: target already present: %w", tempKey, permanentID, model.ErrIntegrity)
	}

	if conv.Identity.Key() != permanentID || conv.Identity.Temporary {
		conv = conv.Clone()
		conv.Identity = model.PersistedIdentity(permanentID)
	}

	delete(s.conversations, tempKey)
	s.conversations[permanentID] = conv
	if s.current == tempKey {
		s.current = permanentID
	}
	metrics.ConversationsActive.Set(float64(len(s.conversations)))

	s.log.Info("conversation identity promoted",
		zap.String("temporary_id", tempKey),
		zap.String("conversation_id", permanentID),
	)
	return nil
}

// RemoveLastMessage drops the newest message of a conversation. This is the
// explicit rollback operation; nothing else ever deletes messages.
func (s *Store) RemoveLastMessage(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return fmt.Errorf("remove last message %q: %w", key, model.ErrNotFound)
	}
	draft := conv.Clone()
	draft.RemoveLastMessage()
	s.conversations[key] = draft
	return nil
}

// List returns all conversation snapshots ordered by key.
func (s *Store) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Key() < out[j].Identity.Key()
	})
	return out
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
