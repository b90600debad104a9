package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Identity is a conversation's identity: either a client-generated temporary
// id (before the server has persisted the conversation) or the permanent id
// the server assigned. A permanent id never changes for the rest of the
// conversation's lifetime.
type Identity struct {
	ID        string `json:"id"`
	Temporary bool   `json:"temporary"`
}

// NewTemporaryIdentity generates a fresh client-local identity.
func NewTemporaryIdentity() Identity {
	return Identity{ID: uuid.Must(uuid.NewV7()).String(), Temporary: true}
}

// PersistedIdentity wraps a server-assigned permanent id.
func PersistedIdentity(id string) Identity {
	return Identity{ID: id}
}

// Key returns the map key for this identity.
func (i Identity) Key() string {
	return i.ID
}

// Conversation is one chat thread's full state. Values are treated as
// copy-on-write snapshots: mutations happen on a Clone which then replaces
// the previous snapshot in the store, so concurrent readers always observe a
// complete prior or complete new state.
type Conversation struct {
	Identity      Identity        `json:"identity"`
	Messages      []ChatMessage   `json:"messages"`
	LastMessageID string          `json:"last_message_id,omitempty"`
	Followups     []string        `json:"followups,omitempty"`
	ServerState   json.RawMessage `json:"server_state,omitempty"`
	ChatOptions   map[string]any  `json:"chat_options,omitempty"`
	Summary       string          `json:"summary,omitempty"`

	// EventsLog keeps the raw events of every assistant turn for the debug
	// surface. Not part of the durable snapshot.
	EventsLog [][]Event `json:"-"`

	Loading bool   `json:"-"`
	Cancel  func() `json:"-"`
}

// NewConversation creates an empty conversation with a temporary identity.
func NewConversation() *Conversation {
	return &Conversation{Identity: NewTemporaryIdentity()}
}

// Clone returns a deep copy of the conversation snapshot. The cancel handle
// is shared: it refers to the same in-flight stream either way.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = make([]ChatMessage, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = c.Messages[i].Clone()
		}
	}
	if c.Followups != nil {
		out.Followups = append([]string(nil), c.Followups...)
	}
	if c.ServerState != nil {
		out.ServerState = append(json.RawMessage(nil), c.ServerState...)
	}
	if c.ChatOptions != nil {
		out.ChatOptions = make(map[string]any, len(c.ChatOptions))
		for k, v := range c.ChatOptions {
			out.ChatOptions[k] = v
		}
	}
	if c.EventsLog != nil {
		out.EventsLog = make([][]Event, len(c.EventsLog))
		for i, turn := range c.EventsLog {
			out.EventsLog[i] = append([]Event(nil), turn...)
		}
	}
	return &out
}

// Empty reports whether the conversation holds no messages.
func (c *Conversation) Empty() bool {
	return len(c.Messages) == 0
}

// AppendMessage adds a message as the newest turn. Adding any message
// invalidates previously suggested follow-ups.
func (c *Conversation) AppendMessage(msg ChatMessage) {
	c.Messages = append(c.Messages, msg)
	c.LastMessageID = msg.ID
	c.Followups = nil
}

// RemoveLastMessage drops the newest message. Used for explicit rollback
// only; events never delete messages.
func (c *Conversation) RemoveLastMessage() {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	if len(c.Messages) == 0 {
		c.LastMessageID = ""
		return
	}
	c.LastMessageID = c.Messages[len(c.Messages)-1].ID
}

// MessageByID returns a pointer into the conversation's message slice, or
// nil when the id is unknown. Only call this on a draft you own.
func (c *Conversation) MessageByID(id string) *ChatMessage {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// BeginTurn opens a new per-turn event log entry.
func (c *Conversation) BeginTurn() {
	c.EventsLog = append(c.EventsLog, nil)
}

// LogEvent records a raw event into the current turn's log.
func (c *Conversation) LogEvent(ev Event) {
	if len(c.EventsLog) == 0 {
		c.EventsLog = append(c.EventsLog, nil)
	}
	last := len(c.EventsLog) - 1
	c.EventsLog[last] = append(c.EventsLog[last], ev)
}
