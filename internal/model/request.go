package model

import (
	"encoding/json"
)

// HistoryEntry is one prior turn mapped into the outgoing request shape.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

// RequestContext carries the opaque state the server asked us to echo back,
// plus user-configured chat options. The conversation id is omitted while
// the identity is still temporary: the server assigns the permanent id on
// first persistence.
type RequestContext struct {
	ServerState    json.RawMessage `json:"server_state,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	ChatOptions    map[string]any  `json:"chat_options,omitempty"`
}

// ChatRequest is the outgoing request for one send.
type ChatRequest struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history"`
	Context RequestContext `json:"context"`
}

// Request builds the outgoing request for a send. It assumes the just-added
// user message and assistant placeholder are the two newest entries and
// excludes them from the mapped history.
func (c *Conversation) Request(message string) *ChatRequest {
	n := len(c.Messages) - 2
	if n < 0 {
		n = 0
	}
	history := make([]HistoryEntry, 0, n)
	for _, m := range c.Messages[:n] {
		history = append(history, HistoryEntry{Role: m.Role, Content: m.Content, ID: m.ServerID})
	}

	ctx := RequestContext{
		ServerState: c.ServerState,
		ChatOptions: c.ChatOptions,
	}
	if !c.Identity.Temporary {
		ctx.ConversationID = c.Identity.ID
	}

	return &ChatRequest{Message: message, History: history, Context: ctx}
}
