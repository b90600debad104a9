// Package model defines data structures for the conversation core.
package model

import (
	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Reference is a source citation attached to an assistant message.
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// UsageStats holds token accounting for one assistant turn.
type UsageStats struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model,omitempty"`
}

// LiveUpdate is an incremental progress notification for an in-flight turn.
// Later updates for the same update id replace earlier ones.
type LiveUpdate struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// TodoTask is one entry of the assistant's task list.
type TodoTask struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// ConfirmationState tracks the lifecycle of a tool-execution approval.
type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationDeclined  ConfirmationState = "declined"
	ConfirmationSkipped   ConfirmationState = "skipped"
)

// Terminal reports whether the state can no longer change.
func (s ConfirmationState) Terminal() bool {
	return s != ConfirmationPending && s != ""
}

// ConfirmationRequest is a server-issued request for explicit user approval
// before a tool executes.
type ConfirmationRequest struct {
	ConfirmationID  string         `json:"confirmation_id"`
	ToolName        string         `json:"tool_name"`
	ToolDescription string         `json:"tool_description,omitempty"`
	Arguments       map[string]any `json:"arguments,omitempty"`
}

// ChatMessage is one turn's content. The client-local ID is stable for the
// session; ServerID is set once the server echoes its own identifier.
type ChatMessage struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id,omitempty"`
	Role     Role   `json:"role"`
	Content  string `json:"content"`

	References           []Reference                  `json:"references,omitempty"`
	Images               map[string]string            `json:"images,omitempty"`
	LiveUpdates          map[string]LiveUpdate        `json:"live_updates,omitempty"`
	Tasks                []TodoTask                   `json:"tasks,omitempty"`
	ConfirmationRequests []ConfirmationRequest        `json:"confirmation_requests,omitempty"`
	ConfirmationStates   map[string]ConfirmationState `json:"confirmation_states,omitempty"`
	Usage                *UsageStats                  `json:"usage,omitempty"`
	Error                string                       `json:"error,omitempty"`
}

// NewChatMessage creates a message with a fresh client-local id.
func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Role:    role,
		Content: content,
	}
}

// Clone returns a deep copy of the message.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.References != nil {
		out.References = append([]Reference(nil), m.References...)
	}
	if m.Images != nil {
		out.Images = make(map[string]string, len(m.Images))
		for k, v := range m.Images {
			out.Images[k] = v
		}
	}
	if m.LiveUpdates != nil {
		out.LiveUpdates = make(map[string]LiveUpdate, len(m.LiveUpdates))
		for k, v := range m.LiveUpdates {
			out.LiveUpdates[k] = v
		}
	}
	if m.Tasks != nil {
		out.Tasks = append([]TodoTask(nil), m.Tasks...)
	}
	if m.ConfirmationRequests != nil {
		out.ConfirmationRequests = append([]ConfirmationRequest(nil), m.ConfirmationRequests...)
	}
	if m.ConfirmationStates != nil {
		out.ConfirmationStates = make(map[string]ConfirmationState, len(m.ConfirmationStates))
		for k, v := range m.ConfirmationStates {
			out.ConfirmationStates[k] = v
		}
	}
	if m.Usage != nil {
		usage := *m.Usage
		out.Usage = &usage
	}
	return out
}

// Reset drops everything except identity and role, leaving empty content.
func (m *ChatMessage) Reset() {
	*m = ChatMessage{ID: m.ID, Role: m.Role}
}
