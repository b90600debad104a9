package model

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a chat response event. The set of kinds is closed: decoding
// an unknown tag is an error, and the reducer registers a handler for every
// kind below.
type EventKind string

const (
	EventText                EventKind = "text"
	EventReference           EventKind = "reference"
	EventMessageID           EventKind = "message_id"
	EventLiveUpdate          EventKind = "live_update"
	EventImage               EventKind = "image"
	EventClearMessage        EventKind = "clear_message"
	EventUsage               EventKind = "usage"
	EventTodoItem            EventKind = "todo_item"
	EventConfirmationRequest EventKind = "confirmation_request"
	EventConfirmationStatus  EventKind = "confirmation_status"
	EventStateUpdate         EventKind = "state_update"
	EventConversationID      EventKind = "conversation_id"
	EventFollowupMessages    EventKind = "followup_messages"
	EventConversationSummary EventKind = "conversation_summary"
	EventError               EventKind = "error"
)

// Kinds lists every event kind, in no particular order.
func Kinds() []EventKind {
	return []EventKind{
		EventText, EventReference, EventMessageID, EventLiveUpdate,
		EventImage, EventClearMessage, EventUsage, EventTodoItem,
		EventConfirmationRequest, EventConfirmationStatus, EventStateUpdate,
		EventConversationID, EventFollowupMessages, EventConversationSummary,
		EventError,
	}
}

// Event is one tagged chat response event.
type Event interface {
	Kind() EventKind
}

// TextEvent appends a fragment to the target message's content.
type TextEvent struct {
	Text string
}

func (TextEvent) Kind() EventKind { return EventText }

// ReferenceEvent attaches a source citation to the target message.
type ReferenceEvent struct {
	Reference Reference
}

func (ReferenceEvent) Kind() EventKind { return EventReference }

// MessageIDEvent carries the server-assigned id for the target message.
type MessageIDEvent struct {
	MessageID string
}

func (MessageIDEvent) Kind() EventKind { return EventMessageID }

// LiveUpdateType distinguishes the phases of a live update.
type LiveUpdateType string

const (
	LiveUpdateStart    LiveUpdateType = "start"
	LiveUpdateProgress LiveUpdateType = "progress"
	LiveUpdateDone     LiveUpdateType = "done"
)

// LiveUpdateEvent upserts a progress notification keyed by update id.
type LiveUpdateEvent struct {
	UpdateID    string
	Type        LiveUpdateType
	Label       string
	Description string
}

func (LiveUpdateEvent) Kind() EventKind { return EventLiveUpdate }

// ImageEvent attaches a generated image to the target message.
type ImageEvent struct {
	ImageID string
	URL     string
}

func (ImageEvent) Kind() EventKind { return EventImage }

// ClearMessageEvent resets the target message to empty content.
type ClearMessageEvent struct{}

func (ClearMessageEvent) Kind() EventKind { return EventClearMessage }

// UsageEvent carries token accounting for the turn.
type UsageEvent struct {
	Usage UsageStats
}

func (UsageEvent) Kind() EventKind { return EventUsage }

// TodoItemEvent upserts one task-list entry by id.
type TodoItemEvent struct {
	Task TodoTask
}

func (TodoItemEvent) Kind() EventKind { return EventTodoItem }

// ConfirmationRequestEvent asks for approval before a tool executes.
type ConfirmationRequestEvent struct {
	Request ConfirmationRequest
}

func (ConfirmationRequestEvent) Kind() EventKind { return EventConfirmationRequest }

// ConfirmationStatusEvent reports the terminal state of a prior request.
type ConfirmationStatusEvent struct {
	ConfirmationID string
	Status         ConfirmationState
}

func (ConfirmationStatusEvent) Kind() EventKind { return EventConfirmationStatus }

// StateUpdateEvent replaces the opaque server context echoed back on the
// next request.
type StateUpdateEvent struct {
	State json.RawMessage
}

func (StateUpdateEvent) Kind() EventKind { return EventStateUpdate }

// ConversationIDEvent assigns the permanent conversation id.
type ConversationIDEvent struct {
	ConversationID string
}

func (ConversationIDEvent) Kind() EventKind { return EventConversationID }

// FollowupMessagesEvent suggests next user replies.
type FollowupMessagesEvent struct {
	Messages []string
}

func (FollowupMessagesEvent) Kind() EventKind { return EventFollowupMessages }

// ConversationSummaryEvent sets the server-generated thread summary.
type ConversationSummaryEvent struct {
	Summary string
}

func (ConversationSummaryEvent) Kind() EventKind { return EventConversationSummary }

// ErrorEvent records a failure on the target message.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) Kind() EventKind { return EventError }

// envelope is the wire form of an event: {"type": <tag>, "content": <payload>}.
type envelope struct {
	Type    EventKind       `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type liveUpdatePayload struct {
	UpdateID    string         `json:"update_id"`
	Type        LiveUpdateType `json:"type"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
}

type imagePayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type confirmationStatusPayload struct {
	ConfirmationID string            `json:"confirmation_id"`
	Status         ConfirmationState `json:"status"`
}

// DecodeEvent parses a wire event into its typed form.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch env.Type {
	case EventText:
		var text string
		if err := json.Unmarshal(env.Content, &text); err != nil {
			return nil, fmt.Errorf("invalid text payload: %w", err)
		}
		return TextEvent{Text: text}, nil
	case EventReference:
		var ref Reference
		if err := json.Unmarshal(env.Content, &ref); err != nil {
			return nil, fmt.Errorf("invalid reference payload: %w", err)
		}
		return ReferenceEvent{Reference: ref}, nil
	case EventMessageID:
		var id string
		if err := json.Unmarshal(env.Content, &id); err != nil {
			return nil, fmt.Errorf("invalid message_id payload: %w", err)
		}
		return MessageIDEvent{MessageID: id}, nil
	case EventLiveUpdate:
		var p liveUpdatePayload
		if err := json.Unmarshal(env.Content, &p); err != nil {
			return nil, fmt.Errorf("invalid live_update payload: %w", err)
		}
		return LiveUpdateEvent{UpdateID: p.UpdateID, Type: p.Type, Label: p.Label, Description: p.Description}, nil
	case EventImage:
		var p imagePayload
		if err := json.Unmarshal(env.Content, &p); err != nil {
			return nil, fmt.Errorf("invalid image payload: %w", err)
		}
		return ImageEvent{ImageID: p.ID, URL: p.URL}, nil
	case EventClearMessage:
		return ClearMessageEvent{}, nil
	case EventUsage:
		var usage UsageStats
		if err := json.Unmarshal(env.Content, &usage); err != nil {
			return nil, fmt.Errorf("invalid usage payload: %w", err)
		}
		return UsageEvent{Usage: usage}, nil
	case EventTodoItem:
		var task TodoTask
		if err := json.Unmarshal(env.Content, &task); err != nil {
			return nil, fmt.Errorf("invalid todo_item payload: %w", err)
		}
		return TodoItemEvent{Task: task}, nil
	case EventConfirmationRequest:
		var req ConfirmationRequest
		if err := json.Unmarshal(env.Content, &req); err != nil {
			return nil, fmt.Errorf("invalid confirmation_request payload: %w", err)
		}
		return ConfirmationRequestEvent{Request: req}, nil
	case EventConfirmationStatus:
		var p confirmationStatusPayload
		if err := json.Unmarshal(env.Content, &p); err != nil {
			return nil, fmt.Errorf("invalid confirmation_status payload: %w", err)
		}
		return ConfirmationStatusEvent{ConfirmationID: p.ConfirmationID, Status: p.Status}, nil
	case EventStateUpdate:
		return StateUpdateEvent{State: append(json.RawMessage(nil), env.Content...)}, nil
	case EventConversationID:
		var id string
		if err := json.Unmarshal(env.Content, &id); err != nil {
			return nil, fmt.Errorf("invalid conversation_id payload: %w", err)
		}
		return ConversationIDEvent{ConversationID: id}, nil
	case EventFollowupMessages:
		var msgs []string
		if err := json.Unmarshal(env.Content, &msgs); err != nil {
			return nil, fmt.Errorf("invalid followup_messages payload: %w", err)
		}
		return FollowupMessagesEvent{Messages: msgs}, nil
	case EventConversationSummary:
		var summary string
		if err := json.Unmarshal(env.Content, &summary); err != nil {
			return nil, fmt.Errorf("invalid conversation_summary payload: %w", err)
		}
		return ConversationSummaryEvent{Summary: summary}, nil
	case EventError:
		var msg string
		if err := json.Unmarshal(env.Content, &msg); err != nil {
			return nil, fmt.Errorf("invalid error payload: %w", err)
		}
		return ErrorEvent{Message: msg}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Type)
	}
}

// EncodeEvent renders an event back into its wire form.
func EncodeEvent(ev Event) ([]byte, error) {
	var content any
	switch e := ev.(type) {
	case TextEvent:
		content = e.Text
	case ReferenceEvent:
		content = e.Reference
	case MessageIDEvent:
		content = e.MessageID
	case LiveUpdateEvent:
		content = liveUpdatePayload{UpdateID: e.UpdateID, Type: e.Type, Label: e.Label, Description: e.Description}
	case ImageEvent:
		content = imagePayload{ID: e.ImageID, URL: e.URL}
	case ClearMessageEvent:
		content = nil
	case UsageEvent:
		content = e.Usage
	case TodoItemEvent:
		content = e.Task
	case ConfirmationRequestEvent:
		content = e.Request
	case ConfirmationStatusEvent:
		content = confirmationStatusPayload{ConfirmationID: e.ConfirmationID, Status: e.Status}
	case StateUpdateEvent:
		content = e.State
	case ConversationIDEvent:
		content = e.ConversationID
	case FollowupMessagesEvent:
		content = e.Messages
	case ConversationSummaryEvent:
		content = e.Summary
	case ErrorEvent:
		content = e.Message
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	env := envelope{Type: ev.Kind()}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Kind(), err)
		}
		env.Content = raw
	}
	return json.Marshal(env)
}
