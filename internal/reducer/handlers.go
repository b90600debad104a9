package reducer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// Default builds a registry covering every event kind the wire can carry.
func Default(log *logger.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(model.EventText, handleText, nil)
	r.Register(model.EventReference, handleReference, nil)
	r.Register(model.EventMessageID, handleMessageID, nil)
	r.Register(model.EventLiveUpdate, handleLiveUpdate, nil)
	r.Register(model.EventImage, handleImage, nil)
	r.Register(model.EventClearMessage, handleClearMessage, nil)
	r.Register(model.EventUsage, handleUsage, nil)
	r.Register(model.EventTodoItem, handleTodoItem, nil)
	r.Register(model.EventConfirmationRequest, handleConfirmationRequest, nil)
	r.Register(model.EventConfirmationStatus, handleConfirmationStatus, nil)
	r.Register(model.EventStateUpdate, handleStateUpdate, nil)
	r.Register(model.EventConversationID, handleConversationID, afterConversationID)
	r.Register(model.EventFollowupMessages, handleFollowupMessages, nil)
	r.Register(model.EventConversationSummary, handleConversationSummary, nil)
	r.Register(model.EventError, handleError, nil)
	return r
}

// targetMessage resolves the dispatch target. An unknown message id means
// the transport and the store disagree about what exists; continuing would
// corrupt the model, so this is a hard failure.
func targetMessage(conv *model.Conversation, ctx Ctx) (*model.ChatMessage, error) {
	msg := conv.MessageByID(ctx.MessageID)
	if msg == nil {
		metrics.IntegrityViolations.Inc()
		return nil, fmt.Errorf("message %q not in conversation %q: %w",
			ctx.MessageID, conv.Identity.Key(), model.ErrIntegrity)
	}
	return msg, nil
}

func handleText(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.TextEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.Content += e.Text
	return nil, nil
}

func handleReference(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ReferenceEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.References = append(msg.References, e.Reference)
	return nil, nil
}

func handleMessageID(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.MessageIDEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.ServerID = e.MessageID
	return nil, nil
}

// handleLiveUpdate upserts by update id. A "start" for an id that already
// exists is a protocol anomaly: it is logged, counted, and the entry is
// overwritten anyway (last-write-wins, never a crash and never a second
// entry for the same id).
func handleLiveUpdate(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.LiveUpdateEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	if msg.LiveUpdates == nil {
		msg.LiveUpdates = make(map[string]model.LiveUpdate)
	}
	if _, exists := msg.LiveUpdates[e.UpdateID]; exists && e.Type == model.LiveUpdateStart {
		ctx.Log.Warn("duplicate live_update start",
			zap.String("update_id", e.UpdateID),
			zap.String("conversation_id", conv.Identity.Key()),
		)
		metrics.RecordAnomaly("duplicate_live_update")
	}
	msg.LiveUpdates[e.UpdateID] = model.LiveUpdate{Label: e.Label, Description: e.Description}
	return nil, nil
}

func handleImage(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ImageEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	if msg.Images == nil {
		msg.Images = make(map[string]string)
	}
	if _, exists := msg.Images[e.ImageID]; exists {
		ctx.Log.Warn("duplicate image id",
			zap.String("image_id", e.ImageID),
			zap.String("conversation_id", conv.Identity.Key()),
		)
		metrics.RecordAnomaly("duplicate_image")
	}
	msg.Images[e.ImageID] = e.URL
	return nil, nil
}

func handleClearMessage(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.Reset()
	return nil, nil
}

func handleUsage(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.UsageEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	usage := e.Usage
	msg.Usage = &usage
	return nil, nil
}

func handleTodoItem(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.TodoItemEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	for i := range msg.Tasks {
		if msg.Tasks[i].ID == e.Task.ID {
			msg.Tasks[i] = e.Task
			return nil, nil
		}
	}
	msg.Tasks = append(msg.Tasks, e.Task)
	return nil, nil
}

func handleConfirmationRequest(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ConfirmationRequestEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.ConfirmationRequests = append(msg.ConfirmationRequests, e.Request)
	if msg.ConfirmationStates == nil {
		msg.ConfirmationStates = make(map[string]model.ConfirmationState)
	}
	msg.ConfirmationStates[e.Request.ConfirmationID] = model.ConfirmationPending
	return nil, nil
}

// handleConfirmationStatus scans every message in the conversation for the
// reported confirmation id. An unknown id or an already-terminal state is an
// anomaly and leaves the model untouched.
func handleConfirmationStatus(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ConfirmationStatusEvent)
	for i := range conv.Messages {
		states := conv.Messages[i].ConfirmationStates
		current, ok := states[e.ConfirmationID]
		if !ok {
			continue
		}
		if current.Terminal() {
			ctx.Log.Warn("confirmation_status for terminal confirmation",
				zap.String("confirmation_id", e.ConfirmationID),
				zap.String("state", string(current)),
			)
			metrics.RecordAnomaly("confirmation_already_terminal")
			return nil, nil
		}
		states[e.ConfirmationID] = e.Status
		return nil, nil
	}
	ctx.Log.Warn("confirmation_status for unknown confirmation",
		zap.String("confirmation_id", e.ConfirmationID),
		zap.String("conversation_id", conv.Identity.Key()),
	)
	metrics.RecordAnomaly("unknown_confirmation")
	return nil, nil
}

func handleStateUpdate(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.StateUpdateEvent)
	conv.ServerState = e.State
	return nil, nil
}

// handleConversationID records the permanent identity on the conversation;
// re-keying the store happens in the after hook once this mutation is
// committed. A permanent identity never changes, so a second assignment
// with a different id violates the contract.
func handleConversationID(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ConversationIDEvent)
	if !conv.Identity.Temporary {
		if conv.Identity.ID == e.ConversationID {
			return nil, nil
		}
		metrics.IntegrityViolations.Inc()
		return nil, fmt.Errorf("conversation %q already has a permanent id, got %q: %w",
			conv.Identity.ID, e.ConversationID, model.ErrIntegrity)
	}
	side := &Side{PreviousKey: conv.Identity.Key()}
	conv.Identity = model.PersistedIdentity(e.ConversationID)
	return side, nil
}

func afterConversationID(ops StoreOps, ev model.Event, side *Side) error {
	if side == nil {
		return nil
	}
	e := ev.(model.ConversationIDEvent)
	return ops.PromoteIdentity(side.PreviousKey, e.ConversationID)
}

func handleFollowupMessages(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.FollowupMessagesEvent)
	conv.Followups = e.Messages
	return nil, nil
}

func handleConversationSummary(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ConversationSummaryEvent)
	conv.Summary = e.Summary
	return nil, nil
}

func handleError(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
	e := ev.(model.ErrorEvent)
	msg, err := targetMessage(conv, ctx)
	if err != nil {
		return nil, err
	}
	msg.Error = e.Message
	return nil, nil
}
