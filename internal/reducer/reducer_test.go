package reducer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

// fakeOps records identity promotions requested by after hooks.
type fakeOps struct {
	tempKey     string
	permanentID string
	err         error
}

func (f *fakeOps) PromoteIdentity(tempKey, permanentID string) error {
	f.tempKey = tempKey
	f.permanentID = permanentID
	return f.err
}

func newTurn(t *testing.T) (*Registry, *model.Conversation, Ctx) {
	t.Helper()
	log := logger.Nop()
	conv := model.NewConversation()
	conv.AppendMessage(model.NewChatMessage(model.RoleUser, "question"))
	placeholder := model.NewChatMessage(model.RoleAssistant, "")
	conv.AppendMessage(placeholder)
	return Default(log), conv, Ctx{MessageID: placeholder.ID, Log: log}
}

func dispatch(t *testing.T, r *Registry, conv *model.Conversation, ctx Ctx, evs ...model.Event) {
	t.Helper()
	for _, ev := range evs {
		_, err := r.Dispatch(conv, ev, ctx)
		require.NoError(t, err)
	}
}

func TestTextFragmentsConcatenateInOrder(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.TextEvent{Text: "Hi"},
		model.TextEvent{Text: " there"},
		model.TextEvent{Text: "!"},
	)

	assert.Equal(t, "Hi there!", conv.Messages[1].Content)
}

func TestClearMessageResetsAccumulatedState(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.TextEvent{Text: "draft answer"},
		model.ReferenceEvent{Reference: model.Reference{Title: "doc"}},
		model.ClearMessageEvent{},
		model.TextEvent{Text: "final answer"},
	)

	msg := conv.Messages[1]
	assert.Equal(t, "final answer", msg.Content)
	assert.Empty(t, msg.References)
}

func TestMessageIDAndUsage(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.MessageIDEvent{MessageID: "srv-55"},
		model.UsageEvent{Usage: model.UsageStats{InputTokens: 12, OutputTokens: 40}},
	)

	msg := conv.Messages[1]
	assert.Equal(t, "srv-55", msg.ServerID)
	require.NotNil(t, msg.Usage)
	assert.Equal(t, 40, msg.Usage.OutputTokens)
}

func TestLiveUpdateUpsert(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.LiveUpdateEvent{UpdateID: "u1", Type: model.LiveUpdateStart, Label: "Searching"},
		model.LiveUpdateEvent{UpdateID: "u1", Type: model.LiveUpdateProgress, Label: "Searching", Description: "3 results"},
	)

	updates := conv.Messages[1].LiveUpdates
	require.Len(t, updates, 1)
	assert.Equal(t, "3 results", updates["u1"].Description)
}

func TestDuplicateLiveUpdateStartOverwrites(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.LiveUpdateEvent{UpdateID: "u1", Type: model.LiveUpdateStart, Label: "First"},
		model.LiveUpdateEvent{UpdateID: "u1", Type: model.LiveUpdateStart, Label: "Second"},
	)

	updates := conv.Messages[1].LiveUpdates
	require.Len(t, updates, 1, "duplicate start must never create a second entry")
	assert.Equal(t, "Second", updates["u1"].Label)
}

func TestTodoItemUpsertByID(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.TodoItemEvent{Task: model.TodoTask{ID: "t1", Label: "read file"}},
		model.TodoItemEvent{Task: model.TodoTask{ID: "t2", Label: "write file"}},
		model.TodoItemEvent{Task: model.TodoTask{ID: "t1", Label: "read file", Done: true}},
	)

	tasks := conv.Messages[1].Tasks
	require.Len(t, tasks, 2)
	assert.True(t, tasks[0].Done)
	assert.Equal(t, "t2", tasks[1].ID)
}

func TestConfirmationLifecycle(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.ConfirmationRequestEvent{Request: model.ConfirmationRequest{ConfirmationID: "c1", ToolName: "delete_file"}},
	)
	assert.Equal(t, model.ConfirmationPending, conv.Messages[1].ConfirmationStates["c1"])

	dispatch(t, r, conv, ctx,
		model.ConfirmationStatusEvent{ConfirmationID: "c1", Status: model.ConfirmationConfirmed},
	)
	assert.Equal(t, model.ConfirmationConfirmed, conv.Messages[1].ConfirmationStates["c1"])

	// A second status for a terminal confirmation is ignored.
	dispatch(t, r, conv, ctx,
		model.ConfirmationStatusEvent{ConfirmationID: "c1", Status: model.ConfirmationDeclined},
	)
	assert.Equal(t, model.ConfirmationConfirmed, conv.Messages[1].ConfirmationStates["c1"])
}

func TestConfirmationStatusUnknownIDIsNoOp(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.ConfirmationStatusEvent{ConfirmationID: "ghost", Status: model.ConfirmationConfirmed},
	)
	assert.Empty(t, conv.Messages[1].ConfirmationStates)
}

func TestConversationScopedEvents(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.StateUpdateEvent{State: json.RawMessage(`{"cursor":"abc"}`)},
		model.FollowupMessagesEvent{Messages: []string{"and then?"}},
		model.ConversationSummaryEvent{Summary: "a short chat"},
	)

	assert.JSONEq(t, `{"cursor":"abc"}`, string(conv.ServerState))
	assert.Equal(t, []string{"and then?"}, conv.Followups)
	assert.Equal(t, "a short chat", conv.Summary)
}

func TestErrorEventOverwrites(t *testing.T) {
	r, conv, ctx := newTurn(t)

	dispatch(t, r, conv, ctx,
		model.ErrorEvent{Message: "first failure"},
		model.ErrorEvent{Message: "second failure"},
	)
	assert.Equal(t, "second failure", conv.Messages[1].Error)
}

func TestConversationIDPromotion(t *testing.T) {
	r, conv, ctx := newTurn(t)
	tempKey := conv.Identity.Key()

	after, err := r.Dispatch(conv, model.ConversationIDEvent{ConversationID: "conv-77"}, ctx)
	require.NoError(t, err)
	require.NotNil(t, after)

	assert.False(t, conv.Identity.Temporary)
	assert.Equal(t, "conv-77", conv.Identity.ID)

	ops := &fakeOps{}
	require.NoError(t, after(ops))
	assert.Equal(t, tempKey, ops.tempKey)
	assert.Equal(t, "conv-77", ops.permanentID)
}

func TestConversationIDRepeatSameIDIsNoOp(t *testing.T) {
	r, conv, ctx := newTurn(t)
	conv.Identity = model.PersistedIdentity("conv-77")

	after, err := r.Dispatch(conv, model.ConversationIDEvent{ConversationID: "conv-77"}, ctx)
	require.NoError(t, err)

	// No side result, so the bound hook must not promote anything.
	ops := &fakeOps{}
	require.NoError(t, after(ops))
	assert.Empty(t, ops.permanentID)
}

func TestConversationIDConflictIsIntegrityViolation(t *testing.T) {
	r, conv, ctx := newTurn(t)
	conv.Identity = model.PersistedIdentity("conv-77")

	_, err := r.Dispatch(conv, model.ConversationIDEvent{ConversationID: "conv-99"}, ctx)
	assert.ErrorIs(t, err, model.ErrIntegrity)
	assert.Equal(t, "conv-77", conv.Identity.ID)
}

func TestMissingTargetMessageIsIntegrityViolation(t *testing.T) {
	log := logger.Nop()
	r := Default(log)
	conv := model.NewConversation()

	_, err := r.Dispatch(conv, model.TextEvent{Text: "hi"}, Ctx{MessageID: "missing", Log: log})
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestDispatchUnregisteredKind(t *testing.T) {
	log := logger.Nop()
	r := NewRegistry(log)
	conv := model.NewConversation()

	_, err := r.Dispatch(conv, model.TextEvent{Text: "hi"}, Ctx{Log: log})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestRegisterTwiceLastWins(t *testing.T) {
	log := logger.Nop()
	r := Default(log)

	called := false
	r.Register(model.EventText, func(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error) {
		called = true
		return nil, nil
	}, nil)

	conv := model.NewConversation()
	_, err := r.Dispatch(conv, model.TextEvent{Text: "hi"}, Ctx{Log: log})
	require.NoError(t, err)
	assert.True(t, called)
}
