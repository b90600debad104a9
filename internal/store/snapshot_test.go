package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

func TestSnapshotFullRoundTrip(t *testing.T) {
	src := newTestStore()
	key := src.CurrentKey()

	conv, _ := src.Get(key)
	draft := conv.Clone()
	draft.AppendMessage(model.NewChatMessage(model.RoleUser, "hello"))
	answer := model.NewChatMessage(model.RoleAssistant, "hi there")
	draft.AppendMessage(answer)
	draft.Summary = "greeting"
	draft.Loading = true
	draft.Cancel = func() {}
	src.Commit(key, draft)

	data, err := src.MarshalSnapshot(ModeFull)
	require.NoError(t, err)

	dst := newTestStore()
	require.NoError(t, dst.RestoreJSON(data))

	got, ok := dst.Get(key)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hi there", got.Messages[1].Content)
	assert.Equal(t, "greeting", got.Summary)
	assert.Equal(t, key, dst.CurrentKey())

	// Runtime-only state never survives a restore.
	assert.False(t, got.Loading)
	assert.Nil(t, got.Cancel)
}

func TestSnapshotOptionsMode(t *testing.T) {
	src := newTestStore()
	key := src.CurrentKey()

	conv, _ := src.Get(key)
	draft := conv.Clone()
	draft.ChatOptions = map[string]any{"model": "gpt-4o"}
	draft.AppendMessage(model.NewChatMessage(model.RoleUser, "secret"))
	src.Commit(key, draft)

	data, err := src.MarshalSnapshot(ModeOptions)
	require.NoError(t, err)

	dst := newTestStore()
	require.NoError(t, dst.RestoreJSON(data))

	assert.Equal(t, 1, dst.Len(), "options mode must not carry conversations")
	assert.Equal(t, "gpt-4o", dst.Current().ChatOptions["model"])
	assert.Empty(t, dst.Current().Messages)
}

func TestRestoreRefreshesActiveGauge(t *testing.T) {
	convA := model.NewConversation()
	convB := model.NewConversation()

	dst := newTestStore()
	dst.Restore(&Snapshot{
		Conversations: []*model.Conversation{convA, convB},
		Current:       convA.Identity.Key(),
	})

	assert.Equal(t, float64(dst.Len()), testutil.ToFloat64(metrics.ConversationsActive))
}

func TestPromoteIdentityKeepsGaugeConsistent(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.PromoteIdentity(s.CurrentKey(), "conv-1"))
	assert.Equal(t, float64(s.Len()), testutil.ToFloat64(metrics.ConversationsActive))
}

func TestRestoreFallsBackWhenCurrentMissing(t *testing.T) {
	conv := model.NewConversation()
	conv.AppendMessage(model.NewChatMessage(model.RoleUser, "hello"))

	dst := newTestStore()
	dst.Restore(&Snapshot{
		Conversations: []*model.Conversation{conv},
		Current:       "gone",
	})

	current := dst.Current()
	require.NotNil(t, current)
	assert.NotEqual(t, "gone", current.Identity.Key())
	assert.Equal(t, 2, dst.Len())
}
