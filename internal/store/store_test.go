package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

func newTestStore() *Store {
	return New(logger.Nop())
}

func TestNewStoreSeedsCurrentConversation(t *testing.T) {
	s := newTestStore()

	conv := s.Current()
	require.NotNil(t, conv)
	assert.True(t, conv.Identity.Temporary)
	assert.Equal(t, conv.Identity.Key(), s.CurrentKey())
	assert.Equal(t, 1, s.Len())
}

func TestCurrentRecreatesAfterDanglingPointer(t *testing.T) {
	s := newTestStore()
	first := s.Current()

	require.NoError(t, s.Delete(first.Identity.Key()))

	second := s.Current()
	require.NotNil(t, second)
	assert.NotEqual(t, first.Identity.Key(), second.Identity.Key())
}

func TestCurrentSnapshotConsistent(t *testing.T) {
	s := newTestStore()

	key, conv := s.CurrentSnapshot()
	require.NotNil(t, conv)
	assert.Equal(t, key, conv.Identity.Key())

	require.NoError(t, s.Delete(key))

	key2, conv2 := s.CurrentSnapshot()
	require.NotNil(t, conv2)
	assert.Equal(t, key2, conv2.Identity.Key())
	assert.NotEqual(t, key, key2)
}

func TestCommitIfPresent(t *testing.T) {
	s := newTestStore()
	key := s.CurrentKey()

	conv, _ := s.Get(key)
	draft := conv.Clone()
	draft.Summary = "updated"
	assert.True(t, s.CommitIfPresent(key, draft))

	got, _ := s.Get(key)
	assert.Equal(t, "updated", got.Summary)

	require.NoError(t, s.Delete(key))
	assert.False(t, s.CommitIfPresent(key, draft), "commit must not re-insert a deleted key")
	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestSelectUnknownConversation(t *testing.T) {
	s := newTestStore()
	err := s.Select("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteActiveConversationRepointsFirst(t *testing.T) {
	s := newTestStore()
	key := s.CurrentKey()

	canceled := false
	conv, _ := s.Get(key)
	draft := conv.Clone()
	draft.Cancel = func() { canceled = true }
	s.Commit(key, draft)

	require.NoError(t, s.Delete(key))

	assert.True(t, canceled, "deleting a streaming conversation must cancel it")
	assert.NotEqual(t, key, s.CurrentKey())
	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestDeleteUnknownConversation(t *testing.T) {
	s := newTestStore()
	assert.ErrorIs(t, s.Delete("missing"), model.ErrNotFound)
}

func TestNewConversationCollectsAbandonedDrafts(t *testing.T) {
	s := newTestStore()
	emptyDraft := s.CurrentKey()

	// A conversation with content must survive the sweep.
	kept := s.NewConversation()
	draft := kept.Clone()
	draft.AppendMessage(model.NewChatMessage(model.RoleUser, "keep me"))
	s.Commit(kept.Identity.Key(), draft)

	fresh := s.NewConversation()

	_, ok := s.Get(emptyDraft)
	assert.False(t, ok, "empty temporary draft should be garbage-collected")
	_, ok = s.Get(kept.Identity.Key())
	assert.True(t, ok)
	assert.Equal(t, fresh.Identity.Key(), s.CurrentKey())
}

func TestPromoteIdentity(t *testing.T) {
	s := newTestStore()
	tempKey := s.CurrentKey()

	require.NoError(t, s.PromoteIdentity(tempKey, "conv-100"))

	_, ok := s.Get(tempKey)
	assert.False(t, ok)

	conv, ok := s.Get("conv-100")
	require.True(t, ok)
	assert.False(t, conv.Identity.Temporary)
	assert.Equal(t, "conv-100", conv.Identity.ID)
	assert.Equal(t, "conv-100", s.CurrentKey())
}

func TestPromoteIdentityMissingSource(t *testing.T) {
	s := newTestStore()
	err := s.PromoteIdentity("ghost", "conv-1")
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestPromoteIdentityTargetCollision(t *testing.T) {
	s := newTestStore()
	tempKey := s.CurrentKey()
	require.NoError(t, s.PromoteIdentity(tempKey, "conv-1"))

	other := s.NewConversation()
	err := s.PromoteIdentity(other.Identity.Key(), "conv-1")
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestRemoveLastMessage(t *testing.T) {
	s := newTestStore()
	key := s.CurrentKey()

	conv, _ := s.Get(key)
	draft := conv.Clone()
	draft.AppendMessage(model.NewChatMessage(model.RoleUser, "hello"))
	draft.AppendMessage(model.NewChatMessage(model.RoleAssistant, ""))
	s.Commit(key, draft)

	require.NoError(t, s.RemoveLastMessage(key))

	got, _ := s.Get(key)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)

	assert.ErrorIs(t, s.RemoveLastMessage("missing"), model.ErrNotFound)
}

func TestListOrdered(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.PromoteIdentity(s.CurrentKey(), "bbb"))
	conv := s.NewConversation()
	require.NoError(t, s.PromoteIdentity(conv.Identity.Key(), "aaa"))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "aaa", list[0].Identity.Key())
	assert.Equal(t, "bbb", list[1].Identity.Key())
}
