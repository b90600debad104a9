package debug

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-core/internal/config"
	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/internal/store"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	cfg := &config.Config{
		DebugAddr:         "127.0.0.1:0",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}
	st := store.New(logger.Nop())
	srv := NewServer(cfg, st, logger.Nop())

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, st
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]any
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["conversations"])
}

func TestListConversations(t *testing.T) {
	ts, st := newTestServer(t)

	key := st.CurrentKey()
	conv, _ := st.Get(key)
	draft := conv.Clone()
	draft.AppendMessage(model.NewChatMessage(model.RoleUser, "hello"))
	draft.Summary = "short chat"
	st.Commit(key, draft)

	var body struct {
		Conversations []struct {
			ID       string `json:"id"`
			Current  bool   `json:"current"`
			Messages int    `json:"messages"`
			Summary  string `json:"summary"`
		} `json:"conversations"`
	}
	resp := getJSON(t, ts.URL+"/debug/conversations", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, key, body.Conversations[0].ID)
	assert.True(t, body.Conversations[0].Current)
	assert.Equal(t, 1, body.Conversations[0].Messages)
	assert.Equal(t, "short chat", body.Conversations[0].Summary)
}

func TestGetConversation(t *testing.T) {
	ts, st := newTestServer(t)
	key := st.CurrentKey()

	var conv model.Conversation
	resp := getJSON(t, ts.URL+"/debug/conversations/"+key, &conv)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, key, conv.Identity.ID)

	resp = getJSON(t, ts.URL+"/debug/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetEvents(t *testing.T) {
	ts, st := newTestServer(t)
	key := st.CurrentKey()

	conv, _ := st.Get(key)
	draft := conv.Clone()
	draft.BeginTurn()
	draft.LogEvent(model.TextEvent{Text: "Hi"})
	draft.LogEvent(model.ConversationSummaryEvent{Summary: "s"})
	st.Commit(key, draft)

	var body struct {
		ConversationID string              `json:"conversation_id"`
		Turns          [][]json.RawMessage `json:"turns"`
	}
	resp := getJSON(t, ts.URL+"/debug/conversations/"+key+"/events", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, key, body.ConversationID)
	require.Len(t, body.Turns, 1)
	require.Len(t, body.Turns[0], 2)
	assert.JSONEq(t, `{"type":"text","content":"Hi"}`, string(body.Turns[0][0]))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
