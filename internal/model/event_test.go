package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Event
	}{
		{
			name: "text",
			data: `{"type":"text","content":"Hello"}`,
			want: TextEvent{Text: "Hello"},
		},
		{
			name: "reference",
			data: `{"type":"reference","content":{"title":"Docs","url":"https://example.com","snippet":"..."}}`,
			want: ReferenceEvent{Reference: Reference{Title: "Docs", URL: "https://example.com", Snippet: "..."}},
		},
		{
			name: "message_id",
			data: `{"type":"message_id","content":"msg-42"}`,
			want: MessageIDEvent{MessageID: "msg-42"},
		},
		{
			name: "live_update",
			data: `{"type":"live_update","content":{"update_id":"u1","type":"start","label":"Searching"}}`,
			want: LiveUpdateEvent{UpdateID: "u1", Type: LiveUpdateStart, Label: "Searching"},
		},
		{
			name: "image",
			data: `{"type":"image","content":{"id":"img1","url":"https://example.com/a.png"}}`,
			want: ImageEvent{ImageID: "img1", URL: "https://example.com/a.png"},
		},
		{
			name: "clear_message",
			data: `{"type":"clear_message"}`,
			want: ClearMessageEvent{},
		},
		{
			name: "usage",
			data: `{"type":"usage","content":{"input_tokens":10,"output_tokens":20,"model":"gpt-4o"}}`,
			want: UsageEvent{Usage: UsageStats{InputTokens: 10, OutputTokens: 20, Model: "gpt-4o"}},
		},
		{
			name: "confirmation_status",
			data: `{"type":"confirmation_status","content":{"confirmation_id":"c1","status":"confirmed"}}`,
			want: ConfirmationStatusEvent{ConfirmationID: "c1", Status: ConfirmationConfirmed},
		},
		{
			name: "conversation_id",
			data: `{"type":"conversation_id","content":"conv-7"}`,
			want: ConversationIDEvent{ConversationID: "conv-7"},
		},
		{
			name: "followup_messages",
			data: `{"type":"followup_messages","content":["a","b"]}`,
			want: FollowupMessagesEvent{Messages: []string{"a", "b"}},
		},
		{
			name: "error",
			data: `{"type":"error","content":"upstream timeout"}`,
			want: ErrorEvent{Message: "upstream timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEventStateUpdateKeepsRawPayload(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"state_update","content":{"cursor":"abc","depth":3}}`))
	require.NoError(t, err)

	ev, ok := got.(StateUpdateEvent)
	require.True(t, ok)
	assert.JSONEq(t, `{"cursor":"abc","depth":3}`, string(ev.State))
}

func TestDecodeEventUnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"telemetry","content":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event kind")
}

func TestDecodeEventMalformedPayload(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"text","content":{"not":"a string"}}`))
	require.Error(t, err)
}

func TestEncodeEventRoundTrip(t *testing.T) {
	events := []Event{
		TextEvent{Text: "hi"},
		LiveUpdateEvent{UpdateID: "u1", Type: LiveUpdateDone, Label: "Done"},
		ClearMessageEvent{},
		ConversationIDEvent{ConversationID: "conv-1"},
		ErrorEvent{Message: "boom"},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		require.NoError(t, err)

		var env map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &env))
		assert.JSONEq(t, `"`+string(ev.Kind())+`"`, string(env["type"]))

		back, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.Equal(t, ev, back)
	}
}
