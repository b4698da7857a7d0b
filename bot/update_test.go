package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Update
	}{
		{
			name: "text",
			body: `{"update_id":1,"message":{"message_id":7,"chat":{"id":42},"text":"  Taxi 30 lei "}}`,
			want: TextMessage{ChatID: 42, MessageID: 7, Text: "Taxi 30 lei"},
		},
		{
			name: "command with bot suffix",
			body: `{"message":{"chat":{"id":42},"text":"/Add_Category@expense_bot Sănătate mintală"}}`,
			want: CommandMessage{ChatID: 42, Command: "add_category", Args: "Sănătate mintală"},
		},
		{
			name: "voice",
			body: `{"message":{"message_id":3,"chat":{"id":5},"voice":{"file_id":"F1","duration":4}}}`,
			want: VoiceMessage{ChatID: 5, MessageID: 3, FileID: "F1", Duration: 4},
		},
		{
			name: "edited text",
			body: `{"edited_message":{"message_id":9,"chat":{"id":42},"text":"Cafea 45"}}`,
			want: TextMessage{ChatID: 42, MessageID: 9, Text: "Cafea 45"},
		},
		{
			name: "callback",
			body: `{"callback_query":{"id":"cb1","data":"v1:a:abc","message":{"message_id":11,"chat":{"id":42}}}}`,
			want: CallbackClick{ID: "cb1", ChatID: 42, MessageID: 11, Data: "v1:a:abc"},
		},
		{
			name: "sticker",
			body: `{"message":{"chat":{"id":42},"sticker":{"file_id":"x"}}}`,
			want: Ignorable{ChatID: 42, Reason: "empty message"},
		},
		{
			name: "edited without content",
			body: `{"edited_message":{"chat":{"id":42}}}`,
			want: Ignorable{ChatID: 42, Reason: "empty message"},
		},
		{
			name: "callback without message",
			body: `{"callback_query":{"id":"cb1","data":"v1:a:abc"}}`,
			want: Ignorable{Reason: "callback without message"},
		},
		{
			name: "unknown shape",
			body: `{"my_chat_member":{}}`,
			want: Ignorable{Reason: "unsupported update"},
		},
		{
			name: "message without chat",
			body: `{"message":{"text":"hi"}}`,
			want: Ignorable{Reason: "message without chat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"message":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCallbackCodec(t *testing.T) {
	id := "3f1c2a9e-6b7d-4e1a-9c2b-8d3e4f5a6b7c"

	action, got, err := ParseCallback(EncodeCallback(ActionApprove, id))
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, action)
	assert.Equal(t, id, got)

	action, _, err = ParseCallback(EncodeCallback(ActionReject, id))
	require.NoError(t, err)
	assert.Equal(t, ActionReject, action)

	// Telegram 限制 64 字节
	assert.LessOrEqual(t, len(EncodeCallback(ActionApprove, id)), 64)

	for _, bad := range []string{"", "confirm_" + id, "v2:a:" + id, "v1:x:" + id, "v1:a:", "v1:a:b:c", "v1:a"} {
		_, _, err := ParseCallback(bad)
		assert.ErrorIs(t, err, ErrBadCallback, bad)
	}
}
