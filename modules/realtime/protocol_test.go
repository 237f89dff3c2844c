package realtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InboundEvent
		wantErr error
	}{
		{
			name:  "send message",
			input: `{"type":"send_message","payload":{"recipientId":"bob","content":"hi"}}`,
			want:  SendMessage{Type: "direct", RecipientID: "bob", Content: "hi"},
		},
		{
			name:  "send message snake case with conversation",
			input: `{"type":"send_message","payload":{"type":"admin","recipient_id":"admin","content":"help","conversation_id":"admin_u1"}}`,
			want:  SendMessage{Type: "admin", RecipientID: "admin", Content: "help", ConversationID: "admin_u1"},
		},
		{
			name:  "typing start by conversation",
			input: `{"type":"typing_start","payload":{"conversationId":"c1"}}`,
			want:  Typing{Start: true, ConversationID: "c1"},
		},
		{
			name:  "typing stop by recipient",
			input: `{"type":"typing_stop","payload":{"recipientId":"bob"}}`,
			want:  Typing{Start: false, RecipientID: "bob"},
		},
		{
			name:  "join conversation",
			input: `{"type":"join_conversation","payload":{"conversationId":"c1"}}`,
			want:  JoinConversation{ConversationID: "c1"},
		},
		{
			name:  "leave conversation without payload",
			input: `{"type":"leave_conversation"}`,
			want:  LeaveConversation{},
		},
		{
			name:    "unknown type",
			input:   `{"type":"delete_everything","payload":{}}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "missing type",
			input:   `{"payload":{}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "payload of wrong shape",
			input:   `{"type":"mark_read","payload":{"messageIds":"m1"}}`,
			wantErr: ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ev, err := DecodeEvent([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeEvent_ReportsType(t *testing.T) {
	eventType, _, err := DecodeEvent([]byte(`{"type":"send_message","payload":[1,2]}`))
	require.Error(t, err)
	assert.Equal(t, EventSendMessage, eventType)
	assert.Equal(t, EventMessageError, errorEventFor(eventType))
}

func TestNormalizeMarkRead(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  MarkRead
	}{
		{
			name:  "plural",
			input: `{"messageIds":["m1","m2"],"conversationId":"c1"}`,
			want:  MarkRead{MessageIDs: []string{"m1", "m2"}, ConversationID: "c1"},
		},
		{
			name:  "singular",
			input: `{"messageId":"m1"}`,
			want:  MarkRead{MessageIDs: []string{"m1"}},
		},
		{
			name:  "snake case",
			input: `{"message_ids":["m1"],"message_id":"m2","conversation_id":"c1"}`,
			want:  MarkRead{MessageIDs: []string{"m1", "m2"}, ConversationID: "c1"},
		},
		{
			name:  "duplicates and blanks",
			input: `{"messageIds":["m1","","m1"],"messageId":"m1"}`,
			want:  MarkRead{MessageIDs: []string{"m1"}},
		},
		{
			name:  "camel case wins for conversation",
			input: `{"messageId":"m1","conversationId":"c1","conversation_id":"c2"}`,
			want:  MarkRead{MessageIDs: []string{"m1"}, ConversationID: "c1"},
		},
		{
			name:  "empty",
			input: `{}`,
			want:  MarkRead{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ev, err := DecodeEvent([]byte(`{"type":"mark_read","payload":` + tt.input + `}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	data, err := encodeFrame(EventMessageRead, MessageReadPayload{MessageID: "m1", UserID: "bob", ConversationID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"message_read","payload":{"messageId":"m1","userId":"bob","conversationId":"c1"}}`,
		string(data))
}

func TestValidateSend(t *testing.T) {
	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		ev   SendMessage
		want error
	}{
		{"valid", SendMessage{RecipientID: "bob", Content: "hi"}, nil},
		{"empty", SendMessage{RecipientID: "bob", Content: ""}, ErrMessageEmpty},
		{"whitespace", SendMessage{RecipientID: "bob", Content: "  \n"}, ErrMessageEmpty},
		{"too long", SendMessage{RecipientID: "bob", Content: string(long)}, ErrMessageTooLong},
		{"invalid utf8", SendMessage{RecipientID: "bob", Content: "\xff\xfe"}, ErrMessageInvalid},
		{"no recipient", SendMessage{Content: "hi"}, ErrMissingRecipient},
		{"self", SendMessage{RecipientID: "alice", Content: "hi"}, ErrSelfMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSend(tt.ev, "alice"))
		})
	}
}
