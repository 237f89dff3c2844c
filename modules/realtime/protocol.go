package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
)

// Inbound event types.
const (
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkRead          = "mark_read"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
)

// Outbound event types.
const (
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventMessageError       = "message_error"
	EventMessagesMarkedRead = "messages_marked_read"
	EventMessageRead        = "message_read"
	EventMarkReadError      = "mark_read_error"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventNewNotification    = "new_notification"
	EventError              = "error"
)

// Decode errors.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InboundEvent is one of SendMessage, Typing, MarkRead, JoinConversation or
// LeaveConversation.
type InboundEvent interface {
	EventType() string
}

// SendMessage asks to persist and deliver a message.
type SendMessage struct {
	Type           string
	RecipientID    string
	Content        string
	ConversationID string
}

// Typing signals that the sender started or stopped typing.
type Typing struct {
	Start          bool
	RecipientID    string
	ConversationID string
	Type           string
}

// MarkRead marks a conversation read up to now.
type MarkRead struct {
	MessageIDs     []string
	ConversationID string
}

// JoinConversation asks to join a conversation room.
type JoinConversation struct {
	ConversationID string
}

// LeaveConversation leaves a conversation room.
type LeaveConversation struct {
	ConversationID string
}

func (SendMessage) EventType() string { return EventSendMessage }

func (t Typing) EventType() string {
	if t.Start {
		return EventTypingStart
	}
	return EventTypingStop
}

func (MarkRead) EventType() string          { return EventMarkRead }
func (JoinConversation) EventType() string  { return EventJoinConversation }
func (LeaveConversation) EventType() string { return EventLeaveConversation }

// DecodeEvent parses an inbound frame into its event variant. The returned
// type string is set whenever the envelope itself parsed.
func DecodeEvent(data []byte) (string, InboundEvent, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if f.Type == "" {
		return "", nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	var (
		ev  InboundEvent
		err error
	)
	switch f.Type {
	case EventSendMessage:
		var raw rawSendMessage
		if err = decodePayload(f.Payload, &raw); err == nil {
			ev = normalizeSendMessage(raw)
		}
	case EventTypingStart, EventTypingStop:
		var raw rawTyping
		if err = decodePayload(f.Payload, &raw); err == nil {
			ev = normalizeTyping(raw, f.Type == EventTypingStart)
		}
	case EventMarkRead:
		var raw rawMarkRead
		if err = decodePayload(f.Payload, &raw); err == nil {
			ev = normalizeMarkRead(raw)
		}
	case EventJoinConversation:
		var raw rawConversationRef
		if err = decodePayload(f.Payload, &raw); err == nil {
			ev = JoinConversation{ConversationID: raw.conversationID()}
		}
	case EventLeaveConversation:
		var raw rawConversationRef
		if err = decodePayload(f.Payload, &raw); err == nil {
			ev = LeaveConversation{ConversationID: raw.conversationID()}
		}
	default:
		return f.Type, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, f.Type)
	}
	if err != nil {
		return f.Type, nil, err
	}
	return f.Type, ev, nil
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Older mobile clients send snake_case keys and singular IDs; each raw
// struct accepts every shape seen in the field.

type rawConversationRef struct {
	ConversationID      string `json:"conversationId"`
	ConversationIDSnake string `json:"conversation_id"`
}

func (r rawConversationRef) conversationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.ConversationIDSnake
}

type rawSendMessage struct {
	rawConversationRef
	Type             string `json:"type"`
	RecipientID      string `json:"recipientId"`
	RecipientIDSnake string `json:"recipient_id"`
	Content          string `json:"content"`
}

type rawTyping struct {
	rawConversationRef
	Type             string `json:"type"`
	RecipientID      string `json:"recipientId"`
	RecipientIDSnake string `json:"recipient_id"`
}

type rawMarkRead struct {
	rawConversationRef
	MessageIDs      []string `json:"messageIds"`
	MessageID       string   `json:"messageId"`
	MessageIDsSnake []string `json:"message_ids"`
	MessageIDSnake  string   `json:"message_id"`
}

func normalizeSendMessage(raw rawSendMessage) SendMessage {
	return SendMessage{
		Type:           firstNonEmpty(raw.Type, messaging.ConversationDirect),
		RecipientID:    firstNonEmpty(raw.RecipientID, raw.RecipientIDSnake),
		Content:        raw.Content,
		ConversationID: raw.conversationID(),
	}
}

func normalizeTyping(raw rawTyping, start bool) Typing {
	return Typing{
		Start:          start,
		RecipientID:    firstNonEmpty(raw.RecipientID, raw.RecipientIDSnake),
		ConversationID: raw.conversationID(),
		Type:           raw.Type,
	}
}

// normalizeMarkRead merges plural and singular ID fields, keeping first-seen
// order and dropping blanks and duplicates.
func normalizeMarkRead(raw rawMarkRead) MarkRead {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, id := range raw.MessageIDs {
		add(id)
	}
	for _, id := range raw.MessageIDsSnake {
		add(id)
	}
	add(raw.MessageID)
	add(raw.MessageIDSnake)

	return MarkRead{
		MessageIDs:     ids,
		ConversationID: raw.conversationID(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MessagePayload is the body of new_message and message_sent.
type MessagePayload struct {
	messaging.Message
	SenderUsername string `json:"senderUsername"`
}

// ErrorPayload is the body of every error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// TypingPayload is the body of typing_start and typing_stop.
type TypingPayload struct {
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	ConversationID string `json:"conversationId,omitempty"`
	Type           string `json:"type,omitempty"`
}

// MarkedReadPayload acknowledges mark_read to the caller.
type MarkedReadPayload struct {
	MessageIDs     []string `json:"messageIds"`
	ConversationID string   `json:"conversationId"`
}

// MessageReadPayload is the read receipt sent to other participants.
type MessageReadPayload struct {
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// PresencePayload is the body of user_online and user_offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// Notification is pushed to a user as new_notification.
type Notification struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
