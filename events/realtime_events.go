package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a conversation message is persisted.
type MessageSentEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
}

// PresenceChangedEvent is emitted when a user's first connection opens or
// last connection closes.
type PresenceChangedEvent struct {
	UserID    string    `json:"user_id"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationCreatedEvent is published by other platform modules (quests,
// endorsements, moderation) to push a notification to a user in real time.
type NotificationCreatedEvent struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Kind           string         `json:"kind"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Event definitions for the realtime domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"realtime",
		"MessageSent",
		"v1",
	)

	PresenceChangedV1 = helper.EventDefinition[PresenceChangedEvent](
		"realtime",
		"PresenceChanged",
		"v1",
	)

	NotificationCreatedV1 = helper.EventDefinition[NotificationCreatedEvent](
		"notifications",
		"NotificationCreated",
		"v1",
	)
)
