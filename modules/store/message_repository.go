package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPreviewLength = 120

var (
	// ErrMessageNotFound is returned when a message is not found.
	ErrMessageNotFound = errors.New("message not found")
	// ErrParticipantNotFound is returned when no matching participant exists.
	ErrParticipantNotFound = errors.New("participant not found")
)

// ConversationMeta describes the conversation state to record after a send.
type ConversationMeta struct {
	ConversationID string
	Type           string
	ParticipantIDs []string
	LastMessageAt  time.Time
	Preview        string
}

// MessageRepository stores messages, conversations and participants.
type MessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

// CreateMessage persists a new message. An empty conversationID is derived
// from the type and the two parties.
func (r *MessageRepository) CreateMessage(ctx context.Context, convType, senderID, recipientID, content, conversationID string) (*messaging.Message, error) {
	if convType == "" {
		convType = messaging.ConversationDirect
	}
	if conversationID == "" {
		conversationID = messaging.ConversationID(convType, senderID, recipientID)
	}

	now := r.now()
	msg := &messaging.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Type:           convType,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// UpsertConversationMeta creates the conversation if needed, refreshes its
// last-message fields and makes sure every participant row exists.
func (r *MessageRepository) UpsertConversationMeta(ctx context.Context, meta ConversationMeta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lastAt := meta.LastMessageAt
		conv := messaging.Conversation{
			ID:                 meta.ConversationID,
			Type:               meta.Type,
			LastMessageAt:      &lastAt,
			LastMessagePreview: preview(meta.Preview),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_message_at", "last_message_preview", "updated_at"}),
		}).Create(&conv).Error; err != nil {
			return fmt.Errorf("failed to upsert conversation: %w", err)
		}

		for _, userID := range meta.ParticipantIDs {
			if userID == "" || userID == messaging.AdminRecipient {
				continue
			}
			p := messaging.Participant{ConversationID: meta.ConversationID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				return fmt.Errorf("failed to upsert participant: %w", err)
			}
		}
		return nil
	})
}

// FindOtherParticipant returns a participant of the conversation other than
// excludeUserID.
func (r *MessageRepository) FindOtherParticipant(ctx context.Context, conversationID, excludeUserID string) (string, error) {
	var p messaging.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id <> ?", conversationID, excludeUserID).
		Order("created_at ASC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrParticipantNotFound
		}
		return "", fmt.Errorf("failed to find participant: %w", err)
	}
	return p.UserID, nil
}

// FindParticipant returns the participant row for userID in the conversation.
func (r *MessageRepository) FindParticipant(ctx context.Context, conversationID, userID string) (*messaging.Participant, error) {
	var p messaging.Participant
	err := r.db.WithContext(ctx).
		First(&p, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return &p, nil
}

// ListParticipants returns all participants of a conversation.
func (r *MessageRepository) ListParticipants(ctx context.Context, conversationID string) ([]messaging.Participant, error) {
	var participants []messaging.Participant
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

// UpdateParticipantLastRead moves the participant's read marker to at. The
// marker never moves backwards. Messages from other senders up to at are
// flagged read in the same transaction.
func (r *MessageRepository) UpdateParticipantLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p messaging.Participant
		if err := tx.First(&p, "conversation_id = ? AND user_id = ?", conversationID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return fmt.Errorf("failed to find participant: %w", err)
		}

		if err := tx.Model(&messaging.Participant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Where("last_read_at IS NULL OR last_read_at < ?", at).
			Update("last_read_at", at).Error; err != nil {
			return fmt.Errorf("failed to update last read: %w", err)
		}

		if err := tx.Model(&messaging.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ? AND created_at <= ?", conversationID, userID, false, at).
			Updates(map[string]any{"is_read": true, "updated_at": at}).Error; err != nil {
			return fmt.Errorf("failed to flag messages read: %w", err)
		}
		return nil
	})
}

// FindMessageConversation returns the conversation a message belongs to.
func (r *MessageRepository) FindMessageConversation(ctx context.Context, messageID string) (string, error) {
	var msg messaging.Message
	err := r.db.WithContext(ctx).Select("conversation_id").First(&msg, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMessageNotFound
		}
		return "", fmt.Errorf("failed to find message: %w", err)
	}
	return msg.ConversationID, nil
}

func preview(content string) string {
	if len(content) <= maxPreviewLength {
		return content
	}
	cut := maxPreviewLength
	for cut > 0 && !utf8.RuneStartOf(content, cut) {
		cut--
	}
	return content[:cut]
}
