package messaging

import (
	"time"
)

// AdminRecipient is the recipient placeholder that addresses platform staff
// instead of a single user.
const AdminRecipient = "admin"

// Conversation types.
const (
	ConversationDirect = "direct"
	ConversationAdmin  = "admin"
)

// User represents a platform user as seen by the real-time service.
type User struct {
	ID          string `gorm:"primaryKey;type:text"`
	Username    string `gorm:"uniqueIndex;not null;type:text"`
	IsAdmin     bool   `gorm:"not null;default:false"`
	IsSuspended bool   `gorm:"not null;default:false"`
	IsOnline    bool   `gorm:"not null;default:false;index"`
	LastSeenAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for the User entity.
func (User) TableName() string {
	return "users"
}

// Session is a long-lived login session backing a refresh token.
type Session struct {
	ID             string `gorm:"primaryKey;type:text"`
	UserID         string `gorm:"index;not null;type:text"`
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	LastActivityAt *time.Time
	CreatedAt      time.Time
}

// TableName returns the table name for the Session entity.
func (Session) TableName() string {
	return "sessions"
}

// Conversation holds per-conversation metadata.
type Conversation struct {
	ID                 string `gorm:"primaryKey;type:text"`
	Type               string `gorm:"not null;type:text"`
	LastMessageAt      *time.Time
	LastMessagePreview string `gorm:"size:120"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName returns the table name for the Conversation entity.
func (Conversation) TableName() string {
	return "conversations"
}

// Participant links a user to a conversation and records how far they have read.
type Participant struct {
	ConversationID string `gorm:"primaryKey;type:text"`
	UserID         string `gorm:"primaryKey;type:text;index"`
	LastReadAt     *time.Time
	CreatedAt      time.Time
}

// TableName returns the table name for the Participant entity.
func (Participant) TableName() string {
	return "conversation_participants"
}

// Message represents a persisted conversation message.
type Message struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	ConversationID string    `gorm:"index;not null;type:text" json:"conversationId"`
	Type           string    `gorm:"not null;type:text" json:"type"`
	SenderID       string    `gorm:"index;not null;type:text" json:"senderId"`
	RecipientID    string    `gorm:"not null;type:text" json:"recipientId"`
	Content        string    `gorm:"not null" json:"content"`
	IsRead         bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName returns the table name for the Message entity.
func (Message) TableName() string {
	return "messages"
}

// Principal is the authenticated identity attached to a connection.
type Principal struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	Method   string `json:"method"`
}
