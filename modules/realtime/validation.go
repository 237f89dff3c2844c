package realtime

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the largest accepted message body in bytes.
const MaxMessageLength = 5000

// Errors reported to clients on the same connection.
var (
	ErrMessageEmpty     = errors.New("message content cannot be empty")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrMessageInvalid   = errors.New("message contains invalid characters")
	ErrMissingRecipient = errors.New("recipient is required")
	ErrSelfMessage      = errors.New("cannot send a message to yourself")
	ErrNoMessageIDs     = errors.New("at least one message id is required")
	ErrNotParticipant   = errors.New("not a participant")
	ErrAdminOnly        = errors.New("only staff can open an admin conversation")
	ErrMessageNotFound  = errors.New("message not found")
	ErrRateLimited      = errors.New("rate limit exceeded")

	errSendFailed     = errors.New("failed to send message")
	errMarkReadFailed = errors.New("failed to mark messages read")
	errInternal       = errors.New("internal error")
)

// ValidateMessage validates message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// ValidateSend checks a send_message event from senderID.
func ValidateSend(ev SendMessage, senderID string) error {
	if err := ValidateMessage(ev.Content); err != nil {
		return err
	}
	if ev.RecipientID == "" {
		return ErrMissingRecipient
	}
	if ev.RecipientID == senderID {
		return ErrSelfMessage
	}
	return nil
}
