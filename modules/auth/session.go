package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound is returned when no session backs a refresh token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned when the session was logged out.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when the session lifetime has passed.
	ErrSessionExpired = errors.New("session expired")
)

// RefreshSession is the result of a successful refresh-token validation.
type RefreshSession struct {
	UserID    string
	SessionID string
}

// SessionStore validates refresh tokens against persisted sessions.
type SessionStore struct {
	db  *gorm.DB
	jwt *JWTManager
	now func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *gorm.DB, jwtManager *JWTManager) *SessionStore {
	return &SessionStore{
		db:  db,
		jwt: jwtManager,
		now: time.Now,
	}
}

// Create opens a new session for userID and returns a refresh token for it.
func (s *SessionStore) Create(ctx context.Context, userID string, ttl time.Duration) (*messaging.Session, string, error) {
	now := s.now()
	session := &messaging.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.jwt.GenerateRefreshToken(userID, session.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return session, token, nil
}

// ValidateRefresh checks the refresh token signature and the session behind it.
func (s *SessionStore) ValidateRefresh(ctx context.Context, token string) (*RefreshSession, error) {
	claims, err := s.jwt.ValidateRefreshToken(token)
	if err != nil {
		return nil, err
	}

	var session messaging.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", claims.SessionID()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.ExpiresAt.After(s.now()) {
		return nil, ErrSessionExpired
	}

	return &RefreshSession{
		UserID:    session.UserID,
		SessionID: session.ID,
	}, nil
}

// TouchActivity records activity on the session.
func (s *SessionStore) TouchActivity(ctx context.Context, sessionID string) error {
	result := s.db.WithContext(ctx).Model(&messaging.Session{}).
		Where("id = ?", sessionID).
		Update("last_activity_at", s.now())
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke ends the session so its refresh token stops working.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	result := s.db.WithContext(ctx).Model(&messaging.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// isSessionRejection reports whether err means the refresh credential is
// unusable rather than that the store failed.
func isSessionRejection(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrSessionExpired)
}
