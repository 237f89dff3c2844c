package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when a user is not found.
var ErrUserNotFound = errors.New("user not found")

// UserRepository is the user directory backed by GORM.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create saves a new user.
func (r *UserRepository) Create(ctx context.Context, user *messaging.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID finds a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*messaging.User, error) {
	var user messaging.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// SetOnline flips the online flag and records the last-seen time.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&messaging.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_online": online, "last_seen_at": at})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to set online status: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListOnline returns the IDs of users persisted as online.
func (r *UserRepository) ListOnline(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&messaging.User{}).
		Where("is_online = ?", true).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return ids, nil
}

// MarkOffline flips the given users to offline. With no IDs it flips every
// user persisted as online and returns how many rows changed.
func (r *UserRepository) MarkOffline(ctx context.Context, ids []string, at time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&messaging.User{}).Where("is_online = ?", true)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	result := q.Updates(map[string]any{"is_online": false, "last_seen_at": at})
	if err := result.Error; err != nil {
		return 0, fmt.Errorf("failed to mark users offline: %w", err)
	}
	return result.RowsAffected, nil
}
