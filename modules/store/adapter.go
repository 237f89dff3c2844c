package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ServiceGetUser is the request-reply service that resolves a user profile.
const ServiceGetUser = "get-user"

// GetUserRequest represents a get user request.
type GetUserRequest struct {
	UserID string `json:"userId"`
}

// GetUserResponse represents a get user response. Found is false when no
// such user exists.
type GetUserResponse struct {
	Found       bool       `json:"found"`
	ID          string     `json:"id,omitempty"`
	Username    string     `json:"username,omitempty"`
	IsAdmin     bool       `json:"isAdmin,omitempty"`
	IsSuspended bool       `json:"isSuspended,omitempty"`
	IsOnline    bool       `json:"isOnline,omitempty"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetUser,
		json.Unmarshal,
		json.Marshal,
		m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetUser, err)
	}

	m.logger.Info("Registered store services", "services", []string{ServiceGetUser})
	return nil
}

func (m *Module) handleGetUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (GetUserResponse, error) {
	user, err := m.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return GetUserResponse{Found: false}, nil
		}
		return GetUserResponse{}, err
	}

	return GetUserResponse{
		Found:       true,
		ID:          user.ID,
		Username:    user.Username,
		IsAdmin:     user.IsAdmin,
		IsSuspended: user.IsSuspended,
		IsOnline:    user.IsOnline,
		LastSeenAt:  user.LastSeenAt,
	}, nil
}

// UserAdapter resolves users through the store's service container.
type UserAdapter struct {
	container mono.ServiceContainer
}

// NewUserAdapter creates a new UserAdapter.
func NewUserAdapter(container mono.ServiceContainer) *UserAdapter {
	return &UserAdapter{container: container}
}

// FindByID returns the user or ErrUserNotFound.
func (a *UserAdapter) FindByID(ctx context.Context, id string) (*messaging.User, error) {
	req := GetUserRequest{UserID: id}
	var resp GetUserResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetUser,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get-user request failed: %w", err)
	}

	if !resp.Found {
		return nil, ErrUserNotFound
	}
	return &messaging.User{
		ID:          resp.ID,
		Username:    resp.Username,
		IsAdmin:     resp.IsAdmin,
		IsSuspended: resp.IsSuspended,
		IsOnline:    resp.IsOnline,
		LastSeenAt:  resp.LastSeenAt,
	}, nil
}
