package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ServiceGetPresence is the request-reply service that reports live presence.
const ServiceGetPresence = "get-presence"

// GetPresenceRequest asks for the presence of UserIDs, or of every online
// user when UserIDs is empty.
type GetPresenceRequest struct {
	UserIDs []string `json:"userIds,omitempty"`
}

// PresenceStatus is one user's live presence on this instance.
type PresenceStatus struct {
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// GetPresenceResponse represents a get presence response.
type GetPresenceResponse struct {
	Users []PresenceStatus `json:"users"`
}

// Presence reports the live presence of userIDs, or of every online user
// when none are given.
func (s *Service) Presence(_ context.Context, userIDs ...string) ([]PresenceStatus, error) {
	if len(userIDs) == 0 {
		userIDs = s.registry.OnlineUsers()
	}

	statuses := make([]PresenceStatus, 0, len(userIDs))
	for _, id := range userIDs {
		n := len(s.registry.Connections(id))
		statuses = append(statuses, PresenceStatus{
			UserID:      id,
			Online:      n > 0,
			Connections: n,
		})
	}
	return statuses, nil
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetPresence,
		json.Unmarshal,
		json.Marshal,
		m.handleGetPresence,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetPresence, err)
	}

	m.logger.Info("Registered realtime services", "services", []string{ServiceGetPresence})
	return nil
}

func (m *Module) handleGetPresence(ctx context.Context, req GetPresenceRequest, _ *mono.Msg) (GetPresenceResponse, error) {
	if m.service == nil {
		return GetPresenceResponse{}, fmt.Errorf("realtime module not started")
	}
	users, err := m.service.Presence(ctx, req.UserIDs...)
	if err != nil {
		return GetPresenceResponse{}, err
	}
	return GetPresenceResponse{Users: users}, nil
}

// PresenceAdapter queries presence through the realtime service container.
type PresenceAdapter struct {
	container mono.ServiceContainer
}

// NewPresenceAdapter creates a new PresenceAdapter.
func NewPresenceAdapter(container mono.ServiceContainer) *PresenceAdapter {
	return &PresenceAdapter{container: container}
}

// Presence calls the get-presence service.
func (a *PresenceAdapter) Presence(ctx context.Context, userIDs ...string) ([]PresenceStatus, error) {
	req := GetPresenceRequest{UserIDs: userIDs}
	var resp GetPresenceResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetPresence,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get-presence request failed: %w", err)
	}
	return resp.Users, nil
}
