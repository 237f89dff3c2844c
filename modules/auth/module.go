// Package auth implements the WebSocket handshake gate: JWT verification,
// Redis-backed credential revocation and refresh-session validation.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Module provides the authenticate service.
type Module struct {
	jwtConfig   JWTConfig
	redisOpts   *redis.Options
	storeModule *store.Module
	logger      types.Logger

	client      *redis.Client
	jwt         *JWTManager
	revocations *RevocationStore
	sessions    *SessionStore
	users       UserDirectory
	gate        *Gate
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new auth module.
func NewModule(jwtConfig JWTConfig, redisOpts *redis.Options, storeModule *store.Module, logger types.Logger) *Module {
	return &Module{
		jwtConfig:   jwtConfig,
		redisOpts:   redisOpts,
		storeModule: storeModule,
		logger:      logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"store"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "store":
		m.users = store.NewUserAdapter(container)
	}
}

// Start connects to Redis and builds the gate.
func (m *Module) Start(ctx context.Context) error {
	if m.users == nil {
		return fmt.Errorf("store dependency not set")
	}
	if m.storeModule == nil || m.storeModule.DB() == nil {
		return fmt.Errorf("store module not started")
	}

	m.client = redis.NewClient(m.redisOpts)
	if err := m.client.Ping(ctx).Err(); err != nil {
		// Access tokens cannot be checked for revocation until Redis is
		// back, so they fall through to the refresh path meanwhile.
		m.logger.Warn("Redis unavailable, revocation checks will fail closed", "addr", m.redisOpts.Addr, "error", err)
	}

	m.jwt = NewJWTManager(m.jwtConfig)
	m.revocations = NewRevocationStore(m.client)
	m.sessions = NewSessionStore(m.storeModule.DB(), m.jwt)
	m.gate = NewGate(m.jwt, m.revocations, m.sessions, m.users, m.logger)

	m.logger.Info("Auth module started", "issuer", m.jwtConfig.Issuer)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("Auth module stopped")
	return nil
}

// Health reports Redis connectivity. The gate keeps working without Redis,
// so an unreachable Redis degrades rather than fails the module.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.gate == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}

	details := map[string]any{"redis": "ok"}
	message := "operational"
	if err := m.revocations.Ping(ctx); err != nil {
		details["redis"] = err.Error()
		message = "degraded: revocation store unreachable"
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: message,
		Details: details,
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceAuthenticate,
		json.Unmarshal,
		json.Marshal,
		m.handleAuthenticate,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceAuthenticate, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceRevokeCredential,
		json.Unmarshal,
		json.Marshal,
		m.handleRevokeCredential,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRevokeCredential, err)
	}

	m.logger.Info("Registered auth services", "services", []string{ServiceAuthenticate, ServiceRevokeCredential})
	return nil
}

// Gate returns the handshake gate. Nil before Start.
func (m *Module) Gate() *Gate {
	return m.gate
}

func (m *Module) handleAuthenticate(ctx context.Context, req AuthenticateRequest, _ *mono.Msg) (AuthenticateResponse, error) {
	principal, err := m.gate.Admit(ctx, req.Handshake)
	if err != nil {
		if authErr, ok := IsAuthError(err); ok {
			return AuthenticateResponse{
				Admitted: false,
				Code:     authErr.Code,
				Reason:   authErr.Reason,
			}, nil
		}
		return AuthenticateResponse{}, err
	}

	return AuthenticateResponse{
		Admitted: true,
		UserID:   principal.UserID,
		Username: principal.Username,
		IsAdmin:  principal.IsAdmin,
		Method:   principal.Method,
	}, nil
}

// handleRevokeCredential blacklists an access token for the rest of its
// lifetime and ends the session behind a refresh token. Expired and invalid
// credentials are skipped.
func (m *Module) handleRevokeCredential(ctx context.Context, req RevokeCredentialRequest, _ *mono.Msg) (RevokeCredentialResponse, error) {
	var resp RevokeCredentialResponse

	if req.Token != "" {
		revoked, err := m.revokeAccess(ctx, req.Token)
		if err != nil {
			return RevokeCredentialResponse{}, err
		}
		resp.Revoked = revoked
	}

	if req.RefreshToken != "" {
		revoked, err := m.revokeSession(ctx, req.RefreshToken)
		if err != nil {
			return RevokeCredentialResponse{}, err
		}
		resp.SessionRevoked = revoked
	}
	return resp, nil
}

func (m *Module) revokeAccess(ctx context.Context, token string) (bool, error) {
	claims, err := m.jwt.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrInvalidToken) {
			return false, nil
		}
		return false, err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return false, nil
	}
	if err := m.revocations.Revoke(ctx, HashCredential(token), ttl); err != nil {
		return false, err
	}

	m.logger.Info("Access credential revoked", "userID", claims.UserID)
	return true, nil
}

func (m *Module) revokeSession(ctx context.Context, token string) (bool, error) {
	session, err := m.sessions.ValidateRefresh(ctx, token)
	if err != nil {
		if isSessionRejection(err) {
			return false, nil
		}
		return false, err
	}

	if err := m.sessions.Revoke(ctx, session.SessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	m.logger.Info("Session revoked", "userID", session.UserID, "sessionID", session.SessionID)
	return true, nil
}
