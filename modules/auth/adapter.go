package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort defines the interface other modules use to run the handshake.
type AuthPort interface {
	Authenticate(ctx context.Context, h Handshake) (*messaging.Principal, error)
	Revoke(ctx context.Context, accessToken, refreshToken string) (RevokeCredentialResponse, error)
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

// Authenticate runs the gate. Rejections come back as *AuthError.
func (a *AuthAdapter) Authenticate(ctx context.Context, h Handshake) (*messaging.Principal, error) {
	req := AuthenticateRequest{Handshake: h}
	var resp AuthenticateResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceAuthenticate,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("authenticate request failed: %w", err)
	}

	if !resp.Admitted {
		return nil, &AuthError{Code: resp.Code, Reason: resp.Reason}
	}

	return &messaging.Principal{
		UserID:   resp.UserID,
		Username: resp.Username,
		IsAdmin:  resp.IsAdmin,
		Method:   resp.Method,
	}, nil
}

// Revoke blacklists an access token until it expires and ends the session
// behind a refresh token. Either may be empty.
func (a *AuthAdapter) Revoke(ctx context.Context, accessToken, refreshToken string) (RevokeCredentialResponse, error) {
	req := RevokeCredentialRequest{Token: accessToken, RefreshToken: refreshToken}
	var resp RevokeCredentialResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRevokeCredential,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return RevokeCredentialResponse{}, fmt.Errorf("revoke-credential request failed: %w", err)
	}
	return resp, nil
}
