package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Rejection codes returned by the gate.
const (
	CodeNoToken      = "AUTH_NO_TOKEN"
	CodeUserNotFound = "AUTH_USER_NOT_FOUND"
	CodeSuspended    = "AUTH_SUSPENDED"
	CodeError        = "AUTH_ERROR"
)

// Admission methods.
const (
	MethodAccess  = "access"
	MethodRefresh = "refresh"
)

// AuthError is a terminal handshake rejection.
type AuthError struct {
	Code   string
	Reason string
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Reason
}

// IsAuthError reports whether err is a handshake rejection and returns it.
func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// Handshake carries the credentials presented on a connection attempt.
// Token is an explicit bearer credential from the handshake payload.
type Handshake struct {
	AccessCookie  string `json:"accessCookie,omitempty"`
	RefreshCookie string `json:"refreshCookie,omitempty"`
	Token         string `json:"token,omitempty"`
	Authorization string `json:"authorization,omitempty"`
}

// AccessCredential picks the access credential: cookie first, then the
// explicit handshake token, then an Authorization bearer header.
func (h Handshake) AccessCredential() string {
	if h.AccessCookie != "" {
		return h.AccessCookie
	}
	if h.Token != "" {
		return h.Token
	}
	if token, ok := strings.CutPrefix(h.Authorization, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// TokenVerifier verifies access tokens.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*JWTClaims, error)
}

// RevocationChecker answers whether a credential hash is revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, hash string) (bool, error)
}

// RefreshValidator validates refresh credentials and tracks session activity.
type RefreshValidator interface {
	ValidateRefresh(ctx context.Context, token string) (*RefreshSession, error)
	TouchActivity(ctx context.Context, sessionID string) error
}

// UserDirectory resolves user profiles.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*messaging.User, error)
}

// Gate admits or rejects connection attempts.
type Gate struct {
	tokens      TokenVerifier
	revocations RevocationChecker
	sessions    RefreshValidator
	users       UserDirectory
	logger      types.Logger
	lookups     singleflight.Group
}

// NewGate creates a new Gate.
func NewGate(tokens TokenVerifier, revocations RevocationChecker, sessions RefreshValidator, users UserDirectory, logger types.Logger) *Gate {
	return &Gate{
		tokens:      tokens,
		revocations: revocations,
		sessions:    sessions,
		users:       users,
		logger:      logger,
	}
}

// Admit runs the handshake. It returns the admitted principal or an
// *AuthError describing the rejection.
func (g *Gate) Admit(ctx context.Context, h Handshake) (*messaging.Principal, error) {
	userID, method := g.viaAccess(ctx, h.AccessCredential())
	if userID == "" {
		userID, method = g.viaRefresh(ctx, h.RefreshCookie)
	}
	if userID == "" {
		return nil, &AuthError{Code: CodeNoToken, Reason: "no valid credential presented"}
	}

	user, err := g.findUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, &AuthError{Code: CodeUserNotFound, Reason: "user not found"}
		}
		g.logger.Error("User lookup failed during handshake", "userID", userID, "error", err)
		return nil, &AuthError{Code: CodeError, Reason: "authentication failed"}
	}
	if user.IsSuspended {
		return nil, &AuthError{Code: CodeSuspended, Reason: "account suspended"}
	}

	return &messaging.Principal{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Method:   method,
	}, nil
}

// viaAccess returns the subject of a valid, unrevoked access credential.
// A revoked credential, or a revocation lookup failure, yields no subject so
// the caller falls through to the refresh path.
func (g *Gate) viaAccess(ctx context.Context, token string) (string, string) {
	if token == "" {
		return "", ""
	}
	claims, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		g.logger.Debug("Access credential rejected", "error", err)
		return "", ""
	}

	revoked, err := g.revocations.IsRevoked(ctx, HashCredential(token))
	if err != nil {
		g.logger.Warn("Revocation check failed", "userID", claims.UserID, "error", err)
		return "", ""
	}
	if revoked {
		g.logger.Debug("Access credential revoked", "userID", claims.UserID)
		return "", ""
	}
	return claims.UserID, MethodAccess
}

func (g *Gate) viaRefresh(ctx context.Context, token string) (string, string) {
	if token == "" {
		return "", ""
	}
	session, err := g.sessions.ValidateRefresh(ctx, token)
	if err != nil {
		g.logger.Debug("Refresh credential rejected", "error", err)
		return "", ""
	}

	if err := g.sessions.TouchActivity(ctx, session.SessionID); err != nil {
		g.logger.Warn("Failed to record session activity", "sessionID", session.SessionID, "error", err)
	}
	return session.UserID, MethodRefresh
}

// profileLookupTimeout bounds a coalesced lookup, which no single caller's
// context owns.
const profileLookupTimeout = 5 * time.Second

// findUser coalesces concurrent lookups of the same profile, which happen
// when one user opens several tabs at once. Each caller waits on its own ctx.
func (g *Gate) findUser(ctx context.Context, userID string) (*messaging.User, error) {
	ch := g.lookups.DoChan(userID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileLookupTimeout)
		defer cancel()
		return g.users.FindByID(lookupCtx, userID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	user, ok := res.Val.(*messaging.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user lookup returned no profile for %s", userID)
	}
	return user, nil
}
