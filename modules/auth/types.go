package auth

// Service names registered by the auth module.
const (
	ServiceAuthenticate     = "authenticate"
	ServiceRevokeCredential = "revoke-credential"
)

// AuthenticateRequest carries the handshake credentials.
type AuthenticateRequest struct {
	Handshake
}

// AuthenticateResponse is the gate decision. Rejections are returned as a
// response, not an error.
type AuthenticateResponse struct {
	Admitted bool   `json:"admitted"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
	Method   string `json:"method,omitempty"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RevokeCredentialRequest asks for an access token to be blacklisted and,
// when RefreshToken is set, for its session to end.
type RevokeCredentialRequest struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RevokeCredentialResponse reports the revocation result.
type RevokeCredentialResponse struct {
	Revoked        bool `json:"revoked"`
	SessionRevoked bool `json:"sessionRevoked"`
}
