package api

import "time"

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// PresenceResponse describes one user's presence.
type PresenceResponse struct {
	UserID      string     `json:"userId"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// OnlineUsersResponse lists the users with a live connection.
type OnlineUsersResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// LogoutResponse reports which credentials were revoked.
type LogoutResponse struct {
	Revoked        bool `json:"revoked"`
	SessionRevoked bool `json:"sessionRevoked"`
}
