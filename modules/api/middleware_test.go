package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/auth"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/realtime"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// mockAuthPort admits the token "good-<userID>" and rejects everything else.
type mockAuthPort struct {
	rejectCode string
	err        error
	lastSeen   auth.Handshake
	revoked    []string
	sessions   []string
}

func (m *mockAuthPort) Authenticate(_ context.Context, h auth.Handshake) (*messaging.Principal, error) {
	m.lastSeen = h
	if m.err != nil {
		return nil, m.err
	}
	if m.rejectCode != "" {
		return nil, &auth.AuthError{Code: m.rejectCode, Reason: "rejected"}
	}
	token := h.AccessCredential()
	if len(token) <= len("good-") || token[:len("good-")] != "good-" {
		return nil, &auth.AuthError{Code: auth.CodeNoToken, Reason: "no credential presented"}
	}
	return &messaging.Principal{UserID: token[len("good-"):], Username: "someone", Method: auth.MethodAccess}, nil
}

func (m *mockAuthPort) Revoke(_ context.Context, accessToken, refreshToken string) (auth.RevokeCredentialResponse, error) {
	if m.err != nil {
		return auth.RevokeCredentialResponse{}, m.err
	}
	var resp auth.RevokeCredentialResponse
	if accessToken != "" {
		m.revoked = append(m.revoked, accessToken)
		resp.Revoked = true
	}
	if refreshToken != "" {
		m.sessions = append(m.sessions, refreshToken)
		resp.SessionRevoked = true
	}
	return resp, nil
}

type fakeUsers struct {
	users map[string]*messaging.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*messaging.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

type fakePresence struct{}

func (fakePresence) SetOnline(context.Context, string, bool, time.Time) error { return nil }

func newTestModule(t *testing.T, port *mockAuthPort) (*APIModule, *fiber.App) {
	t.Helper()

	lastSeen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reg := prometheus.NewRegistry()
	registry := realtime.NewRegistry()
	svc := realtime.NewService(registry, fakePresence{}, nil, realtime.Limits{}, realtime.NewMetrics(reg, registry), &mockLogger{})

	m := NewModule(Config{
		Addr:           ":0",
		AllowedOrigins: "http://localhost:3000",
		Cookies:        CookieNames{Access: "access_token", Refresh: "refresh_token"},
	}, reg, &mockLogger{})
	m.auth = port
	m.users = &fakeUsers{users: map[string]*messaging.User{
		"alice": {ID: "alice", Username: "alice", LastSeenAt: &lastSeen},
	}}
	m.realtime = svc
	m.presence = svc

	return m, m.newApp()
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		port       *mockAuthPort
		wantStatus int
		wantError  string
	}{
		{"no token", &mockAuthPort{}, fiber.StatusUnauthorized, auth.CodeNoToken},
		{"user not found", &mockAuthPort{rejectCode: auth.CodeUserNotFound}, fiber.StatusUnauthorized, auth.CodeUserNotFound},
		{"suspended", &mockAuthPort{rejectCode: auth.CodeSuspended}, fiber.StatusForbidden, auth.CodeSuspended},
		{"lookup error", &mockAuthPort{rejectCode: auth.CodeError}, fiber.StatusInternalServerError, auth.CodeError},
		{"auth service down", &mockAuthPort{err: errors.New("no responders")}, fiber.StatusServiceUnavailable, "auth_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, app := newTestModule(t, tt.port)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/presence/online", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decodeBody[ErrorResponse](t, resp).Error)
		})
	}
}

func TestAuthMiddleware_RejectsWebSocketUpgrade(t *testing.T) {
	port := &mockAuthPort{rejectCode: auth.CodeSuspended}
	_, app := newTestModule(t, port)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=good-alice", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "good-alice", port.lastSeen.Token)
}

func upgradeRequest(target, origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	port := &mockAuthPort{}
	_, app := newTestModule(t, port)

	req := upgradeRequest("/ws", "https://evil.example")
	req.Header.Set("Cookie", "access_token=good-alice")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "origin_not_allowed", decodeBody[ErrorResponse](t, resp).Error)
	assert.Equal(t, auth.Handshake{}, port.lastSeen, "gate not consulted")
}

func TestWebSocket_AllowedOriginReachesGate(t *testing.T) {
	port := &mockAuthPort{rejectCode: auth.CodeSuspended}
	_, app := newTestModule(t, port)

	resp, err := app.Test(upgradeRequest("/ws?token=good-alice", "http://localhost:3000"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.CodeSuspended, decodeBody[ErrorResponse](t, resp).Error)
	assert.Equal(t, "good-alice", port.lastSeen.Token)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins(" http://a, ,http://b "))
	assert.Nil(t, splitOrigins(""))
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	port := &mockAuthPort{}
	_, app := newTestModule(t, port)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	assert.Equal(t, auth.Handshake{}, port.lastSeen, "gate not consulted")
}

func TestAuthMiddleware_CollectsCredentials(t *testing.T) {
	port := &mockAuthPort{}
	_, app := newTestModule(t, port)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/online?token=query-token", nil)
	req.Header.Set("Cookie", "access_token=good-alice; refresh_token=refresh")
	req.Header.Set("Authorization", "Bearer header-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, auth.Handshake{
		AccessCookie:  "good-alice",
		RefreshCookie: "refresh",
		Token:         "query-token",
		Authorization: "Bearer header-token",
	}, port.lastSeen)
}

func TestAuthMiddleware_StoresPrincipal(t *testing.T) {
	m, app := newTestModule(t, &mockAuthPort{})
	app.Get("/whoami", newAuthMiddleware(m.auth, m.cookies, m.logger), func(c *fiber.Ctx) error {
		p, ok := principalFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(p.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good-bob")

	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(body))
}

func TestPresenceEndpoints(t *testing.T) {
	m, app := newTestModule(t, &mockAuthPort{})
	m.realtime.Connect(context.Background(), messaging.Principal{UserID: "alice"})
	m.realtime.Connect(context.Background(), messaging.Principal{UserID: "alice"})

	get := func(path string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer good-bob")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("/api/v1/presence/online")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, OnlineUsersResponse{Users: []string{"alice"}, Count: 1}, decodeBody[OnlineUsersResponse](t, resp))

	resp = get("/api/v1/users/alice/presence")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	presence := decodeBody[PresenceResponse](t, resp)
	assert.True(t, presence.Online)
	assert.Equal(t, 2, presence.Connections)
	require.NotNil(t, presence.LastSeenAt)

	resp = get("/api/v1/users/nobody/presence")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	port := &mockAuthPort{}
	_, app := newTestModule(t, port)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, LogoutResponse{Revoked: true}, decodeBody[LogoutResponse](t, resp))
	assert.Equal(t, []string{"some-token"}, port.revoked)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Cookie", "access_token=cookie-token; refresh_token=refresh")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, LogoutResponse{Revoked: true, SessionRevoked: true}, decodeBody[LogoutResponse](t, resp))
	assert.Equal(t, []string{"some-token", "cookie-token"}, port.revoked)
	assert.Equal(t, []string{"refresh"}, port.sessions)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	_, app := newTestModule(t, &mockAuthPort{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decodeBody[HealthResponse](t, resp).Status)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "realtime_connections")
}
