package api

import (
	"context"
	"errors"
	"strings"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	authRequired := newAuthMiddleware(m.auth, m.cookies, m.logger)
	origins := splitOrigins(m.config.AllowedOrigins)

	m.app.Get("/health", m.healthHandler)
	if m.gatherer != nil {
		m.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket endpoint. The gate runs on the upgrade request, so only
	// admitted principals ever reach the event loop.
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, newOriginGuard(origins, m.logger), authRequired)
	m.app.Get("/ws", websocket.New(m.handleWebSocket, websocket.Config{Origins: origins}))

	// REST API v1
	api := m.app.Group("/api/v1")
	api.Post("/auth/logout", m.logout)
	api.Get("/presence/online", authRequired, m.onlineUsers)
	api.Get("/users/:id/presence", authRequired, m.userPresence)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	registry := m.realtime.Registry()
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":       "api",
			"connections":  registry.ConnectionCount(),
			"online_users": registry.OnlineCount(),
		},
	})
}

// handleWebSocket serves one admitted connection: frames are read and
// dispatched in order on this goroutine while a second goroutine writes.
func (m *APIModule) handleWebSocket(ws *websocket.Conn) {
	principal, ok := ws.Locals(localsPrincipal).(messaging.Principal)
	if !ok {
		m.logger.Error("WebSocket opened without principal")
		_ = ws.Close()
		return
	}

	ctx := context.Background()
	conn := m.realtime.Connect(ctx, principal)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := conn.WritePump(ws); err != nil {
			m.logger.Debug("WebSocket write failed", "userID", conn.UserID, "connID", conn.ID, "error", err)
			// Unblock the reader.
			_ = ws.Close()
		}
	}()

	defer func() {
		m.realtime.Disconnect(ctx, conn)
		<-writeDone
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				m.logger.Warn("WebSocket read error", "userID", conn.UserID, "connID", conn.ID, "error", err)
			}
			return
		}
		m.realtime.HandleEvent(ctx, conn, data)
	}
}

// onlineUsers handles GET /api/v1/presence/online.
func (m *APIModule) onlineUsers(c *fiber.Ctx) error {
	statuses, err := m.presence.Presence(c.UserContext())
	if err != nil {
		return m.presenceUnavailable(c, err)
	}

	users := make([]string, 0, len(statuses))
	for _, s := range statuses {
		users = append(users, s.UserID)
	}
	return c.JSON(OnlineUsersResponse{
		Users: users,
		Count: len(users),
	})
}

// userPresence handles GET /api/v1/users/:id/presence.
func (m *APIModule) userPresence(c *fiber.Ctx) error {
	userID := c.Params("id")

	user, err := m.users.FindByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "User not found",
			})
		}
		m.logger.Error("Failed to load user", "userID", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to load user",
		})
	}

	statuses, err := m.presence.Presence(c.UserContext(), user.ID)
	if err != nil {
		return m.presenceUnavailable(c, err)
	}

	resp := PresenceResponse{
		UserID:     user.ID,
		LastSeenAt: user.LastSeenAt,
	}
	if len(statuses) == 1 {
		resp.Online = statuses[0].Online
		resp.Connections = statuses[0].Connections
	}
	return c.JSON(resp)
}

func (m *APIModule) presenceUnavailable(c *fiber.Ctx, err error) error {
	m.logger.Error("Failed to query presence", "error", err)
	return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
		Error:   "presence_unavailable",
		Message: "Presence service unavailable",
	})
}

// logout handles POST /api/v1/auth/logout by revoking the presented access
// token and ending the refresh session.
func (m *APIModule) logout(c *fiber.Ctx) error {
	token := c.Cookies(m.cookies.Access)
	if token == "" {
		token, _ = strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		token = strings.TrimSpace(token)
	}
	refresh := c.Cookies(m.cookies.Refresh)
	if token == "" && refresh == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "missing_token",
			Message: "No credential presented",
		})
	}

	result, err := m.auth.Revoke(c.UserContext(), token, refresh)
	if err != nil {
		m.logger.Error("Failed to revoke credential", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "auth_unavailable",
			Message: "Authentication service unavailable",
		})
	}

	c.ClearCookie(m.cookies.Access, m.cookies.Refresh)
	return c.JSON(LogoutResponse{
		Revoked:        result.Revoked,
		SessionRevoked: result.SessionRevoked,
	})
}
