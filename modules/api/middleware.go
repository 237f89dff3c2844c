package api

import (
	"errors"
	"slices"
	"strings"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/auth"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// localsPrincipal is the fiber.Ctx locals key holding the admitted principal.
const localsPrincipal = "principal"

// CookieNames names the credential cookies read during the handshake.
type CookieNames struct {
	Access  string
	Refresh string
}

// handshakeFrom collects every credential the gate may consider.
func handshakeFrom(c *fiber.Ctx, cookies CookieNames) auth.Handshake {
	return auth.Handshake{
		AccessCookie:  c.Cookies(cookies.Access),
		RefreshCookie: c.Cookies(cookies.Refresh),
		Token:         c.Query("token"),
		Authorization: c.Get(fiber.HeaderAuthorization),
	}
}

// newAuthMiddleware runs the handshake gate and stores the principal in
// locals. Rejected requests never reach the next handler.
func newAuthMiddleware(port auth.AuthPort, cookies CookieNames, logger types.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, err := port.Authenticate(c.UserContext(), handshakeFrom(c, cookies))
		if err != nil {
			if authErr, ok := auth.IsAuthError(err); ok {
				logger.Debug("Handshake rejected", "code", authErr.Code, "path", c.Path(), "ip", c.IP())
				return c.Status(authStatus(authErr.Code)).JSON(ErrorResponse{
					Error:   authErr.Code,
					Message: authErr.Reason,
				})
			}
			logger.Error("Authentication unavailable", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Error:   "auth_unavailable",
				Message: "Authentication service unavailable",
			})
		}

		c.Locals(localsPrincipal, *principal)
		return c.Next()
	}
}

// splitOrigins parses a comma-separated origin list.
func splitOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// newOriginGuard rejects upgrades whose Origin header is not listed. The
// handshake authenticates from cookies, which a browser attaches to
// cross-site WebSocket requests too. Requests without an Origin header come
// from non-browser clients and pass.
func newOriginGuard(allowed []string, logger types.Logger) fiber.Handler {
	allowAll := slices.Contains(allowed, "*")
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || allowAll || slices.Contains(allowed, origin) {
			return c.Next()
		}
		logger.Warn("WebSocket origin rejected", "origin", origin, "ip", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "origin_not_allowed",
			Message: "Origin not allowed",
		})
	}
}

func authStatus(code string) int {
	switch code {
	case auth.CodeSuspended:
		return fiber.StatusForbidden
	case auth.CodeError:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusUnauthorized
	}
}

func principalFrom(c *fiber.Ctx) (messaging.Principal, bool) {
	p, ok := c.Locals(localsPrincipal).(messaging.Principal)
	return p, ok
}

// errorHandler handles errors globally.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
