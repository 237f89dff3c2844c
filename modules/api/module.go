// Package api serves the WebSocket endpoint and the presence REST API.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/auth"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/realtime"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

// UserLookup resolves user profiles.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*messaging.User, error)
}

// PresenceLookup reports live presence.
type PresenceLookup interface {
	Presence(ctx context.Context, userIDs ...string) ([]realtime.PresenceStatus, error)
}

// Config holds the HTTP settings of the api module.
type Config struct {
	Addr           string
	AllowedOrigins string
	Cookies        CookieNames
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	config         Config
	app            *fiber.App
	auth           auth.AuthPort
	users          UserLookup
	presence       PresenceLookup
	realtimeModule *realtime.Module
	realtime       *realtime.Service
	gatherer       prometheus.Gatherer
	logger         types.Logger
	cookies        CookieNames
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule. A nil gatherer disables /metrics.
func NewModule(cfg Config, gatherer prometheus.Gatherer, logger types.Logger) *APIModule {
	return &APIModule{
		config:   cfg,
		cookies:  cfg.Cookies,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "store", "realtime"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.auth = auth.NewAuthAdapter(container)
	case "store":
		m.users = store.NewUserAdapter(container)
	case "realtime":
		m.presence = realtime.NewPresenceAdapter(container)
	}
}

// SetRealtime sets the realtime module (called from main.go).
func (m *APIModule) SetRealtime(module *realtime.Module) {
	m.realtimeModule = module
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.auth == nil {
		return fmt.Errorf("auth adapter dependency not set")
	}
	if m.users == nil {
		return fmt.Errorf("store adapter dependency not set")
	}
	if m.presence == nil {
		return fmt.Errorf("realtime adapter dependency not set")
	}
	if m.realtimeModule == nil || m.realtimeModule.Service() == nil {
		return fmt.Errorf("realtime module not started")
	}
	m.realtime = m.realtimeModule.Service()

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.config.Addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.config.Addr)
	return nil
}

func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "UnitedWeRise Realtime",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     m.config.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization",
		AllowCredentials: true,
	}))

	m.app = app
	m.setupRoutes()
	return app
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr":        m.config.Addr,
			"connections": m.realtime.Registry().ConnectionCount(),
		},
	}
}
