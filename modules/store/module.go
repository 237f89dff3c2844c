package store

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/gorm"
)

// Module owns the relational store shared by the auth and realtime modules.
type Module struct {
	dsn      string
	db       *gorm.DB
	users    *UserRepository
	messages *MessageRepository
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new store module for the given DSN.
func NewModule(dsn string, logger types.Logger) *Module {
	return &Module{
		dsn:    dsn,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Start opens the database and migrates the schema.
func (m *Module) Start(_ context.Context) error {
	db, err := Open(m.dsn)
	if err != nil {
		return err
	}

	m.db = db
	m.users = NewUserRepository(db)
	m.messages = NewMessageRepository(db)

	m.logger.Info("Store module started", "driver", db.Dialector.Name())
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
	m.logger.Info("Store module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":           m.db.Dialector.Name(),
			"open_connections": sqlDB.Stats().OpenConnections,
		},
	}
}

// DB returns the underlying database handle. Nil before Start.
func (m *Module) DB() *gorm.DB {
	return m.db
}

// Users returns the user repository. Nil before Start.
func (m *Module) Users() *UserRepository {
	return m.users
}

// Messages returns the message repository. Nil before Start.
func (m *Module) Messages() *MessageRepository {
	return m.messages
}
