// Package realtime tracks live WebSocket connections and user presence,
// routes room broadcasts and dispatches inbound messaging events.
package realtime

import (
	"context"
	"fmt"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/events"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Module owns the realtime service and the presence reconciler.
type Module struct {
	storeModule *store.Module
	limits      Limits
	cron        string
	registerer  prometheus.Registerer
	logger      types.Logger

	eventBus       mono.EventBus
	service        *Service
	reconciler     *Reconciler
	cancelSchedule context.CancelFunc
	done           chan struct{}
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new realtime module. Collectors are registered on
// registerer when the module starts.
func NewModule(storeModule *store.Module, limits Limits, reconcileCron string, registerer prometheus.Registerer, logger types.Logger) *Module {
	return &Module{
		storeModule: storeModule,
		limits:      limits,
		cron:        reconcileCron,
		registerer:  registerer,
		logger:      logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"store"}
}

// SetDependencyServiceContainer is a no-op; the repositories are used
// in-process.
func (m *Module) SetDependencyServiceContainer(_ string, _ mono.ServiceContainer) {}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	if m.service != nil {
		m.service.SetEventBus(bus)
	}
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.PresenceChangedV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to notifications published by other
// platform modules.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.NotificationCreatedV1, m.handleNotificationCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register NotificationCreated consumer: %w", err)
	}

	m.logger.Info("Registered realtime event consumers", "events", []string{"NotificationCreated"})
	return nil
}

func (m *Module) handleNotificationCreated(_ context.Context, event events.NotificationCreatedEvent, _ *mono.Msg) error {
	if m.service == nil {
		return nil
	}
	delivered := m.service.Notify(event.UserID, Notification{
		ID:        event.NotificationID,
		Kind:      event.Kind,
		Title:     event.Title,
		Body:      event.Body,
		Data:      event.Data,
		CreatedAt: event.Timestamp,
	})
	m.logger.Debug("Notification forwarded", "userID", event.UserID, "notificationID", event.NotificationID, "connections", delivered)
	return nil
}

// Start builds the service, clears stale presence and starts the reconcile
// schedule.
func (m *Module) Start(ctx context.Context) error {
	if m.storeModule == nil || m.storeModule.DB() == nil {
		return fmt.Errorf("store module not started")
	}

	registry := NewRegistry()
	var metrics *Metrics
	if m.registerer != nil {
		metrics = NewMetrics(m.registerer, registry)
	}

	m.service = NewService(registry, m.storeModule.Users(), m.storeModule.Messages(), m.limits, metrics, m.logger)
	m.service.SetEventBus(m.eventBus)

	reconciler, err := NewReconciler(registry, m.storeModule.Users(), m.cron, m.logger)
	if err != nil {
		return err
	}
	m.reconciler = reconciler
	if _, err := reconciler.ResetAll(ctx); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}

	scheduleCtx, cancel := context.WithCancel(context.Background())
	m.cancelSchedule = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		reconciler.Run(scheduleCtx)
	}()

	m.logger.Info("Realtime module started", "reconcileCron", m.cron)
	return nil
}

// Stop halts the reconcile schedule.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelSchedule != nil {
		m.cancelSchedule()
		<-m.done
	}

	connections := 0
	if m.service != nil {
		connections = m.service.Registry().ConnectionCount()
	}
	m.logger.Info("Realtime module stopped", "connections", connections)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}

	registry := m.service.Registry()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":  registry.ConnectionCount(),
			"online_users": registry.OnlineCount(),
			"rooms":        m.service.Router().RoomCount(),
		},
	}
}

// Service returns the realtime service. Nil before Start.
func (m *Module) Service() *Service {
	return m.service
}
