package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-monolith/mono/pkg/types"
)

// OnlineDirectory lists and clears persisted online flags.
type OnlineDirectory interface {
	ListOnline(ctx context.Context) ([]string, error)
	MarkOffline(ctx context.Context, ids []string, at time.Time) (int64, error)
}

// Reconciler keeps persisted online flags in line with the registry. The
// registry lives in process memory, so flags left by a previous process or a
// missed write are stale.
type Reconciler struct {
	registry *Registry
	users    OnlineDirectory
	cron     string
	logger   types.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler that sweeps on the cron schedule.
func NewReconciler(registry *Registry, users OnlineDirectory, cron string, logger types.Logger) (*Reconciler, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %q", cron)
	}
	return &Reconciler{
		registry: registry,
		users:    users,
		cron:     cron,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ResetAll marks every persisted user offline. Call it before accepting
// connections.
func (r *Reconciler) ResetAll(ctx context.Context) (int64, error) {
	n, err := r.users.MarkOffline(ctx, nil, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("Reset stale online flags", "count", n)
	}
	return n, nil
}

// Sweep marks users offline who are persisted online but have no live
// connection, and returns how many were changed.
func (r *Reconciler) Sweep(ctx context.Context) (int64, error) {
	ids, err := r.users.ListOnline(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, id := range ids {
		n, err := r.sweepUser(ctx, id)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		r.logger.Info("Presence reconciled", "stale", total)
	}
	return total, nil
}

// sweepUser holds the user's lock so a concurrent connect cannot be undone.
func (r *Reconciler) sweepUser(ctx context.Context, userID string) (int64, error) {
	unlock := r.registry.Lock(userID)
	defer unlock()

	if r.registry.IsOnline(userID) {
		return 0, nil
	}
	return r.users.MarkOffline(ctx, []string{userID}, r.now())
}

// Run sweeps on every cron tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now().UTC(), false)
		if err != nil {
			r.logger.Error("Failed to compute next reconcile tick", "cron", r.cron, "error", err)
			next = r.now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("Presence reconcile failed", "error", err)
		}
	}
}
