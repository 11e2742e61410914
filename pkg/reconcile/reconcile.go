// Package reconcile settles transactions left pending by a failed status
// update. It is disabled unless a schedule is configured.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"payment-relay/pkg/decision"
	"payment-relay/pkg/metrics"
	"payment-relay/pkg/types"
)

const sweepTimeout = 30 * time.Second

type Store interface {
	ListPending(ctx context.Context, olderThan time.Time) ([]types.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status types.Status) error
}

type Reconciler struct {
	store   Store
	after   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a reconciler for rows that have been pending longer than after.
// after must comfortably exceed the processing delay so in-flight
// transactions are never touched.
func New(store Store, after time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		after:  after,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep applies the decision rule to every stale pending row and returns how
// many were settled.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.store.ListPending(ctx, r.now().Add(-r.after))
	if err != nil {
		return 0, fmt.Errorf("list pending transactions: %w", err)
	}

	settled := 0
	for _, tx := range stale {
		status := decision.Decide(tx.Amount)
		if err := r.store.UpdateStatus(ctx, tx.ID, status); err != nil {
			return settled, fmt.Errorf("settle %s: %w", tx.ID, err)
		}
		settled++
		r.metrics.IncReconciled()
		r.logger.Info("settled stale pending transaction",
			"transaction_id", tx.ID,
			"status", status,
			"pending_since", tx.Timestamp,
		)
	}
	return settled, nil
}

// Run sweeps on schedule (standard cron syntax or descriptors such as
// "@every 1m") until ctx is cancelled, then waits for a running sweep.
func (r *Reconciler) Run(ctx context.Context, schedule string) error {
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(r.logger.Handler(), slog.LevelDebug))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if n, err := r.Sweep(sweepCtx); err != nil {
			r.logger.Error("reconciliation sweep failed", "settled", n, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	r.logger.Info("reconciler started", "schedule", schedule, "after", r.after)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("reconciler stopped")
	return nil
}
