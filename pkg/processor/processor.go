// Package processor runs a transaction through its lifecycle: record it as
// pending, decide, then persist the verdict.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"payment-relay/pkg/decision"
	"payment-relay/pkg/metrics"
	"payment-relay/pkg/types"
)

// DefaultDelay is the artificial latency between recording and deciding.
const DefaultDelay = 200 * time.Millisecond

// Store is the subset of the persistence layer the processor writes to.
type Store interface {
	InsertPending(ctx context.Context, id string, amount float64, deviceID string) error
	UpdateStatus(ctx context.Context, id string, status types.Status) error
}

type Processor struct {
	store   Store
	delay   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Processor)

// WithDelay sets the artificial processing delay. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.delay = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

func New(store Store, opts ...Option) *Processor {
	p := &Processor{
		store:  store,
		delay:  DefaultDelay,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process records the transaction as pending, waits out the processing delay,
// applies the decision rule and stores the verdict. A store failure aborts the
// remaining steps; if it happens on the final update the row stays pending.
//
// Cancelling ctx does not interrupt a call that has started.
func (p *Processor) Process(ctx context.Context, id string, amount float64, deviceID string) (types.Status, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if err := p.store.InsertPending(ctx, id, amount, deviceID); err != nil {
		p.metrics.IncFailed(metrics.ReasonStore)
		return "", fmt.Errorf("record pending transaction: %w", err)
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	status := decision.Decide(amount)

	if err := p.store.UpdateStatus(ctx, id, status); err != nil {
		p.metrics.IncFailed(metrics.ReasonStore)
		p.logger.Warn("transaction left pending after failed status update",
			"transaction_id", id,
			"status", status,
			"error", err,
		)
		return "", fmt.Errorf("record verdict: %w", err)
	}

	p.metrics.ObserveProcessed(status, time.Since(start))
	p.logger.Debug("transaction processed",
		"transaction_id", id,
		"device_id", deviceID,
		"amount", amount,
		"status", status,
	)
	return status, nil
}
