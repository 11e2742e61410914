// Package store persists transactions. Every backend serializes its
// operations behind a single mutex, so callers may share one instance across
// goroutines freely.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payment-relay/pkg/types"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks payment-relay/pkg/store Store

// Store is the transaction table.
type Store interface {
	// Initialize creates the schema if it does not exist.
	Initialize(ctx context.Context) error
	// InsertPending records a new pending transaction. A duplicate id is ignored.
	InsertPending(ctx context.Context, id string, amount float64, deviceID string) error
	// UpdateStatus sets the status of id. Unknown ids are ignored.
	UpdateStatus(ctx context.Context, id string, status types.Status) error
	// ListAll returns every transaction, newest first.
	ListAll(ctx context.Context) ([]types.Transaction, error)
	// ListPending returns pending transactions created before olderThan, oldest first.
	ListPending(ctx context.Context, olderThan time.Time) ([]types.Transaction, error)
	// Clear removes all rows and keeps the schema.
	Clear(ctx context.Context) error
	Close() error
}

// ErrStore matches every *StoreError via errors.Is.
var ErrStore = errors.New("store failure")

// StoreError wraps any failure of a persistence operation.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, ID: id, Err: err}
}

const defaultTimeout = 5 * time.Second

type options struct {
	timeout time.Duration
	now     func() time.Time
}

// Option configures a store backend.
type Option func(*options)

// WithTimeout bounds every store operation.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock replaces time.Now for backends that assign created_at themselves.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// monotonicClock hands out non-decreasing insertion timestamps. Callers must
// hold the owning store's mutex.
type monotonicClock struct {
	now  func() time.Time
	last time.Time
}

func (c *monotonicClock) next() time.Time {
	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// serial is the coarse critical section shared by every backend.
type serial struct {
	mu      sync.Mutex
	timeout time.Duration
}

func (s *serial) do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}
