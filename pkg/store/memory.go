package store

import (
	"context"
	"sort"
	"time"

	"payment-relay/pkg/types"
)

// MemoryStore keeps transactions in process memory. Used for tests and for
// running the relay without a database.
type MemoryStore struct {
	serial
	clock monotonicClock
	seq   int64
	rows  map[string]*memoryRow
}

type memoryRow struct {
	tx  types.Transaction
	seq int64
}

func NewMemory(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{
		serial: serial{timeout: o.timeout},
		clock:  monotonicClock{now: o.now},
		rows:   make(map[string]*memoryRow),
	}
}

func (s *MemoryStore) Initialize(ctx context.Context) error {
	return wrap("initialize", "", ctx.Err())
}

func (s *MemoryStore) InsertPending(ctx context.Context, id string, amount float64, deviceID string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, exists := s.rows[id]; exists {
			return nil
		}
		s.seq++
		s.rows[id] = &memoryRow{
			tx: types.Transaction{
				ID:        id,
				Amount:    amount,
				Status:    types.StatusPending,
				Timestamp: s.clock.next(),
				DeviceID:  deviceID,
			},
			seq: s.seq,
		}
		return nil
	})
	return wrap("insert", id, err)
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status types.Status) error {
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row, exists := s.rows[id]; exists {
			row.tx.Status = status
		}
		return nil
	})
	return wrap("update", id, err)
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = s.snapshot(func(*memoryRow) bool { return true }, true)
		return nil
	})
	if err != nil {
		return nil, wrap("list", "", err)
	}
	return out, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, olderThan time.Time) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = s.snapshot(func(r *memoryRow) bool {
			return r.tx.Status == types.StatusPending && r.tx.Timestamp.Before(olderThan)
		}, false)
		return nil
	})
	if err != nil {
		return nil, wrap("list pending", "", err)
	}
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.rows = make(map[string]*memoryRow)
		return nil
	})
	return wrap("clear", "", err)
}

func (s *MemoryStore) Close() error { return nil }

// snapshot copies matching rows ordered by insertion time. Caller holds mu.
func (s *MemoryStore) snapshot(keep func(*memoryRow) bool, newestFirst bool) []types.Transaction {
	rows := make([]*memoryRow, 0, len(s.rows))
	for _, r := range s.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.tx.Timestamp.Equal(b.tx.Timestamp) {
			if newestFirst {
				return a.tx.Timestamp.After(b.tx.Timestamp)
			}
			return a.tx.Timestamp.Before(b.tx.Timestamp)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	out := make([]types.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.tx
	}
	return out
}
