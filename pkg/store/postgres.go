package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-relay/pkg/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	device_id  TEXT NOT NULL,
	amount     NUMERIC(10, 2) NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	location   TEXT
)`

const postgresIndex = `CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at DESC)`

const transactionColumns = `id, amount, status, created_at, device_id, location`

// PostgresStore persists transactions in PostgreSQL through a pgx pool.
type PostgresStore struct {
	serial
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to databaseURL. The schema is not touched until
// Initialize is called.
func NewPostgres(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)

	connectCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, databaseURL)
	if err != nil {
		return nil, wrap("connect", "", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, wrap("connect", "", err)
	}
	return &PostgresStore{serial: serial{timeout: o.timeout}, pool: pool}, nil
}

func (s *PostgresStore) Initialize(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		if _, err := s.pool.Exec(ctx, postgresIndex); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		return nil
	})
	return wrap("initialize", "", err)
}

func (s *PostgresStore) InsertPending(ctx context.Context, id string, amount float64, deviceID string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO transactions (id, amount, status, device_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			id, amount, string(types.StatusPending), deviceID)
		return err
	})
	return wrap("insert", id, err)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status types.Status) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, string(status), id)
		return err
	})
	return wrap("update", id, err)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC`)
		if err != nil {
			return err
		}
		out, err = collectTransactions(rows)
		return err
	})
	if err != nil {
		return nil, wrap("list", "", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, olderThan time.Time) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			`SELECT `+transactionColumns+` FROM transactions
			 WHERE status = $1 AND created_at < $2
			 ORDER BY created_at ASC`,
			string(types.StatusPending), olderThan)
		if err != nil {
			return err
		}
		out, err = collectTransactions(rows)
		return err
	})
	if err != nil {
		return nil, wrap("list pending", "", err)
	}
	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `TRUNCATE TABLE transactions`)
		return err
	})
	return wrap("clear", "", err)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func collectTransactions(rows pgx.Rows) ([]types.Transaction, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Transaction, error) {
		var (
			tx     types.Transaction
			status string
		)
		if err := row.Scan(&tx.ID, &tx.Amount, &status, &tx.Timestamp, &tx.DeviceID, &tx.Location); err != nil {
			return types.Transaction{}, err
		}
		tx.Status = types.Status(status)
		tx.Timestamp = tx.Timestamp.UTC()
		return tx, nil
	})
}
