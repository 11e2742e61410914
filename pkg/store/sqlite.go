package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"payment-relay/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	device_id  TEXT NOT NULL,
	amount     REAL NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	location   TEXT
);
CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at DESC);`

// SQLiteStore persists transactions in a SQLite file. created_at is stored as
// unix nanoseconds and assigned by the store, not the database.
type SQLiteStore struct {
	serial
	clock monotonicClock
	db    *sql.DB
}

// NewSQLite opens the database at dsn, e.g. "file:payments.db?_busy_timeout=5000"
// or ":memory:".
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrap("connect", "", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap("connect", "", err)
	}

	return &SQLiteStore{
		serial: serial{timeout: o.timeout},
		clock:  monotonicClock{now: o.now},
		db:     db,
	}, nil
}

func (s *SQLiteStore) Initialize(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	})
	return wrap("initialize", "", err)
}

func (s *SQLiteStore) InsertPending(ctx context.Context, id string, amount float64, deviceID string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO transactions (id, amount, status, device_id, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			id, amount, string(types.StatusPending), deviceID, s.clock.next().UnixNano())
		return err
	})
	return wrap("insert", id, err)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status types.Status) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
		return err
	})
	return wrap("update", id, err)
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC, rowid DESC`)
		if err != nil {
			return err
		}
		out, err = scanSQLRows(rows)
		return err
	})
	if err != nil {
		return nil, wrap("list", "", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, olderThan time.Time) ([]types.Transaction, error) {
	var out []types.Transaction
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions
			 WHERE status = ? AND created_at < ?
			 ORDER BY created_at ASC, rowid ASC`,
			string(types.StatusPending), olderThan.UnixNano())
		if err != nil {
			return err
		}
		out, err = scanSQLRows(rows)
		return err
	})
	if err != nil {
		return nil, wrap("list pending", "", err)
	}
	return out, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM transactions`)
		return err
	})
	return wrap("clear", "", err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLRows(rows *sql.Rows) ([]types.Transaction, error) {
	defer rows.Close()

	out := []types.Transaction{}
	for rows.Next() {
		var (
			tx       types.Transaction
			status   string
			created  int64
			location sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.Amount, &status, &created, &tx.DeviceID, &location); err != nil {
			return nil, err
		}
		tx.Status = types.Status(status)
		tx.Timestamp = time.Unix(0, created).UTC()
		if location.Valid {
			tx.Location = &location.String
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
