// Package store persists the append-only fill history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dex_trader/internal/core"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL,
	pair        TEXT NOT NULL,
	side        TEXT NOT NULL,
	filled_size TEXT NOT NULL,
	avg_price   TEXT NOT NULL,
	fee_paid    TEXT NOT NULL,
	venue       TEXT NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);
CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills(ts);
`

// SQLiteStore is the durable fill history. WAL mode keeps writers from
// blocking the reconciler's reads.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the fill database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open fill store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fill store schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveFill appends one fill.
func (s *SQLiteStore) SaveFill(ctx context.Context, fill *core.Fill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, pair, side, filled_size, avg_price, fee_paid, venue, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Pair,
		string(fill.Side),
		fill.FilledSize.String(),
		fill.AvgPrice.String(),
		fill.FeePaid.String(),
		fill.Venue,
		fill.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fill: %w", err)
	}
	return nil
}

// LoadFills returns the whole history in append order.
func (s *SQLiteStore) LoadFills(ctx context.Context) ([]*core.Fill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, pair, side, filled_size, avg_price, fee_paid, venue, ts
		 FROM fills ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load fills: %w", err)
	}
	defer rows.Close()

	var fills []*core.Fill
	for rows.Next() {
		var (
			fill              core.Fill
			side              string
			size, price, fee  string
			ts                int64
		)
		if err := rows.Scan(&fill.OrderID, &fill.Pair, &side, &size, &price, &fee, &fill.Venue, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan fill row: %w", err)
		}

		fill.Side = core.OrderSide(side)
		if fill.FilledSize, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("corrupt filled_size %q: %w", size, err)
		}
		if fill.AvgPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("corrupt avg_price %q: %w", price, err)
		}
		if fill.FeePaid, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("corrupt fee_paid %q: %w", fee, err)
		}
		fill.Timestamp = time.Unix(0, ts)
		fills = append(fills, &fill)
	}
	return fills, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
