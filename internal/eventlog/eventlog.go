// Package eventlog keeps an append-only PostgreSQL record of every rating
// event the worker applied, so the store can be rebuilt by replaying it.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/postgres"
)

const (
	defaultTable = "rating_events"
	replayBatch  = 500
)

// Record is one logged event.
type Record struct {
	ID         int64        `json:"id"`
	Event      events.Event `json:"event"`
	ReceivedAt time.Time    `json:"received_at"`
}

// Log appends to and reads from the rating_events table.
type Log struct {
	db     *postgres.Client
	table  string
	logger *slog.Logger
}

func New(db *postgres.Client) *Log {
	return &Log{
		db:     db,
		table:  defaultTable,
		logger: slog.Default().With("component", "eventlog"),
	}
}

// EnsureSchema creates the table and its index when missing.
func (l *Log) EnsureSchema(ctx context.Context) error {
	return l.db.InTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id          BIGSERIAL PRIMARY KEY,
				event       JSONB NOT NULL,
				received_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, l.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_received_at_idx ON %s (received_at)`, l.table, l.table),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating event log schema: %w", err)
			}
		}
		return nil
	})
}

// Append records ev.
func (l *Log) Append(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = l.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (event) VALUES ($1)`, l.table), payload)
	if err != nil {
		return fmt.Errorf("appending %s event: %w", ev.Type, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	rows, err := l.db.Query(ctx,
		fmt.Sprintf(`SELECT id, event, received_at FROM %s ORDER BY id DESC LIMIT $1`, l.table), limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	return scanRecords(rows)
}

// Replay calls fn for every record in id order and returns how many it
// visited. Records are read in batches so fn never runs while a query is
// open. The first error from fn stops the replay.
func (l *Log) Replay(ctx context.Context, fn func(Record) error) (int, error) {
	query := fmt.Sprintf(`SELECT id, event, received_at FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, l.table)
	var after int64
	total := 0
	for {
		rows, err := l.db.Query(ctx, query, after, replayBatch)
		if err != nil {
			return total, fmt.Errorf("querying events after %d: %w", after, err)
		}
		batch, err := scanRecords(rows)
		if err != nil {
			return total, err
		}
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return total, fmt.Errorf("replaying event %d: %w", rec.ID, err)
			}
			total++
			after = rec.ID
		}
		if len(batch) < replayBatch {
			l.logger.Info("replay finished", "events", total)
			return total, nil
		}
		l.logger.Debug("replay progress", "events", total, "last_id", after)
	}
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var (
			rec     Record
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &payload, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Event); err != nil {
			return nil, fmt.Errorf("decoding event %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return records, nil
}
