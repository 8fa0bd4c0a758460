// Package mirror projects ledger events into PostgreSQL.
//
// Every event becomes one row of ledger_events keyed by its sequence
// number and unique on its call ID; redelivered events are ignored. Views
// over that table give the per-kind shape used by reporting tools.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/internal/events"
)

// Execer is the part of a pgx pool or connection the mirror writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertEvent = `INSERT INTO ledger_events
    (seq, call_id, kind, contract, caller, accounts, amounts, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (call_id) DO NOTHING`

// Sink is an events.Sink writing to PostgreSQL.
type Sink struct {
	db     Execer
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ events.Sink = (*Sink)(nil)

// New creates a sink over an existing connection.
func New(db Execer, logger zerolog.Logger) *Sink {
	return &Sink{db: db, logger: logger}
}

// Connect opens a pool for dsn, checks it and applies the schema.
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("mirror: ping: %w", err)
	}
	s := New(pool, logger)
	s.pool = pool
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the table, indexes and views if they are missing.
func (s *Sink) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("mirror: schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Name implements events.Sink.
func (s *Sink) Name() string { return "postgres" }

// Deliver implements events.Sink.
func (s *Sink) Deliver(ctx context.Context, evs []events.Event) error {
	inserted := 0
	for i := range evs {
		ev := &evs[i]
		accounts, err := json.Marshal(ev.Accounts)
		if err != nil {
			return fmt.Errorf("mirror: encode accounts of %s: %w", ev.CallID, err)
		}
		amounts, err := json.Marshal(ev.Amounts)
		if err != nil {
			return fmt.Errorf("mirror: encode amounts of %s: %w", ev.CallID, err)
		}
		tag, err := s.db.Exec(ctx, insertEvent,
			int64(ev.Seq),
			ev.CallID.String(),
			string(ev.Kind),
			ev.Contract.String(),
			ev.Account(events.RoleCaller).String(),
			string(accounts),
			string(amounts),
			ev.Time,
		)
		if err != nil {
			return fmt.Errorf("mirror: insert %s: %w", ev.CallID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if dup := len(evs) - inserted; dup > 0 {
		s.logger.Debug().Int("duplicates", dup).Msg("Skipped mirrored events")
	}
	return nil
}

// Close releases the pool opened by Connect.
func (s *Sink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
