package outbox

import (
	"context"
	"sort"
	"time"

	"github.com/agendave/agendave/libs/db"
	otelx "github.com/agendave/agendave/libs/otel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by both the pool and a transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is a stored event as the publisher reads it back.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores evt on q together with the trace context of ctx. q is the transaction that
// makes the change the event describes.
func (r *Repository) Insert(ctx context.Context, q Execer, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Claim stamps up to limit unpublished events and hands them to fn oldest first. The stamps
// commit only when fn returns nil; rows another publisher holds are skipped.
func (r *Repository) Claim(ctx context.Context, limit int, fn func([]Record) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE outbox_events o
			SET published_at = now()
			FROM (
				SELECT id
				FROM outbox_events
				WHERE published_at IS NULL
				ORDER BY id
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			) due
			WHERE o.id = due.id
			RETURNING o.id, o.event_id::text, o.aggregate_type, o.aggregate_id, o.event_type,
				o.payload, o.traceparent, o.tracestate, o.created_at
		`, limit)
		if err != nil {
			return err
		}
		records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			var rcd Record
			err := row.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType,
				&rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt)
			return rcd, err
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		// RETURNING does not keep the subquery order.
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
		return fn(records)
	})
}
