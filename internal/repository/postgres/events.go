package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
)

// EventRepo is the append-only lifecycle audit trail. Rows are written in the
// same transaction as the state document they explain, and never updated.
type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *EventRepo) Append(ctx context.Context, ev domain.AuditEvent) error {
	const op = "postgres.EventRepo.Append"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO lifecycle_events (entity_kind, entity_id, event_type, ticket_id, transaction_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.EntityKind, ev.EntityID, ev.Type, ev.TicketID, nullIfEmpty(ev.TransactionID), ev.OccurredAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *EventRepo) ListByEntity(
	ctx context.Context,
	kind domain.EntityKind,
	entityID uuid.UUID,
	limit int,
) ([]domain.AuditEvent, error) {
	const op = "postgres.EventRepo.ListByEntity"

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.handle().Query(ctx,
		`SELECT id, entity_kind, entity_id, event_type, ticket_id, transaction_id, occurred_at
		 FROM lifecycle_events
		 WHERE entity_kind = $1 AND entity_id = $2
		 ORDER BY id DESC
		 LIMIT $3`,
		kind, entityID, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var events []domain.AuditEvent

	for rows.Next() {
		var (
			ev   domain.AuditEvent
			txID *string
		)

		if err := rows.Scan(&ev.ID, &ev.EntityKind, &ev.EntityID, &ev.Type,
			&ev.TicketID, &txID, &ev.OccurredAt); err != nil {
			return nil, wrapDBErr(op, err)
		}

		if txID != nil {
			ev.TransactionID = *txID
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return events, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
