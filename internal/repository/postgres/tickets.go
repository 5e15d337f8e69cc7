package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *TicketRepo) Create(ctx context.Context, ticket domain.Ticket, st domain.TicketState) error {
	const op = "postgres.TicketRepo.Create"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	_, err = r.handle().Exec(ctx,
		`INSERT INTO tickets (id, show_id, customer_name, price, currency, active, state, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ticket.ID, ticket.ShowID, ticket.CustomerName, ticket.Price, ticket.Currency,
		st.Active, doc, st.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *TicketRepo) Get(ctx context.Context, id uuid.UUID) (domain.Ticket, domain.TicketState, error) {
	const op = "postgres.TicketRepo.Get"

	var (
		ticket domain.Ticket
		doc    []byte
	)

	err := r.handle().QueryRow(ctx,
		`SELECT id, show_id, customer_name, price, currency, state
		 FROM tickets WHERE id = $1`,
		id,
	).Scan(&ticket.ID, &ticket.ShowID, &ticket.CustomerName, &ticket.Price, &ticket.Currency, &doc)
	if err != nil {
		return domain.Ticket{}, domain.TicketState{}, wrapDBErr(op, err)
	}

	var st domain.TicketState
	if err := json.Unmarshal(doc, &st); err != nil {
		return domain.Ticket{}, domain.TicketState{}, fmt.Errorf("%s:%w", op, err)
	}

	return ticket, st, nil
}

// UpdateState replaces the full state document, fenced on the previously
// persisted updated_at.
func (r *TicketRepo) UpdateState(
	ctx context.Context,
	id uuid.UUID,
	st domain.TicketState,
	expected time.Time,
) error {
	const op = "postgres.TicketRepo.UpdateState"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets SET state = $2, active = $3, updated_at = $4
		 WHERE id = $1 AND updated_at = $5`,
		id, doc, st.Active, st.UpdatedAt, expected,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

// ListActiveByShow returns the live tickets of one show, for fan-out of show
// level events (show ended, show cancelled) and for rehydration.
func (r *TicketRepo) ListActiveByShow(ctx context.Context, showID uuid.UUID) ([]domain.Ticket, []domain.TicketState, error) {
	const op = "postgres.TicketRepo.ListActiveByShow"

	rows, err := r.handle().Query(ctx,
		`SELECT id, show_id, customer_name, price, currency, state
		 FROM tickets WHERE show_id = $1 AND active`,
		showID,
	)
	if err != nil {
		return nil, nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var (
		tickets []domain.Ticket
		states  []domain.TicketState
	)

	for rows.Next() {
		var (
			ticket domain.Ticket
			doc    []byte
		)

		if err := rows.Scan(&ticket.ID, &ticket.ShowID, &ticket.CustomerName,
			&ticket.Price, &ticket.Currency, &doc); err != nil {
			return nil, nil, wrapDBErr(op, err)
		}

		var st domain.TicketState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}

		tickets = append(tickets, ticket)
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, wrapDBErr(op, err)
	}

	return tickets, states, nil
}
