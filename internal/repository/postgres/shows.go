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

type ShowRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ShowRepo) With(db DB) *ShowRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ShowRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *ShowRepo) Create(ctx context.Context, show domain.Show, st domain.ShowState) error {
	const op = "postgres.ShowRepo.Create"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	_, err = r.handle().Exec(ctx,
		`INSERT INTO shows (id, creator_wallet, agent_wallet, name, capacity, price, currency, starts_at, active, state, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		show.ID, show.CreatorWallet, show.AgentWallet, show.Name, show.Capacity,
		show.Price, show.Currency, show.StartsAt, st.Active, doc, st.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *ShowRepo) Get(ctx context.Context, id uuid.UUID) (domain.Show, domain.ShowState, error) {
	const op = "postgres.ShowRepo.Get"

	var (
		show domain.Show
		doc  []byte
	)

	err := r.handle().QueryRow(ctx,
		`SELECT id, creator_wallet, agent_wallet, name, capacity, price, currency, starts_at, state
		 FROM shows WHERE id = $1`,
		id,
	).Scan(&show.ID, &show.CreatorWallet, &show.AgentWallet, &show.Name,
		&show.Capacity, &show.Price, &show.Currency, &show.StartsAt, &doc)
	if err != nil {
		return domain.Show{}, domain.ShowState{}, wrapDBErr(op, err)
	}

	var st domain.ShowState
	if err := json.Unmarshal(doc, &st); err != nil {
		return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, err)
	}

	return show, st, nil
}

// UpdateState replaces the full state document. The write is fenced on the
// previously persisted updated_at; a mismatch means someone else already
// advanced this show and the caller's transition must not land.
func (r *ShowRepo) UpdateState(
	ctx context.Context,
	id uuid.UUID,
	st domain.ShowState,
	expected time.Time,
) error {
	const op = "postgres.ShowRepo.UpdateState"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE shows SET state = $2, active = $3, updated_at = $4
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

// ListActive returns the shows whose machines must be rehydrated on startup.
func (r *ShowRepo) ListActive(ctx context.Context) ([]domain.Show, []domain.ShowState, error) {
	const op = "postgres.ShowRepo.ListActive"

	rows, err := r.handle().Query(ctx,
		`SELECT id, creator_wallet, agent_wallet, name, capacity, price, currency, starts_at, state
		 FROM shows WHERE active`,
	)
	if err != nil {
		return nil, nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var (
		shows  []domain.Show
		states []domain.ShowState
	)

	for rows.Next() {
		var (
			show domain.Show
			doc  []byte
		)

		if err := rows.Scan(&show.ID, &show.CreatorWallet, &show.AgentWallet, &show.Name,
			&show.Capacity, &show.Price, &show.Currency, &show.StartsAt, &doc); err != nil {
			return nil, nil, wrapDBErr(op, err)
		}

		var st domain.ShowState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}

		shows = append(shows, show)
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, wrapDBErr(op, err)
	}

	return shows, states, nil
}
