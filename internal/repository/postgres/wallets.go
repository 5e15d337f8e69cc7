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

type WalletRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *WalletRepo) With(db DB) *WalletRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *WalletRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *WalletRepo) Create(ctx context.Context, wallet domain.Wallet, st domain.WalletState) error {
	const op = "postgres.WalletRepo.Create"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	_, err = r.handle().Exec(ctx,
		`INSERT INTO wallets (id, currency, state, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		wallet.ID, wallet.Currency, doc, st.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *WalletRepo) Get(ctx context.Context, id uuid.UUID) (domain.Wallet, domain.WalletState, error) {
	const op = "postgres.WalletRepo.Get"

	var (
		wallet domain.Wallet
		doc    []byte
	)

	err := r.handle().QueryRow(ctx,
		`SELECT id, currency, state FROM wallets WHERE id = $1`,
		id,
	).Scan(&wallet.ID, &wallet.Currency, &doc)
	if err != nil {
		return domain.Wallet{}, domain.WalletState{}, wrapDBErr(op, err)
	}

	var st domain.WalletState
	if err := json.Unmarshal(doc, &st); err != nil {
		return domain.Wallet{}, domain.WalletState{}, fmt.Errorf("%s:%w", op, err)
	}

	return wallet, st, nil
}

// UpdateState replaces the full balance+ledger document, fenced on the
// previously persisted updated_at.
func (r *WalletRepo) UpdateState(
	ctx context.Context,
	id uuid.UUID,
	st domain.WalletState,
	expected time.Time,
) error {
	const op = "postgres.WalletRepo.UpdateState"

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE wallets SET state = $2, updated_at = $3
		 WHERE id = $1 AND updated_at = $4`,
		id, doc, st.UpdatedAt, expected,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}
