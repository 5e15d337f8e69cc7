package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/actor"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/wallet"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgres "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/uow"
)

// CreateWallet persists an empty wallet and spawns its actor. Creating an
// existing wallet is a conflict, not an overwrite.
func (e *Engine) CreateWallet(ctx context.Context, w domain.Wallet) (domain.WalletState, error) {
	const op = "engine.Engine.CreateWallet"

	st := domain.NewWalletState(time.Now().UTC())

	if err := e.store.Wallets().Create(ctx, w, st); err != nil {
		return domain.WalletState{}, wrap(op, err)
	}

	e.spawnWallet(w, st)

	return st, nil
}

// SendWallet delivers one event to the wallet's actor. Earnings postings may
// arrive before the payee ever opened their wallet page, so a missing wallet
// row is created on the spot rather than dropped, denominated in the settling
// show's currency.
func (e *Engine) SendWallet(ctx context.Context, id uuid.UUID, ev lifecycle.Event) error {
	const op = "engine.Engine.SendWallet"

	currency := "USD"
	if p, ok := ev.(lifecycle.EarningsPosted); ok && p.Currency != "" {
		currency = p.Currency
	}

	ref, err := e.ensureWallet(ctx, id, currency)
	if err != nil {
		return wrap(op, err)
	}

	if !ref.Send(ev) {
		return wrap(op, lifecycle.ErrInvalidTransition)
	}

	return nil
}

func (e *Engine) ensureWallet(ctx context.Context, id uuid.UUID, currency string) (*actor.Ref, error) {
	if ref, ok := e.wallets.Get(id); ok {
		return ref, nil
	}

	w, st, err := e.store.Wallets().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		w = domain.Wallet{ID: id, Currency: currency}
		st = domain.NewWalletState(time.Now().UTC())
		if cerr := e.store.Wallets().Create(ctx, w, st); cerr != nil {
			return nil, cerr
		}
	} else if err != nil {
		return nil, err
	}

	return e.spawnWallet(w, st), nil
}

func (e *Engine) spawnWallet(w domain.Wallet, st domain.WalletState) *actor.Ref {
	m := wallet.New(w, st)

	ref := actor.Spawn(e.baseCtx(), w.ID, func(ctx context.Context, ev lifecycle.Event) {
		e.stepWallet(ctx, m, ev)
	})
	e.wallets.Put(ref)
	e.gate.ShouldApply(w.ID, st.UpdatedAt)

	return ref
}

func (e *Engine) stepWallet(ctx context.Context, m *wallet.Machine, ev lifecycle.Event) {
	id := m.Wallet().ID
	prev := m.State()
	now := time.Now().UTC()

	out, err := m.Apply(now, ev)
	if err != nil {
		if lifecycle.IsInvariant(err) {
			e.log.Error("wallet invariant violated, actor halted",
				slog.String("wallet_id", id.String()),
				slog.Any("error", err),
			)
			e.wallets.Remove(id)
			return
		}
		e.discard(domain.KindWallet, id, ev, err)
		return
	}

	st := m.State()

	err = e.persist(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		if err := e.store.Wallets().With(tx).UpdateState(ctx, id, st, prev.UpdatedAt); err != nil {
			return err
		}
		if err := e.store.Events().With(tx).Append(ctx, domain.AuditEvent{
			EntityKind:    domain.KindWallet,
			EntityID:      id,
			Type:          string(out.Audit),
			TicketID:      out.TicketRef,
			TransactionID: out.TransactionRef,
			OccurredAt:    now,
		}); err != nil {
			return err
		}

		ref, _ := e.wallets.Get(id)
		after(func(ctx context.Context) {
			e.afterCommit(ctx, domain.KindWallet, id, st.UpdatedAt, out, ref)
		})

		return nil
	})
	if err != nil {
		m.Restore(prev)
		if errors.Is(err, repository.ErrConflict) {
			e.resyncWallet(ctx, m, id)
			return
		}
		e.log.Error("wallet transition persist failed",
			slog.String("wallet_id", id.String()),
			slog.String("event", string(ev.EventKind())),
			slog.Any("error", err),
		)
		return
	}

	e.gate.ShouldApply(id, st.UpdatedAt)
}

func (e *Engine) resyncWallet(ctx context.Context, m *wallet.Machine, id uuid.UUID) {
	_, st, err := e.store.Wallets().Get(ctx, id)
	if err != nil {
		e.log.Error("wallet resync failed", slog.String("wallet_id", id.String()), slog.Any("error", err))
		e.wallets.Remove(id)
		return
	}

	m.Restore(st)
	e.gate.ShouldApply(id, st.UpdatedAt)
}
