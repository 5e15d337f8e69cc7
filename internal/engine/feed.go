package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
)

// HandleStateChanged is the change-feed consumer. The idempotent-apply gate
// filters our own publishes and duplicate deliveries; anything that passes
// means another replica advanced the entity, so the resident copy is
// refreshed from the store.
func (e *Engine) HandleStateChanged(
	ctx context.Context,
	kind domain.EntityKind,
	id uuid.UUID,
	updatedAt time.Time,
) {
	if !e.gate.ShouldApply(id, updatedAt) {
		return
	}

	var err error
	switch kind {
	case domain.KindShow:
		err = e.refreshShow(ctx, id)
	case domain.KindTicket:
		err = e.refreshTicket(ctx, id)
	case domain.KindWallet:
		err = e.refreshWallet(ctx, id)
	}

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("change feed refresh failed",
			slog.String("entity_kind", string(kind)),
			slog.String("entity_id", id.String()),
			slog.Any("error", err),
		)
	}
}

// refreshShow respawns the show actor on the freshly read state. Respawning
// instead of mutating keeps all machine access on actor goroutines; pending
// timers are re-armed from the new anchors.
func (e *Engine) refreshShow(ctx context.Context, id uuid.UUID) error {
	if _, ok := e.shows.Get(id); !ok {
		return nil
	}

	sh, st, err := e.store.Shows().Get(ctx, id)
	if err != nil {
		return err
	}

	if st.Status == domain.ShowCancelled || st.Status == domain.ShowFinalized {
		e.shows.Remove(id)
		e.gate.Forget(id)
		e.handleFor(id).snap.Store(&st)
		return nil
	}

	e.spawnShow(sh, st)

	return nil
}

func (e *Engine) refreshTicket(ctx context.Context, id uuid.UUID) error {
	if _, ok := e.tickets.Get(id); !ok {
		return nil
	}

	t, st, err := e.store.Tickets().Get(ctx, id)
	if err != nil {
		return err
	}

	if st.Status == domain.TicketCancelled || st.Status == domain.TicketFinalized {
		e.tickets.Remove(id)
		e.gate.Forget(id)
		return nil
	}

	e.spawnTicket(t, st)

	return nil
}

func (e *Engine) refreshWallet(ctx context.Context, id uuid.UUID) error {
	if _, ok := e.wallets.Get(id); !ok {
		return nil
	}

	w, st, err := e.store.Wallets().Get(ctx, id)
	if err != nil {
		return err
	}

	e.spawnWallet(w, st)

	return nil
}
