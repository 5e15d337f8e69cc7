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
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/ticket"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgres "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/uow"
)

// CreateTicket persists a new reservation and fires the creation event at its
// actor. The machine decides between the free path and the invoice path.
func (e *Engine) CreateTicket(ctx context.Context, t domain.Ticket) (domain.TicketState, error) {
	const op = "engine.Engine.CreateTicket"

	// The show must be resident and selling before a ticket row exists.
	if _, err := e.ensureShow(ctx, t.ShowID); err != nil {
		return domain.TicketState{}, wrap(op, err)
	}

	h := e.handleFor(t.ShowID)
	if snap, ok := h.Snapshot(); !ok || snap.Status != domain.ShowBoxOfficeOpen {
		return domain.TicketState{}, wrap(op, lifecycle.ErrNothingToDo)
	}

	st := domain.NewTicketState(time.Now().UTC())

	if err := e.store.Tickets().Create(ctx, t, st); err != nil {
		return domain.TicketState{}, wrap(op, err)
	}

	ref := e.spawnTicket(t, st)
	if !ref.Send(lifecycle.TicketCreated{}) {
		return domain.TicketState{}, wrap(op, lifecycle.ErrInvalidTransition)
	}

	return st, nil
}

// SendTicket delivers one event to the ticket's actor, waking it from the
// store if needed.
func (e *Engine) SendTicket(ctx context.Context, id uuid.UUID, ev lifecycle.Event) error {
	const op = "engine.Engine.SendTicket"

	ref, err := e.ensureTicket(ctx, id)
	if err != nil {
		return wrap(op, err)
	}

	if !ref.Send(ev) {
		return wrap(op, lifecycle.ErrInvalidTransition)
	}

	return nil
}

func (e *Engine) ensureTicket(ctx context.Context, id uuid.UUID) (*actor.Ref, error) {
	if ref, ok := e.tickets.Get(id); ok {
		return ref, nil
	}

	t, st, err := e.store.Tickets().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if st.Status == domain.TicketCancelled || st.Status == domain.TicketFinalized {
		return nil, lifecycle.ErrInvalidTransition
	}

	return e.spawnTicket(t, st), nil
}

func (e *Engine) spawnTicket(t domain.Ticket, st domain.TicketState) *actor.Ref {
	m := ticket.New(t, st, e.cfg.Ticket, e.handleFor(t.ShowID))

	ref := actor.Spawn(e.baseCtx(), t.ID, func(ctx context.Context, ev lifecycle.Event) {
		e.stepTicket(ctx, m, ev)
	})
	e.tickets.Put(ref)
	e.gate.ShouldApply(t.ID, st.UpdatedAt)

	rescheduleTicket(ref, st, e.cfg.Ticket)

	return ref
}

// rescheduleTicket re-arms deferred self-events from persisted state. The
// reservation clock has no dedicated anchor; it re-anchors on the last
// transition, which only ever lengthens the window.
func rescheduleTicket(ref *actor.Ref, st domain.TicketState, cfg ticket.Config) {
	switch st.Status {
	case domain.TicketWaiting4Invoice,
		domain.TicketWaiting4Payment,
		domain.TicketInitiatedPayment,
		domain.TicketReceivedPayment:
		ref.ScheduleAt(st.UpdatedAt.Add(cfg.ReservationTTL), lifecycle.ReservationTimedOut{})
	case domain.TicketInEscrow, domain.TicketMissedShow:
		if st.Escrow != nil {
			ref.ScheduleAt(st.Escrow.StartedAt.Add(cfg.EscrowPeriod), lifecycle.EscrowPeriodElapsed{})
		}
	}
}

func (e *Engine) stepTicket(ctx context.Context, m *ticket.Machine, ev lifecycle.Event) {
	id := m.Ticket().ID
	prev := m.State()
	now := time.Now().UTC()

	out, err := m.Apply(now, ev)
	if err != nil {
		if lifecycle.IsInvariant(err) {
			e.log.Error("ticket invariant violated, actor halted",
				slog.String("ticket_id", id.String()),
				slog.Any("error", err),
			)
			e.tickets.Remove(id)
			return
		}
		e.discard(domain.KindTicket, id, ev, err)
		return
	}

	st := m.State()

	err = e.persist(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		if err := e.store.Tickets().With(tx).UpdateState(ctx, id, st, prev.UpdatedAt); err != nil {
			return err
		}
		if err := e.store.Events().With(tx).Append(ctx, domain.AuditEvent{
			EntityKind:    domain.KindTicket,
			EntityID:      id,
			Type:          string(out.Audit),
			TicketID:      out.TicketRef,
			TransactionID: out.TransactionRef,
			OccurredAt:    now,
		}); err != nil {
			return err
		}

		ref, _ := e.tickets.Get(id)
		after(func(ctx context.Context) {
			e.afterCommit(ctx, domain.KindTicket, id, st.UpdatedAt, out, ref)
		})

		return nil
	})
	if err != nil {
		m.Restore(prev)
		if errors.Is(err, repository.ErrConflict) {
			e.resyncTicket(ctx, m, id)
			return
		}
		e.log.Error("ticket transition persist failed",
			slog.String("ticket_id", id.String()),
			slog.String("event", string(ev.EventKind())),
			slog.Any("error", err),
		)
		return
	}

	e.gate.ShouldApply(id, st.UpdatedAt)

	if m.Terminal() {
		e.tickets.Remove(id)
		e.gate.Forget(id)
	}
}

func (e *Engine) resyncTicket(ctx context.Context, m *ticket.Machine, id uuid.UUID) {
	_, st, err := e.store.Tickets().Get(ctx, id)
	if err != nil {
		e.log.Error("ticket resync failed", slog.String("ticket_id", id.String()), slog.Any("error", err))
		e.tickets.Remove(id)
		return
	}

	m.Restore(st)
	e.gate.ShouldApply(id, st.UpdatedAt)
}
