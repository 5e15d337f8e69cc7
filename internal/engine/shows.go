package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/actor"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/show"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgres "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/uow"
)

func wrap(op string, err error) error {
	return fmt.Errorf("%s:%w", op, err)
}

// showHandle is the lock-free snapshot tickets read through ticket.ShowView.
// The owning actor stores after every commit; readers never block it.
type showHandle struct {
	snap atomic.Pointer[domain.ShowState]
}

func (h *showHandle) Snapshot() (domain.ShowState, bool) {
	p := h.snap.Load()
	if p == nil {
		return domain.ShowState{}, false
	}
	return *p, true
}

func (e *Engine) handleFor(showID uuid.UUID) *showHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.views[showID]
	if !ok {
		h = &showHandle{}
		e.views[showID] = h
	}

	return h
}

// CreateShow persists a freshly scheduled show with an open box office and
// spawns its actor.
func (e *Engine) CreateShow(ctx context.Context, sh domain.Show) (domain.ShowState, error) {
	const op = "engine.Engine.CreateShow"

	st := domain.NewShowState(sh.Capacity, time.Now().UTC())

	if err := e.store.Shows().Create(ctx, sh, st); err != nil {
		return domain.ShowState{}, wrap(op, err)
	}

	e.spawnShow(sh, st)
	e.gate.ShouldApply(sh.ID, st.UpdatedAt)

	if err := e.feed.PublishStateChanged(ctx, domain.KindShow, sh.ID, st.UpdatedAt); err != nil {
		e.log.Warn("change feed publish failed", slog.Any("error", err))
	}

	return st, nil
}

// SendShow delivers one event to the show's actor, waking it from the store
// if needed. Terminal shows reject everything with ErrInvalidTransition.
func (e *Engine) SendShow(ctx context.Context, id uuid.UUID, ev lifecycle.Event) error {
	const op = "engine.Engine.SendShow"

	ref, err := e.ensureShow(ctx, id)
	if err != nil {
		return wrap(op, err)
	}

	if !ref.Send(ev) {
		return wrap(op, lifecycle.ErrInvalidTransition)
	}

	return nil
}

func (e *Engine) ensureShow(ctx context.Context, id uuid.UUID) (*actor.Ref, error) {
	if ref, ok := e.shows.Get(id); ok {
		return ref, nil
	}

	sh, st, err := e.store.Shows().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if st.Status == domain.ShowCancelled || st.Status == domain.ShowFinalized {
		return nil, lifecycle.ErrInvalidTransition
	}

	return e.spawnShow(sh, st), nil
}

func (e *Engine) spawnShow(sh domain.Show, st domain.ShowState) *actor.Ref {
	m := show.New(sh, st, e.cfg.Show)
	h := e.handleFor(sh.ID)
	h.snap.Store(&st)

	ref := actor.Spawn(e.baseCtx(), sh.ID, func(ctx context.Context, ev lifecycle.Event) {
		e.stepShow(ctx, m, h, ev)
	})
	e.shows.Put(ref)
	e.gate.ShouldApply(sh.ID, st.UpdatedAt)

	rescheduleShow(ref, st, e.cfg.Show)

	return ref
}

// rescheduleShow re-arms the deferred self-events implied by persisted
// anchors. Fire times in the past deliver immediately.
func rescheduleShow(ref *actor.Ref, st domain.ShowState, cfg show.Config) {
	switch st.Status {
	case domain.ShowStopped:
		if st.Runtime != nil && st.Runtime.EndedAt != nil {
			ref.ScheduleAt(st.Runtime.EndedAt.Add(cfg.GracePeriod), lifecycle.GracePeriodElapsed{})
		}
	case domain.ShowInEscrow:
		if st.Escrow != nil {
			ref.ScheduleAt(st.Escrow.StartedAt.Add(cfg.EscrowPeriod), lifecycle.EscrowPeriodElapsed{})
		}
	}
}

// stepShow is the show actor's proc: apply, persist with the audit row, then
// run the after-commit half. Runs only on the actor goroutine.
func (e *Engine) stepShow(ctx context.Context, m *show.Machine, h *showHandle, ev lifecycle.Event) {
	id := m.Show().ID
	prev := m.State()
	now := time.Now().UTC()

	out, err := m.Apply(now, ev)
	if err != nil {
		if lifecycle.IsInvariant(err) {
			e.log.Error("show invariant violated, actor halted",
				slog.String("show_id", id.String()),
				slog.Any("error", err),
			)
			e.shows.Remove(id)
			return
		}
		// Two reserves can race the last seat: both pass the snapshot check,
		// the box office closes on the first, and the second ticket row is an
		// orphan the show never counted. Kill it before it can be paid.
		if r, ok := ev.(lifecycle.TicketReserved); ok && errors.Is(err, lifecycle.ErrInvalidTransition) {
			if serr := e.SendTicket(ctx, r.TicketID, lifecycle.ReservationRejected{}); serr != nil {
				e.log.Warn("reservation reject delivery failed",
					slog.String("ticket_id", r.TicketID.String()),
					slog.Any("error", serr),
				)
			}
		}
		e.discard(domain.KindShow, id, ev, err)
		return
	}

	st := m.State()

	err = e.persist(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		if err := e.store.Shows().With(tx).UpdateState(ctx, id, st, prev.UpdatedAt); err != nil {
			return err
		}
		if err := e.store.Events().With(tx).Append(ctx, domain.AuditEvent{
			EntityKind:    domain.KindShow,
			EntityID:      id,
			Type:          string(out.Audit),
			TicketID:      out.TicketRef,
			TransactionID: out.TransactionRef,
			OccurredAt:    now,
		}); err != nil {
			return err
		}

		ref, _ := e.shows.Get(id)
		after(func(ctx context.Context) {
			e.afterCommit(ctx, domain.KindShow, id, st.UpdatedAt, out, ref)
		})

		return nil
	})
	if err != nil {
		m.Restore(prev)
		if errors.Is(err, repository.ErrConflict) {
			e.resyncShow(ctx, m, h, id)
			return
		}
		e.log.Error("show transition persist failed",
			slog.String("show_id", id.String()),
			slog.String("event", string(ev.EventKind())),
			slog.Any("error", err),
		)
		return
	}

	e.gate.ShouldApply(id, st.UpdatedAt)
	h.snap.Store(&st)

	if m.Terminal() {
		e.shows.Remove(id)
		e.gate.Forget(id)
	}
}

// resyncShow reloads the persisted state after a fencing conflict. Another
// writer advanced the show; its feed message will have been self-gated, so
// the resident copy must be refreshed here.
func (e *Engine) resyncShow(ctx context.Context, m *show.Machine, h *showHandle, id uuid.UUID) {
	_, st, err := e.store.Shows().Get(ctx, id)
	if err != nil {
		e.log.Error("show resync failed", slog.String("show_id", id.String()), slog.Any("error", err))
		e.shows.Remove(id)
		return
	}

	m.Restore(st)
	h.snap.Store(&st)
	e.gate.ShouldApply(id, st.UpdatedAt)
}

// persist runs the unit of work, retrying serialization aborts. The machine
// mutation is already applied in memory; only the write repeats.
func (e *Engine) persist(
	ctx context.Context,
	fn func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error,
) error {
	const attempts = 3

	var err error
	for i := 0; i < attempts; i++ {
		err = e.uow.Do(ctx, fn)
		if err == nil || !postgres.IsRetryable(err) {
			return err
		}
	}

	return err
}
