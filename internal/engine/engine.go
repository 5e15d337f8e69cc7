// Package engine runs the lifecycle machines. Every show, ticket and wallet
// gets one mailbox actor; each accepted event is persisted together with its
// audit row in one transaction, and only after commit do effects go to the
// queue, routed events to sibling actors, and the change notification to the
// feed.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/actor"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/show"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/ticket"
	postgres "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/uow"
)

// EffectPublisher hands side effects to the durable effect queue.
type EffectPublisher interface {
	Publish(ctx context.Context, sourceKind string, sourceID uuid.UUID, eff lifecycle.Effect) error
}

// ChangeFeed announces committed transitions to other replicas and the UI
// sync layer.
type ChangeFeed interface {
	PublishStateChanged(ctx context.Context, kind domain.EntityKind, id uuid.UUID, updatedAt time.Time) error
}

// Invalidator drops read-side cache entries after a transition lands.
type Invalidator interface {
	InvalidateShow(ctx context.Context, showID uuid.UUID) error
	InvalidateTicket(ctx context.Context, ticketID uuid.UUID) error
}

type Config struct {
	Show   show.Config
	Ticket ticket.Config
}

type Engine struct {
	log   *slog.Logger
	store *postgres.Store
	uow   *uow.UoW

	effects EffectPublisher
	feed    ChangeFeed
	cache   Invalidator
	gate    *lifecycle.Gate

	cfg Config

	shows   *actor.Registry
	tickets *actor.Registry
	wallets *actor.Registry

	mu     sync.Mutex
	views  map[uuid.UUID]*showHandle
	runCtx context.Context
}

func New(
	log *slog.Logger,
	store *postgres.Store,
	u *uow.UoW,
	effects EffectPublisher,
	feed ChangeFeed,
	cache Invalidator,
	cfg Config,
) *Engine {
	return &Engine{
		log:     log,
		store:   store,
		uow:     u,
		effects: effects,
		feed:    feed,
		cache:   cache,
		gate:    lifecycle.NewGate(),
		cfg:     cfg,
		shows:   actor.NewRegistry(),
		tickets: actor.NewRegistry(),
		wallets: actor.NewRegistry(),
		views:   make(map[uuid.UUID]*showHandle),
	}
}

// Start rehydrates actors for every non-terminal show and its live tickets.
// Deferred self-events are re-armed from persisted anchors, so timers survive
// a restart.
func (e *Engine) Start(ctx context.Context) error {
	const op = "engine.Engine.Start"

	e.runCtx = ctx

	shows, states, err := e.store.Shows().ListActive(ctx)
	if err != nil {
		return wrap(op, err)
	}

	for i := range shows {
		e.spawnShow(shows[i], states[i])

		tickets, tstates, err := e.store.Tickets().ListActiveByShow(ctx, shows[i].ID)
		if err != nil {
			return wrap(op, err)
		}
		for j := range tickets {
			e.spawnTicket(tickets[j], tstates[j])
		}
	}

	e.log.Info("lifecycle engine started",
		slog.Int("shows", len(shows)),
	)

	return nil
}

// Stop terminates every actor. Committed state is durable, so nothing is
// flushed here.
func (e *Engine) Stop() {
	e.tickets.StopAll()
	e.shows.StopAll()
	e.wallets.StopAll()
}

func (e *Engine) baseCtx() context.Context {
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// deliver routes an event to the addressed machine, waking it from the store
// when it is not resident.
func (e *Engine) deliver(ctx context.Context, to lifecycle.Address, ev lifecycle.Event) error {
	switch to.Kind {
	case domain.KindShow:
		return e.SendShow(ctx, to.ID, ev)
	case domain.KindTicket:
		return e.SendTicket(ctx, to.ID, ev)
	case domain.KindWallet:
		return e.SendWallet(ctx, to.ID, ev)
	default:
		return lifecycle.Invariant("engine.deliver", "unroutable address kind %q", to.Kind)
	}
}

// afterCommit runs the post-commit half of one transition: effect publishes,
// sibling routing, timer arming, cache invalidation and the feed
// announcement. Failures here are logged, never propagated; the state is
// already durable and webhook retries or rehydration recover the rest.
func (e *Engine) afterCommit(
	ctx context.Context,
	kind domain.EntityKind,
	id uuid.UUID,
	updatedAt time.Time,
	out lifecycle.Outcome,
	ref *actor.Ref,
) {
	for _, eff := range out.Effects {
		if err := e.effects.Publish(ctx, string(kind), id, eff); err != nil {
			e.log.Error("effect publish failed",
				slog.String("effect", eff.EffectName()),
				slog.String("entity_id", id.String()),
				slog.Any("error", err),
			)
		}
	}

	for _, r := range out.Routed {
		if err := e.deliver(ctx, r.To, r.Event); err != nil {
			// A terminal sibling rejecting a route is expected traffic, not a
			// failure: a released seat has nowhere to go once its show died.
			if errors.Is(err, lifecycle.ErrInvalidTransition) {
				e.log.Debug("event route rejected",
					slog.String("to_id", r.To.ID.String()),
					slog.String("event", string(r.Event.EventKind())),
				)
				continue
			}
			e.log.Error("event routing failed",
				slog.String("to_kind", string(r.To.Kind)),
				slog.String("to_id", r.To.ID.String()),
				slog.String("event", string(r.Event.EventKind())),
				slog.Any("error", err),
			)
		}
	}

	if kind == domain.KindShow && len(out.Broadcast) > 0 {
		e.fanOut(ctx, id, out.Broadcast)
	}

	if ref != nil {
		for _, s := range out.Timers {
			ref.ScheduleAt(s.At(), s.Event)
		}
	}

	switch kind {
	case domain.KindShow:
		if err := e.cache.InvalidateShow(ctx, id); err != nil {
			e.log.Warn("show cache invalidation failed", slog.Any("error", err))
		}
	case domain.KindTicket:
		if err := e.cache.InvalidateTicket(ctx, id); err != nil {
			e.log.Warn("ticket cache invalidation failed", slog.Any("error", err))
		}
	}

	if err := e.feed.PublishStateChanged(ctx, kind, id, updatedAt); err != nil {
		e.log.Warn("change feed publish failed",
			slog.String("entity_id", id.String()),
			slog.Any("error", err),
		)
	}
}

// fanOut delivers a show-side broadcast to every live ticket of the show.
// Tickets that already left the affected states discard it on their own.
func (e *Engine) fanOut(ctx context.Context, showID uuid.UUID, evs []lifecycle.Event) {
	tickets, _, err := e.store.Tickets().ListActiveByShow(ctx, showID)
	if err != nil {
		e.log.Error("ticket fan-out listing failed",
			slog.String("show_id", showID.String()),
			slog.Any("error", err),
		)
		return
	}

	for _, ev := range evs {
		for i := range tickets {
			err := e.SendTicket(ctx, tickets[i].ID, ev)
			if err != nil && !errors.Is(err, lifecycle.ErrInvalidTransition) {
				e.log.Error("ticket fan-out delivery failed",
					slog.String("ticket_id", tickets[i].ID.String()),
					slog.String("event", string(ev.EventKind())),
					slog.Any("error", err),
				)
			}
		}
	}
}

// discard logs a rejected or no-op event. Stale timers and replayed webhooks
// land here; both are expected traffic, not failures.
func (e *Engine) discard(kind domain.EntityKind, id uuid.UUID, ev lifecycle.Event, err error) {
	e.log.Debug("event discarded",
		slog.String("entity_kind", string(kind)),
		slog.String("entity_id", id.String()),
		slog.String("event", string(ev.EventKind())),
		slog.Any("reason", err),
	)
}
