// Package showtime is the creator/operator-facing service: scheduling shows,
// running them, and settling or cancelling them. State changes go through the
// lifecycle engine; reads come from the cache-backed snapshot.
package showtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/engine"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	redisx "github.com/ghostwalkerj/champagneroom-app-sub000/internal/redis"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgresrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	redisrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/redis"
)

type Config struct {
	ShowCacheTTL time.Duration
}

type Service struct {
	log   *slog.Logger
	eng   *engine.Engine
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(
	log *slog.Logger,
	eng *engine.Engine,
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	cfg Config,
) *Service {
	if cfg.ShowCacheTTL <= 0 {
		cfg.ShowCacheTTL = 10 * time.Second
	}

	return &Service{log: log, eng: eng, store: store, cache: cache, cfg: cfg}
}

// CreateShow schedules a show with an open box office.
func (s *Service) CreateShow(ctx context.Context, in domain.Show) (domain.Show, domain.ShowState, error) {
	const op = "service.showtime.CreateShow"

	if in.Name == "" || in.Capacity <= 0 {
		return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, ErrBadShow)
	}

	if in.Price.Sign() < 0 {
		return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, ErrBadShow)
	}

	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}

	if in.Currency == "" {
		in.Currency = "USD"
	}

	st, err := s.eng.CreateShow(ctx, in)
	if err != nil {
		return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("show scheduled",
		slog.String("show_id", in.ID.String()),
		slog.Int("capacity", in.Capacity),
	)

	return in, st, nil
}

// GetShow reads a show snapshot, serving from cache between transitions.
func (s *Service) GetShow(ctx context.Context, id uuid.UUID) (domain.Show, domain.ShowState, error) {
	const op = "service.showtime.GetShow"

	type cached struct {
		Show  domain.Show      `json:"show"`
		State domain.ShowState `json:"state"`
	}

	c, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyShowSnapshot(id), s.cfg.ShowCacheTTL,
		func(ctx context.Context) (cached, error) {
			sh, st, err := s.store.Shows().Get(ctx, id)
			if err != nil {
				return cached{}, err
			}
			return cached{Show: sh, State: st}, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, ErrShowNotFound)
		}
		return domain.Show{}, domain.ShowState{}, fmt.Errorf("%s:%w", op, err)
	}

	return c.Show, c.State, nil
}

// Availability is the box-office counter summary customers poll while a sale
// is on. It shares the show snapshot's invalidation but carries its own key so
// the hot path stays small.
type Availability struct {
	Status           domain.ShowStatus `json:"status"`
	TicketsAvailable int               `json:"tickets_available"`
	TicketsReserved  int               `json:"tickets_reserved"`
	TicketsSold      int               `json:"tickets_sold"`
}

func (s *Service) GetAvailability(ctx context.Context, id uuid.UUID) (Availability, error) {
	const op = "service.showtime.GetAvailability"

	a, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyShowAvailability(id), s.cfg.ShowCacheTTL,
		func(ctx context.Context) (Availability, error) {
			_, st, err := s.store.Shows().Get(ctx, id)
			if err != nil {
				return Availability{}, err
			}
			return Availability{
				Status:           st.Status,
				TicketsAvailable: st.TicketsAvailable,
				TicketsReserved:  st.TicketsReserved,
				TicketsSold:      st.TicketsSold,
			}, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Availability{}, fmt.Errorf("%s:%w", op, ErrShowNotFound)
		}
		return Availability{}, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

// StartShow opens the live session. Restarting within the grace window is
// allowed; anything else must sell at least one ticket first.
func (s *Service) StartShow(ctx context.Context, id uuid.UUID) error {
	const op = "service.showtime.StartShow"

	return s.send(ctx, op, id, lifecycle.StartShow{})
}

// StopShow pauses the live session without ending it.
func (s *Service) StopShow(ctx context.Context, id uuid.UUID) error {
	const op = "service.showtime.StopShow"

	return s.send(ctx, op, id, lifecycle.StopShow{})
}

// EndShow ends the live session for good and starts the grace clock.
func (s *Service) EndShow(ctx context.Context, id uuid.UUID) error {
	const op = "service.showtime.EndShow"

	return s.send(ctx, op, id, lifecycle.ShowEnded{})
}

// RequestCancellation cancels the show. With sold tickets outstanding the
// show waits in cancellationRequested until every one is refunded.
func (s *Service) RequestCancellation(ctx context.Context, id uuid.UUID, reason string) error {
	const op = "service.showtime.RequestCancellation"

	return s.send(ctx, op, id, lifecycle.RequestCancellation{Reason: reason})
}

// Finalize settles an escrowed show early, before the escrow clock runs out.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID) error {
	const op = "service.showtime.Finalize"

	return s.send(ctx, op, id, lifecycle.ShowFinalized{})
}

// AuditTrail lists the show's lifecycle events, newest first.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]domain.AuditEvent, error) {
	const op = "service.showtime.AuditTrail"

	evs, err := s.store.Events().ListByEntity(ctx, domain.KindShow, id, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return evs, nil
}

func (s *Service) send(ctx context.Context, op string, id uuid.UUID, ev lifecycle.Event) error {
	err := s.eng.SendShow(ctx, id, ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrShowNotFound)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return fmt.Errorf("%s:%w", op, ErrBadTransition)
	default:
		return fmt.Errorf("%s:%w", op, err)
	}
}
