// Package boxoffice is the customer-facing service: reserving tickets,
// cancelling them, joining and leaving the show, feedback and disputes. All
// state changes go through the lifecycle engine; this layer adds input
// validation, rate limiting and request idempotency.
package boxoffice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/engine"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	redisx "github.com/ghostwalkerj/champagneroom-app-sub000/internal/redis"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgresrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	redisrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/redis"
)

type Config struct {
	// TicketCacheTTL bounds how long a ticket snapshot may serve reads
	// between invalidations.
	TicketCacheTTL time.Duration
	// IdemLockTTL bounds how long a reservation idempotency key stays locked
	// when the first attempt dies mid-flight.
	IdemLockTTL time.Duration
}

type Service struct {
	log     *slog.Logger
	eng     *engine.Engine
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	idem    *redisrepo.IdempotencyStore
	limiter *redisrepo.SlidingWindowLimiter
	cfg     Config
}

func New(
	log *slog.Logger,
	eng *engine.Engine,
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.TicketCacheTTL <= 0 {
		cfg.TicketCacheTTL = 10 * time.Second
	}

	if cfg.IdemLockTTL <= 0 {
		cfg.IdemLockTTL = 30 * time.Second
	}

	return &Service{
		log:     log,
		eng:     eng,
		store:   store,
		cache:   cache,
		idem:    idem,
		limiter: limiter,
		cfg:     cfg,
	}
}

type reserveResult struct {
	TicketID uuid.UUID `json:"ticket_id"`
}

// Reserve creates a ticket against the show's box office.
//
// Parameters:
//   - ctx: request-scoped context.
//   - showID: ID of the show to reserve for.
//   - customerName: display name pinned to the ticket.
//   - idemKey: caller-supplied Idempotency-Key; a retry with the same key
//     returns the original ticket instead of reserving twice.
//   - rlKey: rate-limit bucket, usually the caller's address.
//
// Returns:
//   - uuid.UUID: the ID of the reserved ticket.
//   - error: boxoffice.ErrNotSelling when the box office is closed or sold
//     out, boxoffice.ErrRateLimited, boxoffice.ErrInProgress on a concurrent
//     retry of the same idempotency key.
func (s *Service) Reserve(
	ctx context.Context,
	showID uuid.UUID,
	customerName string,
	idemKey string,
	rlKey string,
) (uuid.UUID, error) {
	const op = "service.boxoffice.Reserve"

	if customerName == "" {
		return uuid.Nil, fmt.Errorf("%s: missing customer name", op)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			s.log.Debug("reservation rate limited",
				slog.String("show_id", showID.String()),
				slog.Duration("retry_after", retry),
			)
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrRateLimited)
		}
	}

	var key string
	if idemKey != "" {
		key = redisrepo.KeyIdemReserve(showID, idemKey)

		if payload, ok, err := s.idem.GetResult(ctx, key); err != nil {
			return uuid.Nil, fmt.Errorf("%s:%w", op, err)
		} else if ok {
			var res reserveResult
			if err := json.Unmarshal([]byte(payload), &res); err == nil {
				return res.TicketID, nil
			}
		}

		acquired, err := s.idem.AcquireLock(ctx, key, s.cfg.IdemLockTTL)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s:%w", op, err)
		}
		if !acquired {
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrInProgress)
		}
	}

	sh, _, err := s.store.Shows().Get(ctx, showID)
	if err != nil {
		s.releaseIdem(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrShowNotFound)
		}
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	t := domain.Ticket{
		ID:           uuid.New(),
		ShowID:       showID,
		CustomerName: customerName,
		Price:        sh.Price,
		Currency:     sh.Currency,
	}

	if _, err := s.eng.CreateTicket(ctx, t); err != nil {
		s.releaseIdem(ctx, key)
		switch {
		case errors.Is(err, lifecycle.ErrNothingToDo), errors.Is(err, lifecycle.ErrInvalidTransition):
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrNotSelling)
		case errors.Is(err, repository.ErrNotFound):
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrShowNotFound)
		default:
			return uuid.Nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	if key != "" {
		payload, _ := json.Marshal(reserveResult{TicketID: t.ID})
		if err := s.idem.SaveResult(ctx, key, string(payload)); err != nil {
			s.log.Warn("idempotency result save failed", slog.Any("error", err))
		}
	}

	return t.ID, nil
}

func (s *Service) releaseIdem(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		s.log.Warn("idempotency lock release failed", slog.Any("error", err))
	}
}

// GetTicket reads a ticket snapshot, serving from cache between transitions.
func (s *Service) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, domain.TicketState, error) {
	const op = "service.boxoffice.GetTicket"

	type cached struct {
		Ticket domain.Ticket      `json:"ticket"`
		State  domain.TicketState `json:"state"`
	}

	c, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyTicketSnapshot(id), s.cfg.TicketCacheTTL,
		func(ctx context.Context) (cached, error) {
			t, st, err := s.store.Tickets().Get(ctx, id)
			if err != nil {
				return cached{}, err
			}
			return cached{Ticket: t, State: st}, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Ticket{}, domain.TicketState{}, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}
		return domain.Ticket{}, domain.TicketState{}, fmt.Errorf("%s:%w", op, err)
	}

	return c.Ticket, c.State, nil
}

// CancelTicket asks the ticket to cancel. Paid tickets enter the refund flow
// instead of cancelling outright.
func (s *Service) CancelTicket(ctx context.Context, id uuid.UUID, reason string) error {
	const op = "service.boxoffice.CancelTicket"

	return s.send(ctx, op, id, lifecycle.CancellationRequested{Reason: reason})
}

// JoinShow redeems the ticket for the running show. ErrBadTransition covers
// both an unredeemable ticket and a show that is not live.
func (s *Service) JoinShow(ctx context.Context, id uuid.UUID) error {
	const op = "service.boxoffice.JoinShow"

	return s.send(ctx, op, id, lifecycle.ShowJoined{})
}

func (s *Service) LeaveShow(ctx context.Context, id uuid.UUID) error {
	const op = "service.boxoffice.LeaveShow"

	return s.send(ctx, op, id, lifecycle.ShowLeft{})
}

// SubmitFeedback records the customer's rating while the ticket is in escrow
// and releases the ticket early.
func (s *Service) SubmitFeedback(ctx context.Context, id uuid.UUID, rating int, review string) error {
	const op = "service.boxoffice.SubmitFeedback"

	if rating < 1 || rating > 5 {
		return fmt.Errorf("%s:%w", op, ErrBadFeedback)
	}

	return s.send(ctx, op, id, lifecycle.FeedbackReceived{Rating: rating, Review: review})
}

// OpenDispute freezes the ticket in escrow pending an operator decision.
func (s *Service) OpenDispute(ctx context.Context, id uuid.UUID, reason, explanation string) error {
	const op = "service.boxoffice.OpenDispute"

	if reason == "" {
		return fmt.Errorf("%s: missing dispute reason", op)
	}

	return s.send(ctx, op, id, lifecycle.DisputeInitiated{Reason: reason, Explanation: explanation})
}

// DecideDispute resolves an open dispute. The approved amount only matters
// for a partial refund; a full refund approves everything captured.
func (s *Service) DecideDispute(
	ctx context.Context,
	id uuid.UUID,
	decision domain.DisputeDecision,
	approved decimal.Decimal,
) error {
	const op = "service.boxoffice.DecideDispute"

	switch decision {
	case domain.DecisionNoRefund, domain.DecisionFullRefund, domain.DecisionPartialRefund:
	default:
		return fmt.Errorf("%s: unknown decision %q", op, decision)
	}

	if decision == domain.DecisionPartialRefund && approved.Sign() <= 0 {
		return fmt.Errorf("%s: partial refund needs a positive approved amount", op)
	}

	return s.send(ctx, op, id, lifecycle.DisputeDecided{Decision: decision, ApprovedRefund: approved})
}

// AuditTrail lists the ticket's lifecycle events, newest first.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]domain.AuditEvent, error) {
	const op = "service.boxoffice.AuditTrail"

	evs, err := s.store.Events().ListByEntity(ctx, domain.KindTicket, id, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return evs, nil
}

func (s *Service) send(ctx context.Context, op string, id uuid.UUID, ev lifecycle.Event) error {
	err := s.eng.SendTicket(ctx, id, ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrTicketNotFound)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return fmt.Errorf("%s:%w", op, ErrBadTransition)
	default:
		return fmt.Errorf("%s:%w", op, err)
	}
}
