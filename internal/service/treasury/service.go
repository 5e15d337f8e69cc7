// Package treasury is the payee-facing service: wallet balances, payout
// requests and the gateway callbacks that settle them.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/engine"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository"
	postgresrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
)

type Service struct {
	log   *slog.Logger
	eng   *engine.Engine
	store *postgresrepo.Store
}

func New(log *slog.Logger, eng *engine.Engine, store *postgresrepo.Store) *Service {
	return &Service{log: log, eng: eng, store: store}
}

// CreateWallet opens an empty wallet for a payee.
func (s *Service) CreateWallet(ctx context.Context, id uuid.UUID, currency string) (domain.WalletState, error) {
	const op = "service.treasury.CreateWallet"

	if id == uuid.Nil {
		id = uuid.New()
	}

	if currency == "" {
		currency = "USD"
	}

	st, err := s.eng.CreateWallet(ctx, domain.Wallet{ID: id, Currency: currency})
	if err != nil {
		return domain.WalletState{}, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// GetWallet reads the wallet's balance ledger.
func (s *Service) GetWallet(ctx context.Context, id uuid.UUID) (domain.Wallet, domain.WalletState, error) {
	const op = "service.treasury.GetWallet"

	w, st, err := s.store.Wallets().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Wallet{}, domain.WalletState{}, fmt.Errorf("%s:%w", op, ErrWalletNotFound)
		}
		return domain.Wallet{}, domain.WalletState{}, fmt.Errorf("%s:%w", op, err)
	}

	return w, st, nil
}

// RequestPayout moves funds on hold and asks the gateway for a transfer.
//
// Returns:
//   - uuid.UUID: the ID of the opened payout entry.
//   - error: treasury.ErrInsufficientFunds, treasury.ErrWalletBusy when a
//     payout is already in flight.
func (s *Service) RequestPayout(
	ctx context.Context,
	walletID uuid.UUID,
	amount decimal.Decimal,
	destination string,
) (uuid.UUID, error) {
	const op = "service.treasury.RequestPayout"

	if amount.Sign() <= 0 {
		return uuid.Nil, fmt.Errorf("%s: payout amount must be positive", op)
	}

	if destination == "" {
		return uuid.Nil, fmt.Errorf("%s: missing payout destination", op)
	}

	_, st, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return uuid.Nil, err
	}

	// Pre-checks only shape the error; the machine re-validates on its own
	// goroutine and its verdict wins.
	if st.Status == domain.WalletPayoutInProgress {
		return uuid.Nil, fmt.Errorf("%s:%w", op, ErrWalletBusy)
	}

	if amount.Cmp(st.AvailableBalance) > 0 {
		return uuid.Nil, fmt.Errorf("%s:%w", op, ErrInsufficientFunds)
	}

	payoutID := uuid.New()

	err = s.eng.SendWallet(ctx, walletID, lifecycle.PayoutRequested{
		PayoutID:    payoutID,
		Amount:      amount,
		Destination: destination,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("payout requested",
		slog.String("wallet_id", walletID.String()),
		slog.String("payout_id", payoutID.String()),
		slog.String("amount", amount.String()),
	)

	return payoutID, nil
}

// Gateway payout callbacks. The wallet machine treats an unknown payout id as
// an invariant violation, so these only forward.

func (s *Service) PayoutSent(ctx context.Context, walletID, payoutID uuid.UUID, txID string) error {
	const op = "service.treasury.PayoutSent"

	return s.send(ctx, op, walletID, lifecycle.PayoutSent{PayoutID: payoutID, TxID: txID})
}

func (s *Service) PayoutComplete(ctx context.Context, walletID, payoutID uuid.UUID) error {
	const op = "service.treasury.PayoutComplete"

	return s.send(ctx, op, walletID, lifecycle.PayoutComplete{PayoutID: payoutID})
}

func (s *Service) PayoutFailed(ctx context.Context, walletID, payoutID uuid.UUID) error {
	const op = "service.treasury.PayoutFailed"

	return s.send(ctx, op, walletID, lifecycle.PayoutFailed{PayoutID: payoutID})
}

func (s *Service) PayoutCancelled(ctx context.Context, walletID, payoutID uuid.UUID) error {
	const op = "service.treasury.PayoutCancelled"

	return s.send(ctx, op, walletID, lifecycle.PayoutCancelled{PayoutID: payoutID})
}

// AuditTrail lists the wallet's lifecycle events, newest first.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]domain.AuditEvent, error) {
	const op = "service.treasury.AuditTrail"

	evs, err := s.store.Events().ListByEntity(ctx, domain.KindWallet, id, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return evs, nil
}

func (s *Service) send(ctx context.Context, op string, id uuid.UUID, ev lifecycle.Event) error {
	err := s.eng.SendWallet(ctx, id, ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrWalletNotFound)
	default:
		return fmt.Errorf("%s:%w", op, err)
	}
}
