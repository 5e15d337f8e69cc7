package boxoffice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	redisrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/redis"
)

// Gateway webhooks. Delivery is at-least-once, so every handler is keyed on
// the external reference: the idempotency store short-circuits exact
// redeliveries, and the ticket's applied-transaction set catches anything
// that slips past.

func (s *Service) InvoiceCreated(
	ctx context.Context,
	ticketID uuid.UUID,
	invoiceID string,
	paymentAddress string,
) error {
	const op = "service.boxoffice.InvoiceCreated"

	if invoiceID == "" {
		return fmt.Errorf("%s: missing invoice id", op)
	}

	done, err := s.webhookSeen(ctx, "invoice", invoiceID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if done {
		return nil
	}

	return s.send(ctx, op, ticketID, lifecycle.InvoiceReceived{
		InvoiceID:      invoiceID,
		PaymentAddress: paymentAddress,
	})
}

func (s *Service) PaymentInitiated(ctx context.Context, ticketID uuid.UUID, address string) error {
	const op = "service.boxoffice.PaymentInitiated"

	return s.send(ctx, op, ticketID, lifecycle.PaymentInitiated{Address: address})
}

func (s *Service) PaymentReceived(ctx context.Context, ticketID uuid.UUID, tx domain.Transaction) error {
	const op = "service.boxoffice.PaymentReceived"

	if tx.ID == "" {
		return fmt.Errorf("%s: missing transaction id", op)
	}

	done, err := s.webhookSeen(ctx, "payment", tx.ID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if done {
		return nil
	}

	return s.send(ctx, op, ticketID, lifecycle.PaymentReceived{Transaction: tx})
}

func (s *Service) RefundReceived(ctx context.Context, ticketID uuid.UUID, tx domain.Transaction) error {
	const op = "service.boxoffice.RefundReceived"

	if tx.ID == "" {
		return fmt.Errorf("%s: missing transaction id", op)
	}

	done, err := s.webhookSeen(ctx, "refund", tx.ID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if done {
		return nil
	}

	return s.send(ctx, op, ticketID, lifecycle.RefundReceived{Transaction: tx})
}

// webhookSeen marks the external reference handled and reports whether it
// already was. Marking before dispatch is deliberate: a crash between mark
// and dispatch is recovered by the machine's own dedupe, while the reverse
// order would double-dispatch on every crash.
func (s *Service) webhookSeen(ctx context.Context, kind, externalID string) (bool, error) {
	key := redisrepo.KeyIdemWebhook(kind, externalID)

	fresh, err := s.idem.AcquireLock(ctx, key, s.cfg.IdemLockTTL)
	if err != nil {
		// Redis being down must not drop gateway money events; fall through
		// to the machine-level dedupe.
		s.log.Warn("webhook idempotency check failed", slog.Any("error", err))
		return false, nil
	}

	return !fresh, nil
}
