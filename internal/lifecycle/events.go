// Package lifecycle defines the typed event vocabulary exchanged between the
// show, ticket and wallet machines, the transition outcome shape, and the
// idempotent state-apply gate.
package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
)

// Kind names an event for the audit trail.
type Kind string

const (
	KindTicketCreated            Kind = "TICKET CREATED"
	KindTicketReserved           Kind = "TICKET RESERVED"
	KindTicketReservationTimeout Kind = "TICKET RESERVATION TIMEOUT"
	KindTicketCancelled          Kind = "TICKET CANCELLED"
	KindTicketSold               Kind = "TICKET SOLD"
	KindTicketRefunded           Kind = "TICKET REFUNDED"
	KindTicketRedeemed           Kind = "TICKET REDEEMED"
	KindTicketDisputed           Kind = "TICKET DISPUTED"
	KindCustomerJoined           Kind = "CUSTOMER JOINED"
	KindCustomerLeft             Kind = "CUSTOMER LEFT"
	KindStartShow                Kind = "START SHOW"
	KindStopShow                 Kind = "STOP SHOW"
	KindShowEnded                Kind = "SHOW ENDED"
	KindShowFinalized            Kind = "SHOW FINALIZED"
	KindRequestCancellation      Kind = "REQUEST CANCELLATION"
	KindShowCancelled            Kind = "SHOW CANCELLED"
	KindShowUpdated              Kind = "SHOW UPDATED"
	KindGracePeriodElapsed       Kind = "GRACE PERIOD ELAPSED"
	KindEscrowPeriodElapsed      Kind = "ESCROW PERIOD ELAPSED"
	KindReservationTimedOut      Kind = "RESERVATION TIMED OUT"
	KindReservationRejected      Kind = "RESERVATION REJECTED"
	KindInvoiceReceived          Kind = "INVOICE RECEIVED"
	KindPaymentInitiated         Kind = "PAYMENT INITIATED"
	KindPaymentReceived          Kind = "PAYMENT RECEIVED"
	KindRefundReceived           Kind = "REFUND RECEIVED"
	KindCancellationRequested    Kind = "CANCELLATION REQUESTED"
	KindShowJoined               Kind = "SHOW JOINED"
	KindShowLeft                 Kind = "SHOW LEFT"
	KindFeedbackReceived         Kind = "FEEDBACK RECEIVED"
	KindDisputeInitiated         Kind = "DISPUTE INITIATED"
	KindDisputeDecided           Kind = "DISPUTE DECIDED"
	KindEarningsPosted           Kind = "SHOW EARNINGS POSTED"
	KindPayoutRequested          Kind = "PAYOUT REQUESTED"
	KindPayoutSent               Kind = "PAYOUT SENT"
	KindPayoutFailed             Kind = "PAYOUT FAILED"
	KindPayoutCancelled          Kind = "PAYOUT CANCELLED"
	KindPayoutComplete           Kind = "PAYOUT COMPLETE"
)

// Event is the closed union of everything a machine can consume. One struct
// per kind; payloads are strongly typed, never a grab-bag map.
type Event interface {
	EventKind() Kind
}

// --- show events (consumed by the show machine) ---

// TicketReserved is sent by a ticket machine when a reservation is taken.
type TicketReserved struct {
	TicketID uuid.UUID
}

// TicketReservationTimeout is sent when a reservation lapses unpaid.
type TicketReservationTimeout struct {
	TicketID uuid.UUID
}

// TicketCancelled is sent when a never-sold ticket dies; the seat returns to
// the box office.
type TicketCancelled struct {
	TicketID uuid.UUID
}

// TicketSold is sent when a ticket reaches full payment.
type TicketSold struct {
	TicketID uuid.UUID
	Amount   decimal.Decimal
}

// TicketRefunded is sent when a sold ticket's refund completes.
type TicketRefunded struct {
	TicketID uuid.UUID
	Amount   decimal.Decimal
}

// TicketRedeemed is sent on first redemption of a ticket.
type TicketRedeemed struct {
	TicketID uuid.UUID
}

// TicketDisputed is sent when a ticket enters arbitration.
type TicketDisputed struct {
	TicketID uuid.UUID
}

type CustomerJoined struct {
	TicketID uuid.UUID
}

type CustomerLeft struct {
	TicketID uuid.UUID
}

type StartShow struct{}

type StopShow struct{}

// ShowEnded is delivered to the show machine by the creator ending the show,
// and fanned out to every live ticket machine.
type ShowEnded struct{}

// RequestCancellation asks the show to wind down; it cancels immediately only
// when no paid tickets are outstanding.
type RequestCancellation struct {
	Reason string
}

// ShowFinalized settles the show; it is produced by the escrow timer or an
// operator override.
type ShowFinalized struct{}

// GracePeriodElapsed is the deferred self-event scheduled at show end.
type GracePeriodElapsed struct{}

// EscrowPeriodElapsed is the deferred self-event scheduled at escrow start.
type EscrowPeriodElapsed struct{}

func (TicketReserved) EventKind() Kind           { return KindTicketReserved }
func (TicketReservationTimeout) EventKind() Kind { return KindTicketReservationTimeout }
func (TicketCancelled) EventKind() Kind          { return KindTicketCancelled }
func (TicketSold) EventKind() Kind               { return KindTicketSold }
func (TicketRefunded) EventKind() Kind           { return KindTicketRefunded }
func (TicketRedeemed) EventKind() Kind           { return KindTicketRedeemed }
func (TicketDisputed) EventKind() Kind           { return KindTicketDisputed }
func (CustomerJoined) EventKind() Kind           { return KindCustomerJoined }
func (CustomerLeft) EventKind() Kind             { return KindCustomerLeft }
func (StartShow) EventKind() Kind                { return KindStartShow }
func (StopShow) EventKind() Kind                 { return KindStopShow }
func (ShowEnded) EventKind() Kind                { return KindShowEnded }
func (RequestCancellation) EventKind() Kind      { return KindRequestCancellation }
func (ShowFinalized) EventKind() Kind            { return KindShowFinalized }
func (GracePeriodElapsed) EventKind() Kind       { return KindGracePeriodElapsed }
func (EscrowPeriodElapsed) EventKind() Kind      { return KindEscrowPeriodElapsed }

// --- ticket events (consumed by the ticket machine) ---

// TicketCreated starts the reservation attempt.
type TicketCreated struct{}

// InvoiceReceived is the gateway webhook confirming an invoice was issued.
type InvoiceReceived struct {
	InvoiceID      string
	PaymentAddress string
}

// PaymentInitiated records the customer signalling intent to pay, optionally
// with a fresh return address for change.
type PaymentInitiated struct {
	Address string
}

// PaymentReceived is the gateway webhook for one captured payment.
type PaymentReceived struct {
	Transaction domain.Transaction
}

// RefundReceived is the gateway webhook for one captured refund.
type RefundReceived struct {
	Transaction domain.Transaction
}

// CancellationRequested is the customer asking out of the reservation.
type CancellationRequested struct {
	Reason string
}

// ShowCancelled tells the ticket its show was cancelled; the ticket unwinds
// through the refund path when money was captured.
type ShowCancelled struct {
	Reason string
}

// ShowJoined is the customer entering the live show.
type ShowJoined struct{}

// ShowLeft is the customer leaving the live show.
type ShowLeft struct{}

// ShowUpdated tells the ticket its show machine instance was replaced; the
// ticket re-resolves its show handle.
type ShowUpdated struct{}

// FeedbackReceived closes escrow early with the customer's verdict.
type FeedbackReceived struct {
	Rating int
	Review string
}

// DisputeInitiated opens arbitration on an escrowed or missed ticket.
type DisputeInitiated struct {
	Reason      string
	Explanation string
}

// DisputeDecided is the arbitrator's ruling. ApprovedRefund is the amount
// actually granted, which may undercut what was asked.
type DisputeDecided struct {
	Decision       domain.DisputeDecision
	ApprovedRefund decimal.Decimal
}

// ReservationTimedOut is the deferred self-event scheduled at ticket creation.
type ReservationTimedOut struct{}

// ReservationRejected compensates an admission race: the show closed its box
// office before this ticket's reservation landed, so the ticket dies without
// ever having held a seat.
type ReservationRejected struct{}

func (TicketCreated) EventKind() Kind         { return KindTicketCreated }
func (InvoiceReceived) EventKind() Kind       { return KindInvoiceReceived }
func (PaymentInitiated) EventKind() Kind      { return KindPaymentInitiated }
func (PaymentReceived) EventKind() Kind       { return KindPaymentReceived }
func (RefundReceived) EventKind() Kind        { return KindRefundReceived }
func (CancellationRequested) EventKind() Kind { return KindCancellationRequested }
func (ShowCancelled) EventKind() Kind         { return KindShowCancelled }
func (ShowJoined) EventKind() Kind            { return KindShowJoined }
func (ShowLeft) EventKind() Kind              { return KindShowLeft }
func (ShowUpdated) EventKind() Kind           { return KindShowUpdated }
func (FeedbackReceived) EventKind() Kind      { return KindFeedbackReceived }
func (DisputeInitiated) EventKind() Kind      { return KindDisputeInitiated }
func (DisputeDecided) EventKind() Kind        { return KindDisputeDecided }
func (ReservationTimedOut) EventKind() Kind   { return KindReservationTimedOut }
func (ReservationRejected) EventKind() Kind   { return KindReservationRejected }

// --- wallet events (consumed by the wallet machine) ---

// EarningsPosted credits a wallet with its share of a settled show's revenue.
// Creator take-home and agent commission are both postings, differing only in
// the share percentage.
type EarningsPosted struct {
	ShowID       uuid.UUID
	Revenue      decimal.Decimal
	SharePercent decimal.Decimal
	Currency     string
}

// PayoutRequested moves funds on hold and opens a pending payout entry.
type PayoutRequested struct {
	PayoutID    uuid.UUID
	Amount      decimal.Decimal
	Destination string
}

// PayoutSent is the gateway confirming the transfer left; the hold becomes a
// realized debit.
type PayoutSent struct {
	PayoutID uuid.UUID
	TxID     string
}

type PayoutFailed struct {
	PayoutID uuid.UUID
}

type PayoutCancelled struct {
	PayoutID uuid.UUID
}

// PayoutComplete flips the entry's status; the balance was already debited at
// PayoutSent.
type PayoutComplete struct {
	PayoutID uuid.UUID
}

func (EarningsPosted) EventKind() Kind  { return KindEarningsPosted }
func (PayoutRequested) EventKind() Kind { return KindPayoutRequested }
func (PayoutSent) EventKind() Kind      { return KindPayoutSent }
func (PayoutFailed) EventKind() Kind    { return KindPayoutFailed }
func (PayoutCancelled) EventKind() Kind { return KindPayoutCancelled }
func (PayoutComplete) EventKind() Kind  { return KindPayoutComplete }

// Address identifies one machine instance for cross-actor routing.
type Address struct {
	Kind domain.EntityKind
	ID   uuid.UUID
}

// Routed is a typed event bound for a sibling machine. Routing is one-way:
// tickets address their show, shows address wallets, nobody addresses back.
type Routed struct {
	To    Address
	Event Event
}

// Schedule is a deferred self-event. The delay is always recomputed from the
// persisted anchor so a restart never loses a pending timer.
type Schedule struct {
	Anchor time.Time
	Period time.Duration
	Event  Event
}

// At returns the absolute fire time.
func (s Schedule) At() time.Time {
	return s.Anchor.Add(s.Period)
}
