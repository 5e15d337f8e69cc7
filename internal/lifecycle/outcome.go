package lifecycle

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Effect is work handed to the external effect queue. Dispatch is
// fire-and-forget: the machine never blocks on the gateway, it advances again
// only when the corresponding webhook event comes back. Handlers on the far
// side must be idempotent because delivery is at-least-once.
type Effect interface {
	EffectName() string
}

// CreateInvoice asks the gateway to issue an invoice for a ticket.
type CreateInvoice struct {
	TicketID uuid.UUID       `json:"ticket_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CancelInvoice voids an open invoice, if one still exists.
type CancelInvoice struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	InvoiceID string    `json:"invoice_id"`
}

// UpdateInvoiceAddress changes the refund/change address on an open invoice.
type UpdateInvoiceAddress struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	InvoiceID string    `json:"invoice_id"`
	Address   string    `json:"address"`
}

// CreateRefundPayout asks the gateway to return captured funds to the
// customer.
type CreateRefundPayout struct {
	TicketID uuid.UUID       `json:"ticket_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreatePayout asks the gateway to transfer wallet funds out.
type CreatePayout struct {
	WalletID    uuid.UUID       `json:"wallet_id"`
	PayoutID    uuid.UUID       `json:"payout_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Destination string          `json:"destination"`
}

func (CreateInvoice) EffectName() string        { return "payment.invoice.create" }
func (CancelInvoice) EffectName() string        { return "payment.invoice.cancel" }
func (UpdateInvoiceAddress) EffectName() string { return "payment.invoice.address" }
func (CreateRefundPayout) EffectName() string   { return "payout.refund" }
func (CreatePayout) EffectName() string         { return "payout.create" }

// Outcome is everything one accepted transition produced. The state mutation
// itself already happened inside the machine; the outcome carries what must
// follow the commit.
type Outcome struct {
	// Changed is false when the event was legal but a no-op.
	Changed bool
	// Audit is the event type appended to the lifecycle trail.
	Audit Kind
	// TicketRef and TransactionRef annotate the audit row.
	TicketRef      *uuid.UUID
	TransactionRef string
	// Effects go to the durable effect queue after commit.
	Effects []Effect
	// Routed events go to sibling machines after commit.
	Routed []Routed
	// Broadcast events fan out to every live ticket of the show after
	// commit. Only show machines broadcast; the machine does not know its
	// ticket ids, so enumeration is the runtime's job.
	Broadcast []Event
	// Timers are deferred self-events anchored on persisted timestamps.
	Timers []Schedule
}

func (o *Outcome) Queue(e Effect) { o.Effects = append(o.Effects, e) }

func (o *Outcome) Route(to Address, ev Event) {
	o.Routed = append(o.Routed, Routed{To: to, Event: ev})
}

func (o *Outcome) Announce(ev Event) { o.Broadcast = append(o.Broadcast, ev) }

func (o *Outcome) Defer(s Schedule) { o.Timers = append(o.Timers, s) }
