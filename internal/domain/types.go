package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ShowStatus string

const (
	ShowBoxOfficeOpen         ShowStatus = "boxOfficeOpen"
	ShowBoxOfficeClosed       ShowStatus = "boxOfficeClosed"
	ShowStarted               ShowStatus = "started"
	ShowStopped               ShowStatus = "stopped"
	ShowInEscrow              ShowStatus = "inEscrow"
	ShowFinalized             ShowStatus = "finalized"
	ShowCancellationRequested ShowStatus = "cancellationRequested"
	ShowCancelled             ShowStatus = "cancelled"
)

type TicketStatus string

const (
	TicketCreated               TicketStatus = "created"
	TicketReservedFree          TicketStatus = "reserved"
	TicketWaiting4Invoice       TicketStatus = "waiting4Invoice"
	TicketWaiting4Payment       TicketStatus = "waiting4Payment"
	TicketInitiatedPayment      TicketStatus = "initiatedPayment"
	TicketReceivedPayment       TicketStatus = "receivedPayment"
	TicketWaiting4Show          TicketStatus = "waiting4Show"
	TicketRedeemed              TicketStatus = "redeemed"
	TicketInEscrow              TicketStatus = "inEscrow"
	TicketMissedShow            TicketStatus = "missedShow"
	TicketWaiting4Decision      TicketStatus = "waiting4Decision"
	TicketWaiting4Refund        TicketStatus = "waiting4Refund"
	TicketWaiting4DisputeRefund TicketStatus = "waiting4DisputeRefund"
	TicketCancelled             TicketStatus = "cancelled"
	TicketFinalized             TicketStatus = "finalized"
)

type WalletStatus string

const (
	WalletAvailable        WalletStatus = "available"
	WalletPayoutInProgress WalletStatus = "payoutInProgress"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutSent      PayoutStatus = "sent"
	PayoutComplete  PayoutStatus = "complete"
	PayoutFailed    PayoutStatus = "failed"
	PayoutCancelled PayoutStatus = "cancelled"
)

type DisputeDecision string

const (
	DecisionNoRefund      DisputeDecision = "noRefund"
	DecisionFullRefund    DisputeDecision = "fullRefund"
	DecisionPartialRefund DisputeDecision = "partialRefund"
)

// Show is the immutable part of a scheduled live session. The mutable
// lifecycle lives in ShowState.
type Show struct {
	ID            uuid.UUID       `json:"id"`
	CreatorWallet uuid.UUID       `json:"creator_wallet"`
	AgentWallet   uuid.UUID       `json:"agent_wallet"`
	Name          string          `json:"name"`
	Capacity      int             `json:"capacity"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StartsAt      time.Time       `json:"starts_at"`
}

type ShowRuntime struct {
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type CancelRecord struct {
	RequestedAt time.Time  `json:"requested_at"`
	Reason      string     `json:"reason,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type EscrowRecord struct {
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type FinalizeRecord struct {
	FinalizedAt time.Time `json:"finalized_at"`
}

// ShowState is the full mutable snapshot of one show. It is persisted as a
// whole document on every transition; UpdatedAt is the idempotent-apply key.
// At rest TicketsAvailable + TicketsReserved + TicketsSold == Capacity.
type ShowState struct {
	Status           ShowStatus      `json:"status"`
	Active           bool            `json:"active"`
	TicketsAvailable int             `json:"tickets_available"`
	TicketsReserved  int             `json:"tickets_reserved"`
	TicketsSold      int             `json:"tickets_sold"`
	TicketsRefunded  int             `json:"tickets_refunded"`
	TicketsRedeemed  int             `json:"tickets_redeemed"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalRefunded    decimal.Decimal `json:"total_refunded"`
	Runtime          *ShowRuntime    `json:"runtime,omitempty"`
	Cancel           *CancelRecord   `json:"cancel,omitempty"`
	Escrow           *EscrowRecord   `json:"escrow,omitempty"`
	Finalize         *FinalizeRecord `json:"finalize,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewShowState returns the box-office-open state for a freshly scheduled show.
func NewShowState(capacity int, now time.Time) ShowState {
	return ShowState{
		Status:           ShowBoxOfficeOpen,
		Active:           true,
		TicketsAvailable: capacity,
		TotalSales:       decimal.Zero,
		TotalRefunded:    decimal.Zero,
		UpdatedAt:        now,
	}
}

// Transaction is one payment-gateway money movement, recorded with the
// exchange rate in force when it was captured.
type Transaction struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

// Value returns the transaction's worth in the ticket currency.
func (t Transaction) Value() decimal.Decimal {
	return t.Amount.Mul(t.Rate)
}

type Ticket struct {
	ID           uuid.UUID       `json:"id"`
	ShowID       uuid.UUID       `json:"show_id"`
	CustomerName string          `json:"customer_name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
}

type InvoiceRecord struct {
	InvoiceID      string `json:"invoice_id"`
	PaymentAddress string `json:"payment_address"`
}

type RedemptionRecord struct {
	RedeemedAt time.Time `json:"redeemed_at"`
}

type RefundRecord struct {
	RequestedAt     time.Time       `json:"requested_at"`
	Reason          string          `json:"reason,omitempty"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ApprovedAmount  decimal.Decimal `json:"approved_amount"`
}

type DisputeRecord struct {
	Reason      string           `json:"reason"`
	Explanation string           `json:"explanation,omitempty"`
	OpenedAt    time.Time        `json:"opened_at"`
	Decision    *DisputeDecision `json:"decision,omitempty"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
}

type FeedbackRecord struct {
	Rating     int       `json:"rating"`
	Review     string    `json:"review,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// TicketState is the full mutable snapshot of one ticket. TotalPaid is always
// recomputed from Payments; AppliedTransactions is the at-most-once guard for
// gateway deliveries.
type TicketState struct {
	Status              TicketStatus      `json:"status"`
	Active              bool              `json:"active"`
	TotalPaid           decimal.Decimal   `json:"total_paid"`
	TotalRefunded       decimal.Decimal   `json:"total_refunded"`
	Payments            []Transaction     `json:"payments,omitempty"`
	Refunds             []Transaction     `json:"refunds,omitempty"`
	AppliedTransactions []string          `json:"applied_transactions,omitempty"`
	Invoice             *InvoiceRecord    `json:"invoice,omitempty"`
	Redemption          *RedemptionRecord `json:"redemption,omitempty"`
	Cancel              *CancelRecord     `json:"cancel,omitempty"`
	Refund              *RefundRecord     `json:"refund,omitempty"`
	Escrow              *EscrowRecord     `json:"escrow,omitempty"`
	Dispute             *DisputeRecord    `json:"dispute,omitempty"`
	Feedback            *FeedbackRecord   `json:"feedback,omitempty"`
	Finalize            *FinalizeRecord   `json:"finalize,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func NewTicketState(now time.Time) TicketState {
	return TicketState{
		Status:        TicketCreated,
		Active:        true,
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		UpdatedAt:     now,
	}
}

// HasTransaction reports whether the gateway transaction id was already
// applied to this ticket.
func (s *TicketState) HasTransaction(id string) bool {
	for _, applied := range s.AppliedTransactions {
		if applied == id {
			return true
		}
	}
	return false
}

// PaymentsTotal recomputes the paid total from the ledger, each transaction
// at its own recorded rate. A running counter drifts when rates differ
// between captures, so the ledger is the only source of truth.
func (s *TicketState) PaymentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.Value())
	}
	return total
}

func (s *TicketState) RefundsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Refunds {
		total = total.Add(r.Value())
	}
	return total
}

type Wallet struct {
	ID       uuid.UUID `json:"id"`
	Currency string    `json:"currency"`
}

type Earning struct {
	ShowID       uuid.UUID       `json:"show_id"`
	Amount       decimal.Decimal `json:"amount"`
	SharePercent decimal.Decimal `json:"share_percent"`
	PostedAt     time.Time       `json:"posted_at"`
}

type Payout struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Status      PayoutStatus    `json:"status"`
	TxID        string          `json:"tx_id,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// WalletState is one payee's balance ledger. At rest
// AvailableBalance + OnHoldBalance == Balance.
type WalletState struct {
	Status           WalletStatus    `json:"status"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	OnHoldBalance    decimal.Decimal `json:"on_hold_balance"`
	Earnings         []Earning       `json:"earnings,omitempty"`
	Payouts          []Payout        `json:"payouts,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func NewWalletState(now time.Time) WalletState {
	return WalletState{
		Status:           WalletAvailable,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		OnHoldBalance:    decimal.Zero,
		UpdatedAt:        now,
	}
}

// HasEarningFor reports whether earnings for the show were already posted.
// Earnings postings are idempotent per show.
func (s *WalletState) HasEarningFor(showID uuid.UUID) bool {
	for _, e := range s.Earnings {
		if e.ShowID == showID {
			return true
		}
	}
	return false
}

// FindPayout returns the index of the payout with the given id, or -1.
func (s *WalletState) FindPayout(id uuid.UUID) int {
	for i := range s.Payouts {
		if s.Payouts[i].ID == id {
			return i
		}
	}
	return -1
}

type EntityKind string

const (
	KindShow   EntityKind = "show"
	KindTicket EntityKind = "ticket"
	KindWallet EntityKind = "wallet"
)

// AuditEvent is one row of the append-only lifecycle trail. It records the
// triggering event independently of the mutable current-state snapshot.
type AuditEvent struct {
	ID            int64      `json:"id"`
	EntityKind    EntityKind `json:"entity_kind"`
	EntityID      uuid.UUID  `json:"entity_id"`
	Type          string     `json:"type"`
	TicketID      *uuid.UUID `json:"ticket_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
