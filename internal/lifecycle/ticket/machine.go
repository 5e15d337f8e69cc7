// Package ticket implements the ticket lifecycle machine: reservation,
// invoicing, the payment ledger, redemption, escrow, refunds and disputes.
package ticket

import (
	"time"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

// ShowView is the ticket's live handle to its show machine. The ticket only
// ever reads a snapshot; it never mutates the show directly.
type ShowView interface {
	Snapshot() (domain.ShowState, bool)
}

type Config struct {
	// ReservationTTL bounds how long an unpaid reservation may sit before it
	// times out.
	ReservationTTL time.Duration
	// EscrowPeriod separates show end from ticket finalization.
	EscrowPeriod time.Duration
}

// Machine owns one ticket's lifecycle. Not safe for concurrent use; the actor
// runtime delivers events one at a time.
type Machine struct {
	ticket domain.Ticket
	st     domain.TicketState
	cfg    Config
	view   ShowView
}

func New(ticket domain.Ticket, st domain.TicketState, cfg Config, view ShowView) *Machine {
	return &Machine{ticket: ticket, st: st, cfg: cfg, view: view}
}

func (m *Machine) Ticket() domain.Ticket { return m.ticket }

// State returns a copy of the current snapshot.
func (m *Machine) State() domain.TicketState { return m.st }

// Restore puts back a previous snapshot after a failed persist.
func (m *Machine) Restore(st domain.TicketState) { m.st = st }

// SetShowView swaps the live show handle, used when the show machine instance
// is replaced.
func (m *Machine) SetShowView(view ShowView) { m.view = view }

// Terminal reports whether the ticket is immutable.
func (m *Machine) Terminal() bool {
	return m.st.Status == domain.TicketCancelled || m.st.Status == domain.TicketFinalized
}

func (m *Machine) showAddr() lifecycle.Address {
	return lifecycle.Address{Kind: domain.KindShow, ID: m.ticket.ShowID}
}

// Apply runs one event against the current state. See the show machine for
// the error contract.
func (m *Machine) Apply(now time.Time, ev lifecycle.Event) (lifecycle.Outcome, error) {
	out := lifecycle.Outcome{Audit: ev.EventKind()}

	var err error

	switch e := ev.(type) {
	case lifecycle.TicketCreated:
		err = m.created(now, &out)
	case lifecycle.InvoiceReceived:
		err = m.invoiceReceived(&out, e)
	case lifecycle.PaymentInitiated:
		err = m.paymentInitiated(&out, e)
	case lifecycle.PaymentReceived:
		err = m.paymentReceived(&out, e)
	case lifecycle.RefundReceived:
		err = m.refundReceived(now, &out, e)
	case lifecycle.ReservationTimedOut:
		err = m.reservationTimedOut(now, &out)
	case lifecycle.ReservationRejected:
		err = m.reservationRejected(now, &out)
	case lifecycle.CancellationRequested:
		err = m.cancellationRequested(now, &out, e.Reason)
	case lifecycle.ShowCancelled:
		err = m.cancellationRequested(now, &out, e.Reason)
	case lifecycle.ShowJoined:
		err = m.showJoined(now, &out)
	case lifecycle.ShowLeft:
		err = m.showLeft(&out)
	case lifecycle.ShowEnded:
		err = m.showEnded(now, &out)
	case lifecycle.EscrowPeriodElapsed:
		err = m.escrowElapsed(now, &out)
	case lifecycle.FeedbackReceived:
		err = m.feedbackReceived(now, &out, e)
	case lifecycle.DisputeInitiated:
		err = m.disputeInitiated(now, &out, e)
	case lifecycle.DisputeDecided:
		err = m.disputeDecided(now, &out, e)
	case lifecycle.ShowUpdated:
		// Handle replacement is the runtime's job; the machine only records
		// that it happened.
	default:
		err = lifecycle.ErrInvalidTransition
	}

	if err != nil {
		return lifecycle.Outcome{}, err
	}

	m.st.UpdatedAt = now
	out.Changed = true

	return out, nil
}

// fullyPaid recomputes the paid total from the ledger and compares against
// the ticket price.
func (m *Machine) fullyPaid() bool {
	return m.st.PaymentsTotal().Cmp(m.ticket.Price) >= 0
}

// canBeRefunded: zero-price tickets and tickets with no captured payment skip
// the refund flow and cancel outright.
func (m *Machine) canBeRefunded() bool {
	return !m.ticket.Price.IsZero() && len(m.st.Payments) > 0
}

// fullyRefunded compares the cumulative refund total, including the newest
// transaction, against the approved amount. The approved amount may undercut
// what was requested.
func (m *Machine) fullyRefunded() bool {
	if m.st.Refund == nil {
		return false
	}
	return m.st.RefundsTotal().Cmp(m.st.Refund.ApprovedAmount) >= 0
}

// wasSold reports whether the ticket ever reached full payment; it decides
// which event the show receives when the ticket dies.
func (m *Machine) wasSold() bool {
	return m.fullyPaid() && !m.ticket.Price.IsZero()
}

// canWatchShow: the ticket is paid or free-reserved, and a fresh show
// snapshot says the show is live.
func (m *Machine) canWatchShow() bool {
	switch m.st.Status {
	case domain.TicketReservedFree, domain.TicketWaiting4Show, domain.TicketRedeemed:
	default:
		return false
	}

	if m.view == nil {
		return false
	}

	snap, ok := m.view.Snapshot()

	return ok && snap.Status == domain.ShowStarted
}

func (m *Machine) created(now time.Time, out *lifecycle.Outcome) error {
	if m.st.Status != domain.TicketCreated {
		return lifecycle.ErrInvalidTransition
	}

	out.TicketRef = &m.ticket.ID
	out.Route(m.showAddr(), lifecycle.TicketReserved{TicketID: m.ticket.ID})

	if m.ticket.Price.IsZero() {
		m.st.Status = domain.TicketReservedFree
		return nil
	}

	m.st.Status = domain.TicketWaiting4Invoice

	out.Queue(lifecycle.CreateInvoice{
		TicketID: m.ticket.ID,
		Amount:   m.ticket.Price,
		Currency: m.ticket.Currency,
	})
	out.Defer(lifecycle.Schedule{
		Anchor: now,
		Period: m.cfg.ReservationTTL,
		Event:  lifecycle.ReservationTimedOut{},
	})

	return nil
}

func (m *Machine) invoiceReceived(out *lifecycle.Outcome, e lifecycle.InvoiceReceived) error {
	if m.st.Status != domain.TicketWaiting4Invoice {
		return lifecycle.ErrInvalidTransition
	}

	m.st.Invoice = &domain.InvoiceRecord{InvoiceID: e.InvoiceID, PaymentAddress: e.PaymentAddress}
	m.st.Status = domain.TicketWaiting4Payment
	out.TicketRef = &m.ticket.ID

	return nil
}

func (m *Machine) paymentInitiated(out *lifecycle.Outcome, e lifecycle.PaymentInitiated) error {
	if m.st.Status != domain.TicketWaiting4Payment {
		return lifecycle.ErrInvalidTransition
	}

	m.st.Status = domain.TicketInitiatedPayment
	out.TicketRef = &m.ticket.ID

	if e.Address != "" && m.st.Invoice != nil {
		out.Queue(lifecycle.UpdateInvoiceAddress{
			TicketID:  m.ticket.ID,
			InvoiceID: m.st.Invoice.InvoiceID,
			Address:   e.Address,
		})
	}

	return nil
}

func (m *Machine) paymentReceived(out *lifecycle.Outcome, e lifecycle.PaymentReceived) error {
	switch m.st.Status {
	case domain.TicketWaiting4Payment, domain.TicketInitiatedPayment, domain.TicketReceivedPayment:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if m.st.HasTransaction(e.Transaction.ID) {
		return lifecycle.ErrNothingToDo
	}

	m.st.Payments = append(m.st.Payments, e.Transaction)
	m.st.AppliedTransactions = append(m.st.AppliedTransactions, e.Transaction.ID)
	m.st.TotalPaid = m.st.PaymentsTotal()

	out.TicketRef = &m.ticket.ID
	out.TransactionRef = e.Transaction.ID

	if m.fullyPaid() {
		m.st.Status = domain.TicketWaiting4Show
		out.Route(m.showAddr(), lifecycle.TicketSold{TicketID: m.ticket.ID, Amount: m.st.TotalPaid})
	} else {
		m.st.Status = domain.TicketReceivedPayment
	}

	return nil
}

func (m *Machine) reservationTimedOut(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.TicketCreated, domain.TicketWaiting4Invoice, domain.TicketWaiting4Payment,
		domain.TicketInitiatedPayment:
		m.cancelOutright(now, out, "reservation timed out")
		out.Route(m.showAddr(), lifecycle.TicketReservationTimeout{TicketID: m.ticket.ID})
		return nil
	case domain.TicketReceivedPayment:
		// Partial payment captured: the customer gets it back before the
		// ticket dies.
		m.beginRefund(now, out, "reservation timed out")
		return nil
	default:
		return lifecycle.ErrInvalidTransition
	}
}

// reservationRejected unwinds a ticket whose reservation lost the race for
// the last seat. The show never counted it, so no release is reported back;
// routing one would corrupt the seat counters.
func (m *Machine) reservationRejected(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.TicketCreated, domain.TicketReservedFree, domain.TicketWaiting4Invoice,
		domain.TicketWaiting4Payment, domain.TicketInitiatedPayment:
	default:
		return lifecycle.ErrInvalidTransition
	}

	m.cancelOutright(now, out, "show sold out")

	return nil
}

func (m *Machine) cancellationRequested(now time.Time, out *lifecycle.Outcome, reason string) error {
	switch m.st.Status {
	case domain.TicketCreated, domain.TicketReservedFree, domain.TicketWaiting4Invoice,
		domain.TicketWaiting4Payment, domain.TicketInitiatedPayment,
		domain.TicketReceivedPayment, domain.TicketWaiting4Show:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if !m.canBeRefunded() {
		m.cancelOutright(now, out, reason)
		out.Route(m.showAddr(), lifecycle.TicketCancelled{TicketID: m.ticket.ID})
		return nil
	}

	m.beginRefund(now, out, reason)

	return nil
}

// cancelOutright kills a ticket that holds no captured money.
func (m *Machine) cancelOutright(now time.Time, out *lifecycle.Outcome, reason string) {
	cancelled := now
	m.st.Cancel = &domain.CancelRecord{RequestedAt: now, Reason: reason, CancelledAt: &cancelled}
	m.st.Status = domain.TicketCancelled
	m.st.Active = false
	out.TicketRef = &m.ticket.ID

	if m.st.Invoice != nil {
		out.Queue(lifecycle.CancelInvoice{TicketID: m.ticket.ID, InvoiceID: m.st.Invoice.InvoiceID})
	}
}

// beginRefund moves the ticket into waiting4Refund with the full captured
// total approved.
func (m *Machine) beginRefund(now time.Time, out *lifecycle.Outcome, reason string) {
	total := m.st.PaymentsTotal()

	m.st.Cancel = &domain.CancelRecord{RequestedAt: now, Reason: reason}
	m.st.Refund = &domain.RefundRecord{
		RequestedAt:     now,
		Reason:          reason,
		RequestedAmount: total,
		ApprovedAmount:  total,
	}
	m.st.Status = domain.TicketWaiting4Refund

	out.TicketRef = &m.ticket.ID
	out.Queue(lifecycle.CreateRefundPayout{
		TicketID: m.ticket.ID,
		Amount:   total,
		Currency: m.ticket.Currency,
	})

	if m.st.Invoice != nil && !m.wasSold() {
		out.Queue(lifecycle.CancelInvoice{TicketID: m.ticket.ID, InvoiceID: m.st.Invoice.InvoiceID})
	}
}

func (m *Machine) refundReceived(now time.Time, out *lifecycle.Outcome, e lifecycle.RefundReceived) error {
	switch m.st.Status {
	case domain.TicketWaiting4Refund, domain.TicketWaiting4DisputeRefund:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if m.st.Refund == nil {
		return lifecycle.ErrNothingToDo
	}

	if m.st.HasTransaction(e.Transaction.ID) {
		return lifecycle.ErrNothingToDo
	}

	m.st.Refunds = append(m.st.Refunds, e.Transaction)
	m.st.AppliedTransactions = append(m.st.AppliedTransactions, e.Transaction.ID)
	m.st.TotalRefunded = m.st.RefundsTotal()

	out.TicketRef = &m.ticket.ID
	out.TransactionRef = e.Transaction.ID

	if !m.fullyRefunded() {
		return nil
	}

	switch m.st.Status {
	case domain.TicketWaiting4Refund:
		cancelled := now
		if m.st.Cancel == nil {
			m.st.Cancel = &domain.CancelRecord{RequestedAt: now}
		}
		m.st.Cancel.CancelledAt = &cancelled
		m.st.Status = domain.TicketCancelled
		m.st.Active = false

		if m.wasSold() {
			out.Route(m.showAddr(), lifecycle.TicketRefunded{TicketID: m.ticket.ID, Amount: m.st.TotalRefunded})
		} else {
			out.Route(m.showAddr(), lifecycle.TicketCancelled{TicketID: m.ticket.ID})
		}
	case domain.TicketWaiting4DisputeRefund:
		m.st.Status = domain.TicketFinalized
		m.st.Active = false
		m.st.Finalize = &domain.FinalizeRecord{FinalizedAt: now}
		out.Route(m.showAddr(), lifecycle.TicketRefunded{TicketID: m.ticket.ID, Amount: m.st.TotalRefunded})
	}

	return nil
}

func (m *Machine) showJoined(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.TicketReservedFree, domain.TicketWaiting4Show:
		if !m.canWatchShow() {
			return lifecycle.ErrNothingToDo
		}

		m.st.Status = domain.TicketRedeemed
		m.st.Redemption = &domain.RedemptionRecord{RedeemedAt: now}
		out.TicketRef = &m.ticket.ID
		out.Route(m.showAddr(), lifecycle.TicketRedeemed{TicketID: m.ticket.ID})
		out.Route(m.showAddr(), lifecycle.CustomerJoined{TicketID: m.ticket.ID})

		return nil
	case domain.TicketRedeemed:
		// Rejoining an already redeemed ticket.
		if !m.canWatchShow() {
			return lifecycle.ErrNothingToDo
		}

		out.TicketRef = &m.ticket.ID
		out.Route(m.showAddr(), lifecycle.CustomerJoined{TicketID: m.ticket.ID})

		return nil
	default:
		return lifecycle.ErrInvalidTransition
	}
}

func (m *Machine) showLeft(out *lifecycle.Outcome) error {
	if m.st.Status != domain.TicketRedeemed {
		return lifecycle.ErrInvalidTransition
	}

	out.TicketRef = &m.ticket.ID
	out.Route(m.showAddr(), lifecycle.CustomerLeft{TicketID: m.ticket.ID})

	return nil
}

func (m *Machine) showEnded(now time.Time, out *lifecycle.Outcome) error {
	out.TicketRef = &m.ticket.ID

	switch m.st.Status {
	case domain.TicketRedeemed:
		m.st.Status = domain.TicketInEscrow
		m.st.Escrow = &domain.EscrowRecord{StartedAt: now}
	case domain.TicketReservedFree, domain.TicketWaiting4Show:
		// showMissed: no redemption record when the show ends.
		m.st.Status = domain.TicketMissedShow
		m.st.Escrow = &domain.EscrowRecord{StartedAt: now}
	default:
		return lifecycle.ErrInvalidTransition
	}

	out.Defer(lifecycle.Schedule{
		Anchor: now,
		Period: m.cfg.EscrowPeriod,
		Event:  lifecycle.EscrowPeriodElapsed{},
	})

	return nil
}

func (m *Machine) escrowElapsed(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.TicketInEscrow, domain.TicketMissedShow:
	default:
		return lifecycle.ErrInvalidTransition
	}

	m.finalizeNow(now, out)

	return nil
}

func (m *Machine) feedbackReceived(now time.Time, out *lifecycle.Outcome, e lifecycle.FeedbackReceived) error {
	if m.st.Status != domain.TicketInEscrow {
		return lifecycle.ErrInvalidTransition
	}

	m.st.Feedback = &domain.FeedbackRecord{Rating: e.Rating, Review: e.Review, ReceivedAt: now}
	m.finalizeNow(now, out)

	return nil
}

func (m *Machine) disputeInitiated(now time.Time, out *lifecycle.Outcome, e lifecycle.DisputeInitiated) error {
	switch m.st.Status {
	case domain.TicketInEscrow, domain.TicketMissedShow:
	default:
		return lifecycle.ErrInvalidTransition
	}

	m.st.Dispute = &domain.DisputeRecord{Reason: e.Reason, Explanation: e.Explanation, OpenedAt: now}
	m.st.Status = domain.TicketWaiting4Decision

	out.TicketRef = &m.ticket.ID
	out.Route(m.showAddr(), lifecycle.TicketDisputed{TicketID: m.ticket.ID})

	return nil
}

func (m *Machine) disputeDecided(now time.Time, out *lifecycle.Outcome, e lifecycle.DisputeDecided) error {
	if m.st.Status != domain.TicketWaiting4Decision {
		return lifecycle.ErrInvalidTransition
	}

	if m.st.Dispute == nil {
		// Deciding a dispute that was never opened.
		return lifecycle.ErrNothingToDo
	}

	decided := now
	decision := e.Decision
	m.st.Dispute.Decision = &decision
	m.st.Dispute.DecidedAt = &decided

	out.TicketRef = &m.ticket.ID

	// noDisputeRefund: finalize immediately, skipping waiting4DisputeRefund.
	if decision == domain.DecisionNoRefund {
		m.finalizeNow(now, out)
		return nil
	}

	approved := e.ApprovedRefund
	if decision == domain.DecisionFullRefund || approved.IsZero() {
		approved = m.st.PaymentsTotal()
	}

	// Nothing was ever captured: there is no payout to wait for.
	if approved.IsZero() {
		m.finalizeNow(now, out)
		return nil
	}

	m.st.Refund = &domain.RefundRecord{
		RequestedAt:     now,
		Reason:          m.st.Dispute.Reason,
		RequestedAmount: m.st.PaymentsTotal(),
		ApprovedAmount:  approved,
	}
	m.st.Status = domain.TicketWaiting4DisputeRefund

	out.Queue(lifecycle.CreateRefundPayout{
		TicketID: m.ticket.ID,
		Amount:   approved,
		Currency: m.ticket.Currency,
	})

	return nil
}

func (m *Machine) finalizeNow(now time.Time, out *lifecycle.Outcome) {
	m.st.Status = domain.TicketFinalized
	m.st.Active = false
	m.st.Finalize = &domain.FinalizeRecord{FinalizedAt: now}
	out.TicketRef = &m.ticket.ID
}

