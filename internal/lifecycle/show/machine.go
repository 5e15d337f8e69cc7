// Package show implements the show lifecycle machine: box office, live
// runtime, escrow and settlement, plus the ticket-inventory counters.
package show

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

// Config carries the timer periods and revenue shares the machine needs to
// settle a show.
type Config struct {
	// GracePeriod separates show end from escrow start; a restart is allowed
	// while it runs.
	GracePeriod time.Duration
	// EscrowPeriod separates escrow start from finalization.
	EscrowPeriod time.Duration
	// TakeHomePercent is the creator's share of net revenue.
	TakeHomePercent int
	// CommissionPercent is the agent's share of net revenue.
	CommissionPercent int
}

// Machine owns one show's lifecycle. It is not safe for concurrent use; the
// actor runtime delivers events one at a time.
type Machine struct {
	show domain.Show
	st   domain.ShowState
	cfg  Config
}

func New(show domain.Show, st domain.ShowState, cfg Config) *Machine {
	return &Machine{show: show, st: st, cfg: cfg}
}

// Show returns the immutable show document.
func (m *Machine) Show() domain.Show { return m.show }

// State returns a copy of the current snapshot.
func (m *Machine) State() domain.ShowState { return m.st }

// Restore puts back a previous snapshot after a failed persist.
func (m *Machine) Restore(st domain.ShowState) { m.st = st }

// Terminal reports whether the machine can never transition again.
func (m *Machine) Terminal() bool {
	return m.st.Status == domain.ShowCancelled || m.st.Status == domain.ShowFinalized
}

// Apply runs one event against the current state. It returns
// lifecycle.ErrInvalidTransition when the event has no transition here, and
// lifecycle.ErrNothingToDo when a guard turns the event into a no-op; in both
// cases the state is untouched.
func (m *Machine) Apply(now time.Time, ev lifecycle.Event) (lifecycle.Outcome, error) {
	out := lifecycle.Outcome{Audit: ev.EventKind()}

	switch e := ev.(type) {
	case lifecycle.TicketReserved:
		if err := m.ticketReserved(&out, e); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.TicketReservationTimeout:
		if err := m.ticketReleased(&out, e.TicketID); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.TicketCancelled:
		if err := m.ticketReleased(&out, e.TicketID); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.TicketSold:
		if err := m.ticketSold(&out, e); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.TicketRefunded:
		if err := m.ticketRefunded(now, &out, e); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.TicketRedeemed:
		if !m.live() {
			return lifecycle.Outcome{}, lifecycle.ErrInvalidTransition
		}
		m.st.TicketsRedeemed++
		out.TicketRef = &e.TicketID
	case lifecycle.TicketDisputed:
		out.TicketRef = &e.TicketID
	case lifecycle.CustomerJoined:
		out.TicketRef = &e.TicketID
	case lifecycle.CustomerLeft:
		out.TicketRef = &e.TicketID
	case lifecycle.StartShow:
		if err := m.startShow(now, &out); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.StopShow:
		if m.st.Status != domain.ShowStarted {
			return lifecycle.Outcome{}, lifecycle.ErrInvalidTransition
		}
		m.st.Status = domain.ShowStopped
	case lifecycle.ShowEnded:
		if err := m.showEnded(now, &out); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.GracePeriodElapsed:
		if err := m.gracePeriodElapsed(now, &out); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.EscrowPeriodElapsed:
		if err := m.finalize(now, &out); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.ShowFinalized:
		if err := m.finalize(now, &out); err != nil {
			return lifecycle.Outcome{}, err
		}
	case lifecycle.RequestCancellation:
		if err := m.requestCancellation(now, &out, e.Reason); err != nil {
			return lifecycle.Outcome{}, err
		}
	default:
		return lifecycle.Outcome{}, lifecycle.ErrInvalidTransition
	}

	m.st.UpdatedAt = now
	out.Changed = true

	return out, nil
}

// live reports whether the show still accepts ticket-side traffic.
func (m *Machine) live() bool {
	switch m.st.Status {
	case domain.ShowCancelled, domain.ShowFinalized:
		return false
	}
	return true
}

// soldOut is evaluated before the decrement: the last available seat closes
// the box office.
func (m *Machine) soldOut() bool {
	return m.st.TicketsAvailable == 1
}

// canCancel: no outstanding paid tickets means the show can die right away.
func (m *Machine) canCancel() bool {
	return m.st.TicketsSold-m.st.TicketsRefunded == 0
}

// fullyRefunded: every unit of sales has come back as refunds.
func (m *Machine) fullyRefunded() bool {
	return m.st.TotalRefunded.Cmp(m.st.TotalSales) >= 0
}

// canStartShow: a show with more tickets sold than seats still open may go
// live; a show that already ended may restart while the grace window of the
// recorded start time is open.
func (m *Machine) canStartShow(now time.Time) bool {
	if m.st.TicketsSold > m.st.TicketsAvailable {
		return true
	}

	if m.st.Runtime != nil && m.st.Runtime.EndedAt != nil {
		return now.Sub(m.st.Runtime.StartedAt) <= m.cfg.GracePeriod
	}

	return false
}

func (m *Machine) ticketReserved(out *lifecycle.Outcome, e lifecycle.TicketReserved) error {
	if m.st.Status != domain.ShowBoxOfficeOpen {
		return lifecycle.ErrInvalidTransition
	}

	closing := m.soldOut()

	m.st.TicketsAvailable--
	m.st.TicketsReserved++

	if closing {
		m.st.Status = domain.ShowBoxOfficeClosed
	}

	out.TicketRef = &e.TicketID

	return nil
}

// ticketReleased returns a never-sold seat to the box office, reopening it
// unless a cancellation is pending.
func (m *Machine) ticketReleased(out *lifecycle.Outcome, ticketID uuid.UUID) error {
	switch m.st.Status {
	case domain.ShowBoxOfficeOpen, domain.ShowBoxOfficeClosed, domain.ShowCancellationRequested,
		domain.ShowStarted, domain.ShowStopped:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if m.st.TicketsReserved == 0 {
		return lifecycle.Invariant("show.ticketReleased", "released ticket %s without a reservation", ticketID)
	}

	m.st.TicketsReserved--
	m.st.TicketsAvailable++

	if m.st.Status == domain.ShowBoxOfficeClosed {
		m.st.Status = domain.ShowBoxOfficeOpen
	}

	out.TicketRef = &ticketID

	return nil
}

func (m *Machine) ticketSold(out *lifecycle.Outcome, e lifecycle.TicketSold) error {
	switch m.st.Status {
	case domain.ShowBoxOfficeOpen, domain.ShowBoxOfficeClosed, domain.ShowStarted, domain.ShowStopped:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if m.st.TicketsReserved == 0 {
		return lifecycle.Invariant("show.ticketSold", "sold ticket %s without a reservation", e.TicketID)
	}

	m.st.TicketsReserved--
	m.st.TicketsSold++
	m.st.TotalSales = m.st.TotalSales.Add(e.Amount)

	out.TicketRef = &e.TicketID

	return nil
}

func (m *Machine) ticketRefunded(now time.Time, out *lifecycle.Outcome, e lifecycle.TicketRefunded) error {
	if !m.live() {
		return lifecycle.ErrInvalidTransition
	}

	m.st.TicketsRefunded++
	m.st.TotalRefunded = m.st.TotalRefunded.Add(e.Amount)

	out.TicketRef = &e.TicketID

	if m.st.Status == domain.ShowCancellationRequested && m.fullyRefunded() {
		m.cancelNow(now)
	}

	return nil
}

func (m *Machine) startShow(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.ShowBoxOfficeOpen, domain.ShowBoxOfficeClosed, domain.ShowStopped:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if !m.canStartShow(now) {
		return lifecycle.ErrNothingToDo
	}

	if m.st.Runtime == nil {
		m.st.Runtime = &domain.ShowRuntime{StartedAt: now}
	}
	m.st.Runtime.EndedAt = nil
	m.st.Status = domain.ShowStarted

	return nil
}

func (m *Machine) showEnded(now time.Time, out *lifecycle.Outcome) error {
	switch m.st.Status {
	case domain.ShowStarted, domain.ShowStopped:
	default:
		return lifecycle.ErrInvalidTransition
	}

	if m.st.Runtime == nil {
		m.st.Runtime = &domain.ShowRuntime{StartedAt: now}
	}
	ended := now
	m.st.Runtime.EndedAt = &ended
	m.st.Status = domain.ShowStopped

	// Escrow begins only after the grace window: a late reconnection within
	// it restarts the show instead.
	out.Defer(lifecycle.Schedule{
		Anchor: ended,
		Period: m.cfg.GracePeriod,
		Event:  lifecycle.GracePeriodElapsed{},
	})

	return nil
}

func (m *Machine) gracePeriodElapsed(now time.Time, out *lifecycle.Outcome) error {
	if m.st.Status != domain.ShowStopped || m.st.Runtime == nil || m.st.Runtime.EndedAt == nil {
		return lifecycle.ErrInvalidTransition
	}

	m.st.Status = domain.ShowInEscrow
	m.st.Escrow = &domain.EscrowRecord{StartedAt: now}

	out.Defer(lifecycle.Schedule{
		Anchor: now,
		Period: m.cfg.EscrowPeriod,
		Event:  lifecycle.EscrowPeriodElapsed{},
	})

	// Tickets hear about the end only now, not at showEnded: a restart inside
	// the grace window must find them still redeemable.
	out.Announce(lifecycle.ShowEnded{})

	return nil
}

func (m *Machine) finalize(now time.Time, out *lifecycle.Outcome) error {
	if m.st.Status != domain.ShowInEscrow {
		return lifecycle.ErrInvalidTransition
	}

	if m.st.Escrow != nil {
		ended := now
		m.st.Escrow.EndedAt = &ended
	}

	m.st.Status = domain.ShowFinalized
	m.st.Active = false
	m.st.Finalize = &domain.FinalizeRecord{FinalizedAt: now}
	out.Audit = lifecycle.KindShowFinalized

	revenue := m.st.TotalSales.Sub(m.st.TotalRefunded)
	if revenue.Sign() > 0 {
		out.Route(
			lifecycle.Address{Kind: domain.KindWallet, ID: m.show.CreatorWallet},
			lifecycle.EarningsPosted{
				ShowID:       m.show.ID,
				Revenue:      revenue,
				SharePercent: decimal.NewFromInt(int64(m.cfg.TakeHomePercent)),
				Currency:     m.show.Currency,
			},
		)
		out.Route(
			lifecycle.Address{Kind: domain.KindWallet, ID: m.show.AgentWallet},
			lifecycle.EarningsPosted{
				ShowID:       m.show.ID,
				Revenue:      revenue,
				SharePercent: decimal.NewFromInt(int64(m.cfg.CommissionPercent)),
				Currency:     m.show.Currency,
			},
		)
	}

	return nil
}

func (m *Machine) requestCancellation(now time.Time, out *lifecycle.Outcome, reason string) error {
	switch m.st.Status {
	case domain.ShowBoxOfficeOpen, domain.ShowBoxOfficeClosed, domain.ShowStarted, domain.ShowStopped:
	default:
		return lifecycle.ErrInvalidTransition
	}

	m.st.Cancel = &domain.CancelRecord{RequestedAt: now, Reason: reason}

	// Every live ticket unwinds: unsold ones cancel outright, sold ones run
	// the refund drain and report back through TicketRefunded.
	out.Announce(lifecycle.ShowCancelled{Reason: reason})

	if m.canCancel() {
		m.cancelNow(now)
		return nil
	}

	// Paid tickets outstanding: the show waits in cancellationRequested until
	// every sold ticket has been refunded.
	m.st.Status = domain.ShowCancellationRequested

	return nil
}

func (m *Machine) cancelNow(now time.Time) {
	cancelled := now
	if m.st.Cancel == nil {
		m.st.Cancel = &domain.CancelRecord{RequestedAt: now}
	}
	m.st.Cancel.CancelledAt = &cancelled
	m.st.Status = domain.ShowCancelled
	m.st.Active = false
}
