package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/show"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle/ticket"
)

// These tests wire a show machine and its ticket machines together the way
// the runtime does: routed outcomes go to the addressed sibling, broadcast
// outcomes go to every ticket. They cover the ticket-facing half of ending
// and cancelling a show.

// liveView reads the show machine directly, standing in for the runtime's
// lock-free snapshot handle.
type liveView struct{ m *show.Machine }

func (v liveView) Snapshot() (domain.ShowState, bool) { return v.m.State(), true }

func newShowMachine(capacity int) *show.Machine {
	sh := domain.Show{
		ID:            uuid.New(),
		CreatorWallet: uuid.New(),
		AgentWallet:   uuid.New(),
		Name:          "relay show",
		Capacity:      capacity,
		Price:         decimal.NewFromInt(100),
		Currency:      "USD",
	}

	return show.New(sh, domain.NewShowState(capacity, time.Now().UTC()), show.Config{
		GracePeriod:       15 * time.Minute,
		EscrowPeriod:      36 * time.Hour,
		TakeHomePercent:   75,
		CommissionPercent: 10,
	})
}

func newTicketMachine(sm *show.Machine, price int64) *ticket.Machine {
	tk := domain.Ticket{
		ID:           uuid.New(),
		ShowID:       sm.Show().ID,
		CustomerName: "viewer",
		Price:        decimal.NewFromInt(price),
		Currency:     "USD",
	}

	return ticket.New(tk, domain.NewTicketState(time.Now().UTC()), ticket.Config{
		ReservationTTL: 20 * time.Minute,
		EscrowPeriod:   36 * time.Hour,
	}, liveView{sm})
}

func applyShow(t *testing.T, sm *show.Machine, ev lifecycle.Event) lifecycle.Outcome {
	t.Helper()

	out, err := sm.Apply(time.Now().UTC(), ev)
	if err != nil {
		t.Fatalf("show apply %s: unexpected error: %v", ev.EventKind(), err)
	}

	return out
}

func applyTicket(t *testing.T, tm *ticket.Machine, ev lifecycle.Event) lifecycle.Outcome {
	t.Helper()

	out, err := tm.Apply(time.Now().UTC(), ev)
	if err != nil {
		t.Fatalf("ticket apply %s: unexpected error: %v", ev.EventKind(), err)
	}

	return out
}

// relayToShow applies a ticket outcome's show-bound routes, as the engine
// does after commit.
func relayToShow(t *testing.T, sm *show.Machine, out lifecycle.Outcome) {
	t.Helper()

	for _, r := range out.Routed {
		if r.To.Kind != domain.KindShow {
			continue
		}
		if _, err := sm.Apply(time.Now().UTC(), r.Event); err != nil {
			t.Fatalf("show apply routed %s: unexpected error: %v", r.Event.EventKind(), err)
		}
	}
}

func capture(id string, amount int64) lifecycle.PaymentReceived {
	return lifecycle.PaymentReceived{Transaction: domain.Transaction{
		ID:       id,
		Amount:   decimal.NewFromInt(amount),
		Currency: "USD",
		Rate:     decimal.NewFromInt(1),
	}}
}

func TestShowEndReachesItsTickets(t *testing.T) {
	t.Parallel()

	sm := newShowMachine(2)
	watcher := newTicketMachine(sm, 100)
	absent := newTicketMachine(sm, 100)

	for _, tm := range []*ticket.Machine{watcher, absent} {
		relayToShow(t, sm, applyTicket(t, tm, lifecycle.TicketCreated{}))
		applyTicket(t, tm, lifecycle.InvoiceReceived{InvoiceID: uuid.NewString()})
		relayToShow(t, sm, applyTicket(t, tm, capture(uuid.NewString(), 100)))
	}

	applyShow(t, sm, lifecycle.StartShow{})
	relayToShow(t, sm, applyTicket(t, watcher, lifecycle.ShowJoined{}))

	applyShow(t, sm, lifecycle.ShowEnded{})
	out := applyShow(t, sm, lifecycle.GracePeriodElapsed{})

	if len(out.Broadcast) != 1 {
		t.Fatalf("escrow start broadcast %d events, want 1", len(out.Broadcast))
	}
	for _, tm := range []*ticket.Machine{watcher, absent} {
		tout := applyTicket(t, tm, out.Broadcast[0])
		if len(tout.Timers) != 1 {
			t.Fatalf("ticket after show end: %d timers, want 1 escrow timer", len(tout.Timers))
		}
	}

	if got := watcher.State().Status; got != domain.TicketInEscrow {
		t.Fatalf("redeemed ticket after show end: status %q, want inEscrow", got)
	}
	if got := absent.State().Status; got != domain.TicketMissedShow {
		t.Fatalf("unredeemed ticket after show end: status %q, want missedShow", got)
	}

	// Feedback is reachable now that the ticket left waiting4Show.
	applyTicket(t, watcher, lifecycle.FeedbackReceived{Rating: 5, Review: "great set"})
	if got := watcher.State().Status; got != domain.TicketFinalized {
		t.Fatalf("after feedback: status %q, want finalized", got)
	}
}

func TestShowCancellationDrainsSoldTickets(t *testing.T) {
	t.Parallel()

	sm := newShowMachine(1)
	tm := newTicketMachine(sm, 100)

	relayToShow(t, sm, applyTicket(t, tm, lifecycle.TicketCreated{}))
	applyTicket(t, tm, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	relayToShow(t, sm, applyTicket(t, tm, capture("tx-1", 100)))

	out := applyShow(t, sm, lifecycle.RequestCancellation{Reason: "venue flooded"})
	if got := sm.State().Status; got != domain.ShowCancellationRequested {
		t.Fatalf("cancel with a sold ticket: status %q, want cancellationRequested", got)
	}
	if len(out.Broadcast) != 1 {
		t.Fatalf("cancel broadcast %d events, want 1", len(out.Broadcast))
	}

	tout := applyTicket(t, tm, out.Broadcast[0])
	if got := tm.State().Status; got != domain.TicketWaiting4Refund {
		t.Fatalf("sold ticket after cancellation: status %q, want waiting4Refund", got)
	}
	if len(tout.Effects) != 1 {
		t.Fatalf("sold ticket after cancellation queued %d effects, want the refund payout", len(tout.Effects))
	}
	if _, ok := tout.Effects[0].(lifecycle.CreateRefundPayout); !ok {
		t.Fatalf("effect %T, want CreateRefundPayout", tout.Effects[0])
	}

	// The refund lands, the ticket reports back and the show can die.
	refunded := applyTicket(t, tm, lifecycle.RefundReceived{Transaction: domain.Transaction{
		ID:       "rf-1",
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
		Rate:     decimal.NewFromInt(1),
	}})
	relayToShow(t, sm, refunded)

	if got := tm.State().Status; got != domain.TicketCancelled {
		t.Fatalf("ticket after refund: status %q, want cancelled", got)
	}
	if got := sm.State().Status; got != domain.ShowCancelled {
		t.Fatalf("show after the drain: status %q, want cancelled", got)
	}
}

func TestShowCancellationUnwindsUnpaidReservations(t *testing.T) {
	t.Parallel()

	sm := newShowMachine(2)
	tm := newTicketMachine(sm, 100)
	relayToShow(t, sm, applyTicket(t, tm, lifecycle.TicketCreated{}))

	out := applyShow(t, sm, lifecycle.RequestCancellation{Reason: "no audience"})
	if got := sm.State().Status; got != domain.ShowCancelled {
		t.Fatalf("cancel without sales: status %q, want cancelled", got)
	}

	tout := applyTicket(t, tm, out.Broadcast[0])
	if got := tm.State().Status; got != domain.TicketCancelled {
		t.Fatalf("unpaid ticket after cancellation: status %q, want cancelled", got)
	}

	// The release has nowhere to go: the dead show rejects the route and the
	// runtime discards it.
	for _, r := range tout.Routed {
		if _, err := sm.Apply(time.Now().UTC(), r.Event); !errors.Is(err, lifecycle.ErrInvalidTransition) {
			t.Fatalf("route %s to cancelled show: err %v, want ErrInvalidTransition", r.Event.EventKind(), err)
		}
	}
}
