package show

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

var testCfg = Config{
	GracePeriod:       15 * time.Minute,
	EscrowPeriod:      36 * time.Hour,
	TakeHomePercent:   75,
	CommissionPercent: 10,
}

func newTestMachine(t *testing.T, capacity int) *Machine {
	t.Helper()

	sh := domain.Show{
		ID:            uuid.New(),
		CreatorWallet: uuid.New(),
		AgentWallet:   uuid.New(),
		Name:          "test show",
		Capacity:      capacity,
		Price:         decimal.NewFromInt(100),
		Currency:      "USD",
	}

	return New(sh, domain.NewShowState(capacity, time.Now().UTC()), testCfg)
}

func mustApply(t *testing.T, m *Machine, ev lifecycle.Event) lifecycle.Outcome {
	t.Helper()

	out, err := m.Apply(time.Now().UTC(), ev)
	if err != nil {
		t.Fatalf("apply %s: unexpected error: %v", ev.EventKind(), err)
	}

	return out
}

func TestBoxOfficeSelloutToggle(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 2)
	first, second := uuid.New(), uuid.New()

	mustApply(t, m, lifecycle.TicketReserved{TicketID: first})
	if got := m.State().Status; got != domain.ShowBoxOfficeOpen {
		t.Fatalf("after first reservation: status %q, want boxOfficeOpen", got)
	}

	mustApply(t, m, lifecycle.TicketReserved{TicketID: second})
	if got := m.State().Status; got != domain.ShowBoxOfficeClosed {
		t.Fatalf("after sellout: status %q, want boxOfficeClosed", got)
	}

	if _, err := m.Apply(time.Now().UTC(), lifecycle.TicketReserved{TicketID: uuid.New()}); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("reservation with closed box office: err %v, want ErrInvalidTransition", err)
	}

	// A released seat reopens sales.
	mustApply(t, m, lifecycle.TicketCancelled{TicketID: second})
	st := m.State()
	if st.Status != domain.ShowBoxOfficeOpen {
		t.Fatalf("after release: status %q, want boxOfficeOpen", st.Status)
	}
	if st.TicketsAvailable != 1 || st.TicketsReserved != 1 {
		t.Fatalf("after release: available=%d reserved=%d, want 1/1", st.TicketsAvailable, st.TicketsReserved)
	}
}

func TestCounterIdentityThroughSales(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 3)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	for _, id := range ids {
		mustApply(t, m, lifecycle.TicketReserved{TicketID: id})
	}
	mustApply(t, m, lifecycle.TicketSold{TicketID: ids[0], Amount: decimal.NewFromInt(100)})
	mustApply(t, m, lifecycle.TicketSold{TicketID: ids[1], Amount: decimal.NewFromInt(100)})
	mustApply(t, m, lifecycle.TicketCancelled{TicketID: ids[2]})

	st := m.State()
	if sum := st.TicketsAvailable + st.TicketsReserved + st.TicketsSold; sum != 3 {
		t.Fatalf("capacity identity broken: available+reserved+sold = %d, want 3", sum)
	}
	if !st.TotalSales.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("total sales = %s, want 200", st.TotalSales)
	}
}

func TestSoldWithoutReservationIsInvariant(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 2)

	_, err := m.Apply(time.Now().UTC(), lifecycle.TicketSold{TicketID: uuid.New(), Amount: decimal.NewFromInt(100)})
	if !lifecycle.IsInvariant(err) {
		t.Fatalf("sold without reservation: err %v, want invariant error", err)
	}
}

func TestStartShowGuards(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 1)

	// No sales yet: starting is a guarded no-op.
	if _, err := m.Apply(time.Now().UTC(), lifecycle.StartShow{}); !errors.Is(err, lifecycle.ErrNothingToDo) {
		t.Fatalf("start without sales: err %v, want ErrNothingToDo", err)
	}

	id := uuid.New()
	mustApply(t, m, lifecycle.TicketReserved{TicketID: id})
	mustApply(t, m, lifecycle.TicketSold{TicketID: id, Amount: decimal.NewFromInt(100)})

	mustApply(t, m, lifecycle.StartShow{})
	if got := m.State().Status; got != domain.ShowStarted {
		t.Fatalf("after start: status %q, want started", got)
	}
}

func TestRestartWithinGraceWindow(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 1)
	id := uuid.New()
	mustApply(t, m, lifecycle.TicketReserved{TicketID: id})
	mustApply(t, m, lifecycle.TicketSold{TicketID: id, Amount: decimal.NewFromInt(100)})
	mustApply(t, m, lifecycle.StartShow{})

	out := mustApply(t, m, lifecycle.ShowEnded{})
	st := m.State()
	if st.Status != domain.ShowStopped || st.Runtime == nil || st.Runtime.EndedAt == nil {
		t.Fatalf("after end: status %q runtime %+v, want stopped with ended timestamp", st.Status, st.Runtime)
	}
	if len(out.Timers) != 1 {
		t.Fatalf("after end: %d timers, want 1 grace timer", len(out.Timers))
	}
	if len(out.Broadcast) != 0 {
		t.Fatalf("after end: broadcast %d events, want none until escrow starts", len(out.Broadcast))
	}

	// The creator reconnects inside the grace window.
	mustApply(t, m, lifecycle.StartShow{})
	st = m.State()
	if st.Status != domain.ShowStarted {
		t.Fatalf("after restart: status %q, want started", st.Status)
	}
	if st.Runtime.EndedAt != nil {
		t.Fatal("after restart: ended timestamp not cleared")
	}
}

func TestSettlementRoutesEarnings(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 1)
	id := uuid.New()
	mustApply(t, m, lifecycle.TicketReserved{TicketID: id})
	mustApply(t, m, lifecycle.TicketSold{TicketID: id, Amount: decimal.NewFromInt(100)})
	mustApply(t, m, lifecycle.StartShow{})
	mustApply(t, m, lifecycle.ShowEnded{})

	out := mustApply(t, m, lifecycle.GracePeriodElapsed{})
	if got := m.State().Status; got != domain.ShowInEscrow {
		t.Fatalf("after grace: status %q, want inEscrow", got)
	}
	if len(out.Timers) != 1 || out.Timers[0].Period != testCfg.EscrowPeriod {
		t.Fatalf("after grace: timers %+v, want one escrow timer", out.Timers)
	}
	if len(out.Broadcast) != 1 {
		t.Fatalf("after grace: broadcast %d events, want show end for the tickets", len(out.Broadcast))
	}
	if _, ok := out.Broadcast[0].(lifecycle.ShowEnded); !ok {
		t.Fatalf("after grace: broadcast %T, want ShowEnded", out.Broadcast[0])
	}

	out = mustApply(t, m, lifecycle.EscrowPeriodElapsed{})
	st := m.State()
	if st.Status != domain.ShowFinalized || st.Active {
		t.Fatalf("after escrow: status %q active %v, want finalized/inactive", st.Status, st.Active)
	}

	if len(out.Routed) != 2 {
		t.Fatalf("settlement routed %d events, want 2 earnings postings", len(out.Routed))
	}

	creator, ok := out.Routed[0].Event.(lifecycle.EarningsPosted)
	if !ok || out.Routed[0].To.ID != m.Show().CreatorWallet {
		t.Fatalf("first posting %+v, want creator earnings", out.Routed[0])
	}
	if !creator.Revenue.Equal(decimal.NewFromInt(100)) || !creator.SharePercent.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("creator posting revenue=%s share=%s, want 100/75", creator.Revenue, creator.SharePercent)
	}
	if creator.Currency != "USD" {
		t.Fatalf("creator posting currency %q, want show currency USD", creator.Currency)
	}

	agent, ok := out.Routed[1].Event.(lifecycle.EarningsPosted)
	if !ok || out.Routed[1].To.ID != m.Show().AgentWallet {
		t.Fatalf("second posting %+v, want agent earnings", out.Routed[1])
	}
	if !agent.SharePercent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("agent share = %s, want 10", agent.SharePercent)
	}

	if !m.Terminal() {
		t.Fatal("finalized show should be terminal")
	}
}

func TestCancellationWaitsForRefunds(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 2)
	id := uuid.New()
	mustApply(t, m, lifecycle.TicketReserved{TicketID: id})
	mustApply(t, m, lifecycle.TicketSold{TicketID: id, Amount: decimal.NewFromInt(100)})

	out := mustApply(t, m, lifecycle.RequestCancellation{Reason: "creator unavailable"})
	if got := m.State().Status; got != domain.ShowCancellationRequested {
		t.Fatalf("cancel with sold tickets: status %q, want cancellationRequested", got)
	}
	if len(out.Broadcast) != 1 {
		t.Fatalf("cancel broadcast %d events, want the ticket-facing cancellation", len(out.Broadcast))
	}
	if sc, ok := out.Broadcast[0].(lifecycle.ShowCancelled); !ok || sc.Reason != "creator unavailable" {
		t.Fatalf("cancel broadcast %+v, want ShowCancelled with the reason", out.Broadcast[0])
	}

	// No new reservations while the cancellation drains.
	if _, err := m.Apply(time.Now().UTC(), lifecycle.TicketReserved{TicketID: uuid.New()}); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("reservation during cancellation: err %v, want ErrInvalidTransition", err)
	}

	mustApply(t, m, lifecycle.TicketRefunded{TicketID: id, Amount: decimal.NewFromInt(100)})
	st := m.State()
	if st.Status != domain.ShowCancelled || st.Active {
		t.Fatalf("after last refund: status %q active %v, want cancelled/inactive", st.Status, st.Active)
	}
	if st.Cancel == nil || st.Cancel.CancelledAt == nil {
		t.Fatal("after last refund: missing cancellation record")
	}
}

func TestCancellationWithoutSalesIsImmediate(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 2)
	mustApply(t, m, lifecycle.TicketReserved{TicketID: uuid.New()})

	out := mustApply(t, m, lifecycle.RequestCancellation{Reason: "no audience"})
	if got := m.State().Status; got != domain.ShowCancelled {
		t.Fatalf("cancel without sales: status %q, want cancelled", got)
	}
	if len(out.Broadcast) != 1 {
		t.Fatalf("cancel broadcast %d events, want 1: the reserved ticket still has to unwind", len(out.Broadcast))
	}
}

func TestStaleTimerIsRejected(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 2)

	// A grace timer surviving from a previous run must not fire on a show
	// that never went live.
	if _, err := m.Apply(time.Now().UTC(), lifecycle.GracePeriodElapsed{}); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("stale grace timer: err %v, want ErrInvalidTransition", err)
	}
}
