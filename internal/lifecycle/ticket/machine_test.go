package ticket

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

var testCfg = Config{
	ReservationTTL: 20 * time.Minute,
	EscrowPeriod:   36 * time.Hour,
}

// stubView is a canned show snapshot for canWatchShow checks.
type stubView struct {
	status domain.ShowStatus
	ok     bool
}

func (v stubView) Snapshot() (domain.ShowState, bool) {
	return domain.ShowState{Status: v.status}, v.ok
}

func newTestMachine(t *testing.T, price int64, view ShowView) *Machine {
	t.Helper()

	tk := domain.Ticket{
		ID:           uuid.New(),
		ShowID:       uuid.New(),
		CustomerName: "pineapple",
		Price:        decimal.NewFromInt(price),
		Currency:     "USD",
	}

	return New(tk, domain.NewTicketState(time.Now().UTC()), testCfg, view)
}

func mustApply(t *testing.T, m *Machine, ev lifecycle.Event) lifecycle.Outcome {
	t.Helper()

	out, err := m.Apply(time.Now().UTC(), ev)
	if err != nil {
		t.Fatalf("apply %s: unexpected error: %v", ev.EventKind(), err)
	}

	return out
}

func payment(id string, amount int64) lifecycle.PaymentReceived {
	return lifecycle.PaymentReceived{Transaction: domain.Transaction{
		ID:       id,
		Amount:   decimal.NewFromInt(amount),
		Currency: "USD",
		Rate:     decimal.NewFromInt(1),
	}}
}

func refund(id string, amount int64) lifecycle.RefundReceived {
	return lifecycle.RefundReceived{Transaction: domain.Transaction{
		ID:       id,
		Amount:   decimal.NewFromInt(amount),
		Currency: "USD",
		Rate:     decimal.NewFromInt(1),
	}}
}

func TestPaidTicketHappyPath(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, stubView{status: domain.ShowStarted, ok: true})

	out := mustApply(t, m, lifecycle.TicketCreated{})
	if got := m.State().Status; got != domain.TicketWaiting4Invoice {
		t.Fatalf("after creation: status %q, want waiting4Invoice", got)
	}
	if len(out.Effects) != 1 {
		t.Fatalf("after creation: %d effects, want CreateInvoice", len(out.Effects))
	}
	if _, ok := out.Effects[0].(lifecycle.CreateInvoice); !ok {
		t.Fatalf("after creation: effect %T, want CreateInvoice", out.Effects[0])
	}
	if len(out.Timers) != 1 || out.Timers[0].Period != testCfg.ReservationTTL {
		t.Fatalf("after creation: timers %+v, want one reservation timer", out.Timers)
	}
	if len(out.Routed) != 1 {
		t.Fatalf("after creation: %d routed, want TicketReserved to the show", len(out.Routed))
	}

	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1", PaymentAddress: "addr-1"})
	if got := m.State().Status; got != domain.TicketWaiting4Payment {
		t.Fatalf("after invoice: status %q, want waiting4Payment", got)
	}

	out = mustApply(t, m, lifecycle.PaymentInitiated{Address: "refund-addr"})
	if got := m.State().Status; got != domain.TicketInitiatedPayment {
		t.Fatalf("after initiation: status %q, want initiatedPayment", got)
	}
	if len(out.Effects) != 1 {
		t.Fatalf("after initiation: %d effects, want UpdateInvoiceAddress", len(out.Effects))
	}

	out = mustApply(t, m, payment("tx-1", 100))
	st := m.State()
	if st.Status != domain.TicketWaiting4Show {
		t.Fatalf("after full payment: status %q, want waiting4Show", st.Status)
	}
	if !st.TotalPaid.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after full payment: total paid %s, want 100", st.TotalPaid)
	}

	sold, ok := out.Routed[0].Event.(lifecycle.TicketSold)
	if !ok || !sold.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after full payment: routed %+v, want TicketSold amount 100", out.Routed[0])
	}

	out = mustApply(t, m, lifecycle.ShowJoined{})
	if got := m.State().Status; got != domain.TicketRedeemed {
		t.Fatalf("after join: status %q, want redeemed", got)
	}
	if len(out.Routed) != 2 {
		t.Fatalf("after join: %d routed, want TicketRedeemed and CustomerJoined", len(out.Routed))
	}

	out = mustApply(t, m, lifecycle.ShowEnded{})
	if got := m.State().Status; got != domain.TicketInEscrow {
		t.Fatalf("after show end: status %q, want inEscrow", got)
	}
	if len(out.Timers) != 1 || out.Timers[0].Period != testCfg.EscrowPeriod {
		t.Fatalf("after show end: timers %+v, want one escrow timer", out.Timers)
	}

	mustApply(t, m, lifecycle.FeedbackReceived{Rating: 5, Review: "brilliant"})
	st = m.State()
	if st.Status != domain.TicketFinalized || st.Active {
		t.Fatalf("after feedback: status %q active %v, want finalized/inactive", st.Status, st.Active)
	}
	if st.Feedback == nil || st.Feedback.Rating != 5 {
		t.Fatalf("after feedback: record %+v, want rating 5", st.Feedback)
	}
	if !m.Terminal() {
		t.Fatal("finalized ticket should be terminal")
	}
}

func TestDuplicateTransactionIsNoOp(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	mustApply(t, m, payment("tx-1", 60))

	if _, err := m.Apply(time.Now().UTC(), payment("tx-1", 60)); !errors.Is(err, lifecycle.ErrNothingToDo) {
		t.Fatalf("replayed transaction: err %v, want ErrNothingToDo", err)
	}

	st := m.State()
	if len(st.Payments) != 1 || !st.TotalPaid.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("after replay: %d payments total %s, want 1 payment of 60", len(st.Payments), st.TotalPaid)
	}
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	t.Parallel()

	// Random split of the price across several captures must always land on
	// waiting4Show with the ledger sum equal to the price.
	rng := rand.New(rand.NewSource(23))

	for i := 0; i < 20; i++ {
		m := newTestMachine(t, 100, nil)
		mustApply(t, m, lifecycle.TicketCreated{})
		mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})

		remaining := int64(100)
		n := 0
		for remaining > 0 {
			part := rng.Int63n(remaining) + 1
			remaining -= part
			n++
			mustApply(t, m, payment(fmt.Sprintf("tx-%d-%d", i, n), part))

			st := m.State()
			if remaining > 0 && st.Status != domain.TicketReceivedPayment {
				t.Fatalf("round %d: partial payment left status %q, want receivedPayment", i, st.Status)
			}
		}

		st := m.State()
		if st.Status != domain.TicketWaiting4Show {
			t.Fatalf("round %d: final status %q, want waiting4Show", i, st.Status)
		}
		if !st.TotalPaid.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("round %d: total paid %s, want 100", i, st.TotalPaid)
		}
	}
}

func TestReservationTimeoutUnpaid(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})

	out := mustApply(t, m, lifecycle.ReservationTimedOut{})
	st := m.State()
	if st.Status != domain.TicketCancelled || st.Active {
		t.Fatalf("after timeout: status %q active %v, want cancelled/inactive", st.Status, st.Active)
	}

	// The open invoice dies with the ticket, and the show gets its seat back.
	foundCancel := false
	for _, eff := range out.Effects {
		if _, ok := eff.(lifecycle.CancelInvoice); ok {
			foundCancel = true
		}
	}
	if !foundCancel {
		t.Fatalf("after timeout: effects %+v, want CancelInvoice", out.Effects)
	}
	if len(out.Routed) != 1 {
		t.Fatalf("after timeout: %d routed, want TicketReservationTimeout", len(out.Routed))
	}
	if _, ok := out.Routed[0].Event.(lifecycle.TicketReservationTimeout); !ok {
		t.Fatalf("after timeout: routed %T, want TicketReservationTimeout", out.Routed[0].Event)
	}
}

func TestReservationTimeoutPartialPaymentRefunds(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	mustApply(t, m, payment("tx-1", 40))

	out := mustApply(t, m, lifecycle.ReservationTimedOut{})
	st := m.State()
	if st.Status != domain.TicketWaiting4Refund {
		t.Fatalf("after timeout with partial payment: status %q, want waiting4Refund", st.Status)
	}
	if st.Refund == nil || !st.Refund.ApprovedAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("refund record %+v, want approved 40", st.Refund)
	}

	foundPayout := false
	for _, eff := range out.Effects {
		if p, ok := eff.(lifecycle.CreateRefundPayout); ok {
			foundPayout = true
			if !p.Amount.Equal(decimal.NewFromInt(40)) {
				t.Fatalf("refund payout amount %s, want 40", p.Amount)
			}
		}
	}
	if !foundPayout {
		t.Fatalf("effects %+v, want CreateRefundPayout", out.Effects)
	}

	// Never sold: the show hears a cancellation, not a refund, so its sales
	// counters stay untouched.
	out = mustApply(t, m, refund("rf-1", 40))
	st = m.State()
	if st.Status != domain.TicketCancelled {
		t.Fatalf("after refund landed: status %q, want cancelled", st.Status)
	}
	if _, ok := out.Routed[0].Event.(lifecycle.TicketCancelled); !ok {
		t.Fatalf("after refund landed: routed %T, want TicketCancelled", out.Routed[0].Event)
	}
}

func TestSoldTicketCancelRefundsAndReports(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	mustApply(t, m, payment("tx-1", 100))

	mustApply(t, m, lifecycle.CancellationRequested{Reason: "changed my mind"})
	if got := m.State().Status; got != domain.TicketWaiting4Refund {
		t.Fatalf("after cancel request: status %q, want waiting4Refund", got)
	}

	out := mustApply(t, m, refund("rf-1", 100))
	st := m.State()
	if st.Status != domain.TicketCancelled {
		t.Fatalf("after refund: status %q, want cancelled", st.Status)
	}

	refunded, ok := out.Routed[0].Event.(lifecycle.TicketRefunded)
	if !ok || !refunded.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after refund: routed %+v, want TicketRefunded amount 100", out.Routed[0])
	}
}

func TestFreeTicketSkipsPayment(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 0, stubView{status: domain.ShowStarted, ok: true})

	out := mustApply(t, m, lifecycle.TicketCreated{})
	if got := m.State().Status; got != domain.TicketReservedFree {
		t.Fatalf("free ticket after creation: status %q, want reserved", got)
	}
	if len(out.Effects) != 0 || len(out.Timers) != 0 {
		t.Fatalf("free ticket produced effects %v timers %v, want none", out.Effects, out.Timers)
	}

	mustApply(t, m, lifecycle.ShowJoined{})
	if got := m.State().Status; got != domain.TicketRedeemed {
		t.Fatalf("free ticket after join: status %q, want redeemed", got)
	}
}

func TestJoinRequiresLiveShow(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, stubView{status: domain.ShowBoxOfficeOpen, ok: true})
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	mustApply(t, m, payment("tx-1", 100))

	if _, err := m.Apply(time.Now().UTC(), lifecycle.ShowJoined{}); !errors.Is(err, lifecycle.ErrNothingToDo) {
		t.Fatalf("join before the show starts: err %v, want ErrNothingToDo", err)
	}
	if got := m.State().Status; got != domain.TicketWaiting4Show {
		t.Fatalf("failed join mutated status to %q", got)
	}
}

func TestMissedShowAndEscrowTimeout(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
	mustApply(t, m, payment("tx-1", 100))

	mustApply(t, m, lifecycle.ShowEnded{})
	st := m.State()
	if st.Status != domain.TicketMissedShow {
		t.Fatalf("unredeemed ticket after show end: status %q, want missedShow", st.Status)
	}
	if st.Redemption != nil {
		t.Fatal("missed show must not carry a redemption record")
	}

	mustApply(t, m, lifecycle.EscrowPeriodElapsed{})
	if got := m.State().Status; got != domain.TicketFinalized {
		t.Fatalf("after escrow timeout: status %q, want finalized", got)
	}
}

func TestDisputeDecisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		decision   domain.DisputeDecision
		approved   int64
		wantStatus domain.TicketStatus
		wantRefund int64
	}{
		{
			name:       "no refund finalizes immediately",
			decision:   domain.DecisionNoRefund,
			wantStatus: domain.TicketFinalized,
		},
		{
			name:       "full refund approves everything captured",
			decision:   domain.DecisionFullRefund,
			wantStatus: domain.TicketWaiting4DisputeRefund,
			wantRefund: 100,
		},
		{
			name:       "partial refund approves the decided amount",
			decision:   domain.DecisionPartialRefund,
			approved:   30,
			wantStatus: domain.TicketWaiting4DisputeRefund,
			wantRefund: 30,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMachine(t, 100, stubView{status: domain.ShowStarted, ok: true})
			mustApply(t, m, lifecycle.TicketCreated{})
			mustApply(t, m, lifecycle.InvoiceReceived{InvoiceID: "inv-1"})
			mustApply(t, m, payment("tx-1", 100))
			mustApply(t, m, lifecycle.ShowJoined{})
			mustApply(t, m, lifecycle.ShowEnded{})

			out := mustApply(t, m, lifecycle.DisputeInitiated{Reason: "no show", Explanation: "stream never started"})
			if got := m.State().Status; got != domain.TicketWaiting4Decision {
				t.Fatalf("after dispute: status %q, want waiting4Decision", got)
			}
			if _, ok := out.Routed[0].Event.(lifecycle.TicketDisputed); !ok {
				t.Fatalf("after dispute: routed %T, want TicketDisputed", out.Routed[0].Event)
			}

			out = mustApply(t, m, lifecycle.DisputeDecided{
				Decision:       tt.decision,
				ApprovedRefund: decimal.NewFromInt(tt.approved),
			})

			st := m.State()
			if st.Status != tt.wantStatus {
				t.Fatalf("after decision: status %q, want %q", st.Status, tt.wantStatus)
			}

			if tt.wantRefund == 0 {
				return
			}

			if st.Refund == nil || !st.Refund.ApprovedAmount.Equal(decimal.NewFromInt(tt.wantRefund)) {
				t.Fatalf("refund record %+v, want approved %d", st.Refund, tt.wantRefund)
			}

			payout, ok := out.Effects[0].(lifecycle.CreateRefundPayout)
			if !ok || !payout.Amount.Equal(decimal.NewFromInt(tt.wantRefund)) {
				t.Fatalf("effect %+v, want CreateRefundPayout of %d", out.Effects[0], tt.wantRefund)
			}

			// The dispute refund settles into finalized, not cancelled.
			out = mustApply(t, m, refund("rf-1", tt.wantRefund))
			st = m.State()
			if st.Status != domain.TicketFinalized {
				t.Fatalf("after dispute refund: status %q, want finalized", st.Status)
			}
			if _, ok := out.Routed[0].Event.(lifecycle.TicketRefunded); !ok {
				t.Fatalf("after dispute refund: routed %T, want TicketRefunded", out.Routed[0].Event)
			}
		})
	}
}

func TestTerminalTicketRejectsEverything(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.ReservationTimedOut{})

	events := []lifecycle.Event{
		lifecycle.TicketCreated{},
		payment("tx-9", 100),
		lifecycle.ShowJoined{},
		lifecycle.ShowEnded{},
		lifecycle.CancellationRequested{},
	}
	for _, ev := range events {
		if _, err := m.Apply(time.Now().UTC(), ev); !errors.Is(err, lifecycle.ErrInvalidTransition) {
			t.Fatalf("%s on cancelled ticket: err %v, want ErrInvalidTransition", ev.EventKind(), err)
		}
	}
}

func TestReservationRejectedCancelsWithoutRelease(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 100, nil)
	mustApply(t, m, lifecycle.TicketCreated{})

	out := mustApply(t, m, lifecycle.ReservationRejected{})
	st := m.State()
	if st.Status != domain.TicketCancelled || st.Active {
		t.Fatalf("after rejection: status %q active %v, want cancelled/inactive", st.Status, st.Active)
	}

	// The show never counted this seat, so nothing may be released back.
	if len(out.Routed) != 0 {
		t.Fatalf("rejection routed %d events, want none", len(out.Routed))
	}

	if _, err := m.Apply(time.Now().UTC(), payment("tx-1", 100)); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("payment on rejected ticket: err %v, want ErrInvalidTransition", err)
	}
}

func TestDisputeWithNothingCapturedFinalizes(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, 0, stubView{status: domain.ShowStarted, ok: true})
	mustApply(t, m, lifecycle.TicketCreated{})
	mustApply(t, m, lifecycle.ShowEnded{})
	mustApply(t, m, lifecycle.DisputeInitiated{Reason: "no show", Explanation: "stream never started"})

	out := mustApply(t, m, lifecycle.DisputeDecided{Decision: domain.DecisionFullRefund})
	st := m.State()
	if st.Status != domain.TicketFinalized {
		t.Fatalf("zero-capture full refund: status %q, want finalized with no payout to wait for", st.Status)
	}
	if len(out.Effects) != 0 {
		t.Fatalf("zero-capture full refund queued %d effects, want none", len(out.Effects))
	}
}
