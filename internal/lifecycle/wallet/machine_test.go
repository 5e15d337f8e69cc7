package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	w := domain.Wallet{ID: uuid.New(), Currency: "USD"}

	return New(w, domain.NewWalletState(time.Now().UTC()))
}

func mustApply(t *testing.T, m *Machine, ev lifecycle.Event) lifecycle.Outcome {
	t.Helper()

	out, err := m.Apply(time.Now().UTC(), ev)
	if err != nil {
		t.Fatalf("apply %s: unexpected error: %v", ev.EventKind(), err)
	}

	return out
}

func checkBalanceIdentity(t *testing.T, st domain.WalletState) {
	t.Helper()

	if sum := st.AvailableBalance.Add(st.OnHoldBalance); !sum.Equal(st.Balance) {
		t.Fatalf("balance identity broken: available %s + on-hold %s != balance %s",
			st.AvailableBalance, st.OnHoldBalance, st.Balance)
	}
}

func TestEarningsPostingCreditsShare(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	showID := uuid.New()

	mustApply(t, m, lifecycle.EarningsPosted{
		ShowID:       showID,
		Revenue:      decimal.NewFromInt(200),
		SharePercent: decimal.NewFromInt(75),
	})

	st := m.State()
	if !st.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance %s, want 150 (75%% of 200)", st.Balance)
	}
	if !st.AvailableBalance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("available %s, want 150", st.AvailableBalance)
	}
	if len(st.Earnings) != 1 || st.Earnings[0].ShowID != showID {
		t.Fatalf("earnings ledger %+v, want one entry for the show", st.Earnings)
	}
	checkBalanceIdentity(t, st)
}

func TestEarningsPostingIsIdempotentPerShow(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	showID := uuid.New()

	posting := lifecycle.EarningsPosted{
		ShowID:       showID,
		Revenue:      decimal.NewFromInt(100),
		SharePercent: decimal.NewFromInt(10),
	}
	mustApply(t, m, posting)

	if _, err := m.Apply(time.Now().UTC(), posting); !errors.Is(err, lifecycle.ErrNothingToDo) {
		t.Fatalf("replayed posting: err %v, want ErrNothingToDo", err)
	}

	st := m.State()
	if len(st.Earnings) != 1 || !st.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("after replay: %d earnings balance %s, want 1 entry of 10", len(st.Earnings), st.Balance)
	}
}

func TestPayoutLifecycle(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	mustApply(t, m, lifecycle.EarningsPosted{
		ShowID:       uuid.New(),
		Revenue:      decimal.NewFromInt(100),
		SharePercent: decimal.NewFromInt(75),
	})

	payoutID := uuid.New()
	out := mustApply(t, m, lifecycle.PayoutRequested{
		PayoutID:    payoutID,
		Amount:      decimal.NewFromInt(50),
		Destination: "bc1q-destination",
	})

	st := m.State()
	if st.Status != domain.WalletPayoutInProgress {
		t.Fatalf("after request: status %q, want payoutInProgress", st.Status)
	}
	if !st.AvailableBalance.Equal(decimal.NewFromInt(25)) || !st.OnHoldBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("after request: available %s on-hold %s, want 25/50", st.AvailableBalance, st.OnHoldBalance)
	}
	checkBalanceIdentity(t, st)

	if len(out.Effects) != 1 {
		t.Fatalf("after request: %d effects, want CreatePayout", len(out.Effects))
	}
	create, ok := out.Effects[0].(lifecycle.CreatePayout)
	if !ok || create.PayoutID != payoutID || !create.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("effect %+v, want CreatePayout of 50", out.Effects[0])
	}

	// A second request while one is in flight is rejected outright.
	if _, err := m.Apply(time.Now().UTC(), lifecycle.PayoutRequested{
		PayoutID: uuid.New(),
		Amount:   decimal.NewFromInt(10),
	}); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("concurrent request: err %v, want ErrInvalidTransition", err)
	}

	out = mustApply(t, m, lifecycle.PayoutSent{PayoutID: payoutID, TxID: "tx-77"})
	st = m.State()
	if st.Status != domain.WalletAvailable {
		t.Fatalf("after sent: status %q, want available", st.Status)
	}
	if !st.Balance.Equal(decimal.NewFromInt(25)) || !st.OnHoldBalance.IsZero() {
		t.Fatalf("after sent: balance %s on-hold %s, want 25/0", st.Balance, st.OnHoldBalance)
	}
	if out.TransactionRef != "tx-77" {
		t.Fatalf("after sent: transaction ref %q, want tx-77", out.TransactionRef)
	}
	checkBalanceIdentity(t, st)

	mustApply(t, m, lifecycle.PayoutComplete{PayoutID: payoutID})
	st = m.State()
	if got := st.Payouts[0].Status; got != domain.PayoutComplete {
		t.Fatalf("after complete: payout status %q, want complete", got)
	}
	if st.Payouts[0].ResolvedAt == nil {
		t.Fatal("after complete: missing resolved timestamp")
	}
}

func TestPayoutExceedingAvailableIsNoOp(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	mustApply(t, m, lifecycle.EarningsPosted{
		ShowID:       uuid.New(),
		Revenue:      decimal.NewFromInt(100),
		SharePercent: decimal.NewFromInt(10),
	})

	_, err := m.Apply(time.Now().UTC(), lifecycle.PayoutRequested{
		PayoutID: uuid.New(),
		Amount:   decimal.NewFromInt(11),
	})
	if !errors.Is(err, lifecycle.ErrNothingToDo) {
		t.Fatalf("over-drawn request: err %v, want ErrNothingToDo", err)
	}

	st := m.State()
	if st.Status != domain.WalletAvailable || len(st.Payouts) != 0 {
		t.Fatalf("failed request mutated state: status %q payouts %d", st.Status, len(st.Payouts))
	}
}

func TestUnknownPayoutIsInvariant(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	if _, err := m.Apply(time.Now().UTC(), lifecycle.PayoutSent{PayoutID: uuid.New(), TxID: "tx-1"}); !lifecycle.IsInvariant(err) {
		t.Fatalf("sent for unknown payout: err %v, want invariant error", err)
	}
	if _, err := m.Apply(time.Now().UTC(), lifecycle.PayoutComplete{PayoutID: uuid.New()}); !lifecycle.IsInvariant(err) {
		t.Fatalf("complete for unknown payout: err %v, want invariant error", err)
	}
}

func TestFailedPayoutReleasesHold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		event      func(id uuid.UUID) lifecycle.Event
		wantStatus domain.PayoutStatus
	}{
		{
			name:       "processor failure",
			event:      func(id uuid.UUID) lifecycle.Event { return lifecycle.PayoutFailed{PayoutID: id} },
			wantStatus: domain.PayoutFailed,
		},
		{
			name:       "operator cancellation",
			event:      func(id uuid.UUID) lifecycle.Event { return lifecycle.PayoutCancelled{PayoutID: id} },
			wantStatus: domain.PayoutCancelled,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMachine(t)
			mustApply(t, m, lifecycle.EarningsPosted{
				ShowID:       uuid.New(),
				Revenue:      decimal.NewFromInt(100),
				SharePercent: decimal.NewFromInt(75),
			})

			payoutID := uuid.New()
			mustApply(t, m, lifecycle.PayoutRequested{
				PayoutID:    payoutID,
				Amount:      decimal.NewFromInt(60),
				Destination: "bc1q-destination",
			})

			mustApply(t, m, tt.event(payoutID))

			st := m.State()
			if st.Status != domain.WalletAvailable {
				t.Fatalf("after abort: status %q, want available", st.Status)
			}
			if !st.AvailableBalance.Equal(decimal.NewFromInt(75)) || !st.OnHoldBalance.IsZero() {
				t.Fatalf("after abort: available %s on-hold %s, want 75/0", st.AvailableBalance, st.OnHoldBalance)
			}
			if got := st.Payouts[0].Status; got != tt.wantStatus {
				t.Fatalf("after abort: payout status %q, want %q", got, tt.wantStatus)
			}
			checkBalanceIdentity(t, st)
		})
	}
}
