// Package wallet implements the payee balance machine: earnings postings and
// the payout ledger.
package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

var hundred = decimal.NewFromInt(100)

// Machine owns one wallet's balance lifecycle. Not safe for concurrent use;
// the actor runtime delivers events one at a time.
type Machine struct {
	wallet domain.Wallet
	st     domain.WalletState
}

func New(wallet domain.Wallet, st domain.WalletState) *Machine {
	return &Machine{wallet: wallet, st: st}
}

func (m *Machine) Wallet() domain.Wallet { return m.wallet }

// State returns a copy of the current snapshot.
func (m *Machine) State() domain.WalletState { return m.st }

// Restore puts back a previous snapshot after a failed persist.
func (m *Machine) Restore(st domain.WalletState) { m.st = st }

// Wallets are never terminal; they live as long as their owner.
func (m *Machine) Terminal() bool { return false }

// Apply runs one event against the current state. Payout events referencing
// an entry that is not in the expected status are invariant violations, not
// silent no-ops: the ledger must never be guessed at.
func (m *Machine) Apply(now time.Time, ev lifecycle.Event) (lifecycle.Outcome, error) {
	out := lifecycle.Outcome{Audit: ev.EventKind()}

	var err error

	switch e := ev.(type) {
	case lifecycle.EarningsPosted:
		err = m.earningsPosted(now, &out, e)
	case lifecycle.PayoutRequested:
		err = m.payoutRequested(now, &out, e)
	case lifecycle.PayoutSent:
		err = m.payoutSent(now, &out, e)
	case lifecycle.PayoutComplete:
		err = m.payoutComplete(now, e)
	case lifecycle.PayoutFailed:
		err = m.payoutAborted(now, e.PayoutID, domain.PayoutFailed)
	case lifecycle.PayoutCancelled:
		err = m.payoutAborted(now, e.PayoutID, domain.PayoutCancelled)
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

// earningsPosted credits showRevenue × share/100. Idempotent per show: a
// second posting for the same show id is a no-op.
func (m *Machine) earningsPosted(now time.Time, out *lifecycle.Outcome, e lifecycle.EarningsPosted) error {
	if m.st.HasEarningFor(e.ShowID) {
		return lifecycle.ErrNothingToDo
	}

	amount := e.Revenue.Mul(e.SharePercent).Div(hundred)

	m.st.Earnings = append(m.st.Earnings, domain.Earning{
		ShowID:       e.ShowID,
		Amount:       amount,
		SharePercent: e.SharePercent,
		PostedAt:     now,
	})
	m.st.Balance = m.st.Balance.Add(amount)
	m.st.AvailableBalance = m.st.AvailableBalance.Add(amount)

	return nil
}

// payoutRequested moves the amount from available to on-hold and opens a
// pending ledger entry.
func (m *Machine) payoutRequested(now time.Time, out *lifecycle.Outcome, e lifecycle.PayoutRequested) error {
	if m.st.Status != domain.WalletAvailable {
		return lifecycle.ErrInvalidTransition
	}

	if e.Amount.Sign() <= 0 || e.Amount.Cmp(m.st.AvailableBalance) > 0 {
		return lifecycle.ErrNothingToDo
	}

	m.st.AvailableBalance = m.st.AvailableBalance.Sub(e.Amount)
	m.st.OnHoldBalance = m.st.OnHoldBalance.Add(e.Amount)
	m.st.Payouts = append(m.st.Payouts, domain.Payout{
		ID:          e.PayoutID,
		Amount:      e.Amount,
		Destination: e.Destination,
		Status:      domain.PayoutPending,
		RequestedAt: now,
	})
	m.st.Status = domain.WalletPayoutInProgress

	out.Queue(lifecycle.CreatePayout{
		WalletID:    m.wallet.ID,
		PayoutID:    e.PayoutID,
		Amount:      e.Amount,
		Currency:    m.wallet.Currency,
		Destination: e.Destination,
	})

	return nil
}

// payoutSent turns the hold into a realized debit against the balance.
func (m *Machine) payoutSent(now time.Time, out *lifecycle.Outcome, e lifecycle.PayoutSent) error {
	i := m.st.FindPayout(e.PayoutID)
	if i < 0 || m.st.Payouts[i].Status != domain.PayoutPending {
		return lifecycle.Invariant("wallet.payoutSent", "no pending payout %s", e.PayoutID)
	}

	p := &m.st.Payouts[i]
	p.Status = domain.PayoutSent
	p.TxID = e.TxID

	m.st.OnHoldBalance = m.st.OnHoldBalance.Sub(p.Amount)
	m.st.Balance = m.st.Balance.Sub(p.Amount)
	m.st.Status = domain.WalletAvailable

	out.TransactionRef = e.TxID

	return nil
}

// payoutComplete only flips the entry's status; the balance was already
// debited at sent.
func (m *Machine) payoutComplete(now time.Time, e lifecycle.PayoutComplete) error {
	i := m.st.FindPayout(e.PayoutID)
	if i < 0 || m.st.Payouts[i].Status != domain.PayoutSent {
		return lifecycle.Invariant("wallet.payoutComplete", "no sent payout %s", e.PayoutID)
	}

	resolved := now
	m.st.Payouts[i].Status = domain.PayoutComplete
	m.st.Payouts[i].ResolvedAt = &resolved

	return nil
}

// payoutAborted releases a pending hold back to the available balance.
func (m *Machine) payoutAborted(now time.Time, payoutID uuid.UUID, status domain.PayoutStatus) error {
	i := m.st.FindPayout(payoutID)
	if i < 0 || m.st.Payouts[i].Status != domain.PayoutPending {
		return lifecycle.Invariant("wallet.payoutAborted", "no pending payout %s", payoutID)
	}

	p := &m.st.Payouts[i]
	resolved := now
	p.Status = status
	p.ResolvedAt = &resolved

	m.st.OnHoldBalance = m.st.OnHoldBalance.Sub(p.Amount)
	m.st.AvailableBalance = m.st.AvailableBalance.Add(p.Amount)
	m.st.Status = domain.WalletAvailable

	return nil
}
