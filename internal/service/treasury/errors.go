package treasury

import "errors"

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("payout exceeds available balance")
	ErrPayoutNotFound    = errors.New("payout not found")
	ErrWalletBusy        = errors.New("wallet has a payout in progress")
)
