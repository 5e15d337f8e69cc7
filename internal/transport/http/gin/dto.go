package httpgin

import (
	"github.com/shopspring/decimal"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
)

type CreateShowRequest struct {
	CreatorWallet string          `json:"creator_wallet" binding:"required,uuid"`
	AgentWallet   string          `json:"agent_wallet" binding:"required,uuid"`
	Name          string          `json:"name" binding:"required"`
	Capacity      int             `json:"capacity" binding:"required,gt=0"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StartsAt      string          `json:"starts_at"`
}

type CreateShowResponse struct {
	ShowID string           `json:"show_id"`
	State  domain.ShowState `json:"state"`
}

type ReserveTicketRequest struct {
	CustomerName string `json:"customer_name" binding:"required"`
}

type ReserveTicketResponse struct {
	TicketID string `json:"ticket_id"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type FeedbackRequest struct {
	Rating int    `json:"rating" binding:"required,gte=1,lte=5"`
	Review string `json:"review"`
}

type DisputeRequest struct {
	Reason      string `json:"reason" binding:"required"`
	Explanation string `json:"explanation"`
}

type DisputeDecisionRequest struct {
	Decision       string          `json:"decision" binding:"required"`
	ApprovedRefund decimal.Decimal `json:"approved_refund"`
}

type CreateWalletRequest struct {
	WalletID string `json:"wallet_id"`
	Currency string `json:"currency"`
}

type CreateWalletResponse struct {
	WalletID string             `json:"wallet_id"`
	State    domain.WalletState `json:"state"`
}

type RequestPayoutRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Destination string          `json:"destination" binding:"required"`
}

type RequestPayoutResponse struct {
	PayoutID string `json:"payout_id"`
}

type TransactionInput struct {
	ID       string          `json:"id" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

type InvoiceWebhook struct {
	TicketID       string `json:"ticket_id" binding:"required,uuid"`
	InvoiceID      string `json:"invoice_id" binding:"required"`
	PaymentAddress string `json:"payment_address"`
}

type PaymentInitiatedWebhook struct {
	TicketID string `json:"ticket_id" binding:"required,uuid"`
	Address  string `json:"address"`
}

type PaymentWebhook struct {
	TicketID    string           `json:"ticket_id" binding:"required,uuid"`
	Transaction TransactionInput `json:"transaction" binding:"required"`
}

type PayoutWebhook struct {
	WalletID string `json:"wallet_id" binding:"required,uuid"`
	PayoutID string `json:"payout_id" binding:"required,uuid"`
	Status   string `json:"status" binding:"required"`
	TxID     string `json:"tx_id"`
}

type ShowResponse struct {
	Show  domain.Show      `json:"show"`
	State domain.ShowState `json:"state"`
}

type TicketResponse struct {
	Ticket domain.Ticket      `json:"ticket"`
	State  domain.TicketState `json:"state"`
}

type WalletResponse struct {
	Wallet domain.Wallet      `json:"wallet"`
	State  domain.WalletState `json:"state"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (t TransactionInput) Domain() domain.Transaction {
	rate := t.Rate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	return domain.Transaction{
		ID:       t.ID,
		Amount:   t.Amount,
		Currency: t.Currency,
		Rate:     rate,
	}
}
