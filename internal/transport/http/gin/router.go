package httpgin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/domain"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/boxoffice"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/showtime"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/treasury"
)

func NewRouter(
	svcs *service.Services,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Customer API
	r.POST("/shows/:id/tickets", handleReserveTicket(svcs))
	r.GET("/shows/:id", handleGetShow(svcs))
	r.GET("/shows/:id/availability", handleShowAvailability(svcs))
	r.GET("/shows/:id/events", handleShowEvents(svcs))

	r.GET("/tickets/:id", handleGetTicket(svcs))
	r.POST("/tickets/:id/cancel", handleCancelTicket(svcs))
	r.POST("/tickets/:id/join", handleJoinShow(svcs))
	r.POST("/tickets/:id/leave", handleLeaveShow(svcs))
	r.POST("/tickets/:id/feedback", handleFeedback(svcs))
	r.POST("/tickets/:id/dispute", handleOpenDispute(svcs))
	r.GET("/tickets/:id/events", handleTicketEvents(svcs))

	// Operator API
	// TODO: add operator auth middleware once the admin UI lands
	operator := r.Group("/operator")
	{
		operator.POST("/shows", handleCreateShow(svcs))
		operator.POST("/shows/:id/start", handleShowAction(svcs, actionStart))
		operator.POST("/shows/:id/stop", handleShowAction(svcs, actionStop))
		operator.POST("/shows/:id/end", handleShowAction(svcs, actionEnd))
		operator.POST("/shows/:id/finalize", handleShowAction(svcs, actionFinalize))
		operator.POST("/shows/:id/cancel", handleCancelShow(svcs))
		operator.POST("/tickets/:id/dispute/decision", handleDecideDispute(svcs))
	}

	// Wallet API
	r.POST("/wallets", handleCreateWallet(svcs))
	r.GET("/wallets/:id", handleGetWallet(svcs))
	r.POST("/wallets/:id/payouts", handleRequestPayout(svcs))
	r.GET("/wallets/:id/events", handleWalletEvents(svcs))

	// Payment gateway callbacks
	webhooks := r.Group("/webhooks/payment")
	{
		webhooks.POST("/invoice", handleInvoiceWebhook(svcs))
		webhooks.POST("/initiated", handlePaymentInitiatedWebhook(svcs))
		webhooks.POST("/received", handlePaymentReceivedWebhook(svcs))
		webhooks.POST("/refunded", handleRefundReceivedWebhook(svcs))
		webhooks.POST("/payout", handlePayoutWebhook(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Schedule a show
// @Param    req body  CreateShowRequest true "payload"
// @Success  201 {object} CreateShowResponse
// @Failure  400 {object} ErrorResponse
// @Router   /operator/shows [post]
func handleCreateShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateShowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		creator, err := uuid.Parse(req.CreatorWallet)
		if err != nil {
			badRequest(c, "invalid creator_wallet")
			return
		}
		agent, err := uuid.Parse(req.AgentWallet)
		if err != nil {
			badRequest(c, "invalid agent_wallet")
			return
		}

		var startsAt time.Time
		if req.StartsAt != "" {
			startsAt, err = time.Parse(time.RFC3339, req.StartsAt)
			if err != nil {
				badRequest(c, "invalid starts_at (RFC3339)")
				return
			}
		}

		sh, st, err := svcs.Showtime.CreateShow(c.Request.Context(), domain.Show{
			CreatorWallet: creator,
			AgentWallet:   agent,
			Name:          req.Name,
			Capacity:      req.Capacity,
			Price:         req.Price,
			Currency:      req.Currency,
			StartsAt:      startsAt,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateShowResponse{ShowID: sh.ID.String(), State: st})
	}
}

// @Summary  Get show snapshot
// @Param    id  path  string  true  "Show ID (uuid)"
// @Success  200 {object} ShowResponse
// @Failure  404 {object} ErrorResponse
// @Router   /shows/{id} [get]
func handleGetShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		sh, st, err := svcs.Showtime.GetShow(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		// ETag + short Cache-Control: snapshots change on every transition
		writeJSONWithCache(c, http.StatusOK, ShowResponse{Show: sh, State: st}, "public, max-age=5", true)
	}
}

// @Summary  Box office counters
// @Param    id  path  string  true  "Show ID (uuid)"
// @Success  200 {object} showtime.Availability
// @Failure  404 {object} ErrorResponse
// @Router   /shows/{id}/availability [get]
func handleShowAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		a, err := svcs.Showtime.GetAvailability(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=5", true)
	}
}

// @Summary  Reserve a ticket (idempotent)
// @Param    id  path  string  true  "Show ID (uuid)"
// @Param    req body  ReserveTicketRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} ReserveTicketResponse
// @Failure  409 {object} ErrorResponse "not selling / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /shows/{id}/tickets [post]
func handleReserveTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req ReserveTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		rlKey := "ip:" + c.ClientIP()

		ticketID, err := svcs.BoxOffice.Reserve(
			c.Request.Context(),
			showID,
			req.CustomerName,
			idemKey,
			rlKey,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		if idemKey != "" {
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, ReserveTicketResponse{TicketID: ticketID.String()})
	}
}

// @Summary  Get ticket snapshot
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Success  200 {object} TicketResponse
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id} [get]
func handleGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		t, st, err := svcs.BoxOffice.GetTicket(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, TicketResponse{Ticket: t, State: st}, "private, max-age=5", true)
	}
}

// @Summary  Cancel ticket
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Param    req body  CancelRequest false "payload"
// @Success  202
// @Router   /tickets/{id}/cancel [post]
func handleCancelTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req CancelRequest
		_ = c.ShouldBindJSON(&req)

		if err := svcs.BoxOffice.CancelTicket(c.Request.Context(), id, req.Reason); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

// @Summary  Join the show
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Success  200
// @Failure  409 {object} ErrorResponse "show not live or ticket not watchable"
// @Router   /tickets/{id}/join [post]
func handleJoinShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := svcs.BoxOffice.JoinShow(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusOK)
	}
}

func handleLeaveShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := svcs.BoxOffice.LeaveShow(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusOK)
	}
}

// @Summary  Submit feedback (releases escrow early)
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Param    req body  FeedbackRequest true "payload"
// @Success  200
// @Router   /tickets/{id}/feedback [post]
func handleFeedback(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.BoxOffice.SubmitFeedback(c.Request.Context(), id, req.Rating, req.Review); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusOK)
	}
}

// @Summary  Open a dispute
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Param    req body  DisputeRequest true "payload"
// @Success  202
// @Router   /tickets/{id}/dispute [post]
func handleOpenDispute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req DisputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.BoxOffice.OpenDispute(c.Request.Context(), id, req.Reason, req.Explanation); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

// @Summary  Decide a dispute
// @Param    id  path  string  true  "Ticket ID (uuid)"
// @Param    req body  DisputeDecisionRequest true "payload"
// @Success  202
// @Router   /operator/tickets/{id}/dispute/decision [post]
func handleDecideDispute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req DisputeDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		err := svcs.BoxOffice.DecideDispute(
			c.Request.Context(),
			id,
			domain.DisputeDecision(req.Decision),
			req.ApprovedRefund,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

type showAction int

const (
	actionStart showAction = iota
	actionStop
	actionEnd
	actionFinalize
)

// @Summary  Drive the show runtime (start/stop/end/finalize)
// @Param    id  path  string  true  "Show ID (uuid)"
// @Success  202
// @Failure  409 {object} ErrorResponse
// @Router   /operator/shows/{id}/start [post]
func handleShowAction(svcs *service.Services, action showAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		ctx := c.Request.Context()

		var err error
		switch action {
		case actionStart:
			err = svcs.Showtime.StartShow(ctx, id)
		case actionStop:
			err = svcs.Showtime.StopShow(ctx, id)
		case actionEnd:
			err = svcs.Showtime.EndShow(ctx, id)
		case actionFinalize:
			err = svcs.Showtime.Finalize(ctx, id)
		}
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

// @Summary  Cancel show
// @Param    id  path  string  true  "Show ID (uuid)"
// @Param    req body  CancelRequest false "payload"
// @Success  202
// @Router   /operator/shows/{id}/cancel [post]
func handleCancelShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req CancelRequest
		_ = c.ShouldBindJSON(&req)

		if err := svcs.Showtime.RequestCancellation(c.Request.Context(), id, req.Reason); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

// @Summary  Open a wallet
// @Param    req body  CreateWalletRequest false "payload"
// @Success  201 {object} CreateWalletResponse
// @Router   /wallets [post]
func handleCreateWallet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWalletRequest
		_ = c.ShouldBindJSON(&req)

		var id uuid.UUID
		if req.WalletID != "" {
			var err error
			id, err = uuid.Parse(req.WalletID)
			if err != nil {
				badRequest(c, "invalid wallet_id")
				return
			}
		} else {
			id = uuid.New()
		}

		st, err := svcs.Treasury.CreateWallet(c.Request.Context(), id, req.Currency)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateWalletResponse{WalletID: id.String(), State: st})
	}
}

// @Summary  Get wallet balances
// @Param    id  path  string  true  "Wallet ID (uuid)"
// @Success  200 {object} WalletResponse
// @Router   /wallets/{id} [get]
func handleGetWallet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		w, st, err := svcs.Treasury.GetWallet(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WalletResponse{Wallet: w, State: st})
	}
}

// @Summary  Request a payout
// @Param    id  path  string  true  "Wallet ID (uuid)"
// @Param    req body  RequestPayoutRequest true "payload"
// @Success  202 {object} RequestPayoutResponse
// @Failure  409 {object} ErrorResponse "insufficient funds / payout in progress"
// @Router   /wallets/{id}/payouts [post]
func handleRequestPayout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req RequestPayoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		payoutID, err := svcs.Treasury.RequestPayout(c.Request.Context(), id, req.Amount, req.Destination)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusAccepted, RequestPayoutResponse{PayoutID: payoutID.String()})
	}
}

// --- Audit trails ---

func handleShowEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		evs, err := svcs.Showtime.AuditTrail(c.Request.Context(), id, parseIntDefault(c.Query("limit"), 100))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, evs)
	}
}

func handleTicketEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		evs, err := svcs.BoxOffice.AuditTrail(c.Request.Context(), id, parseIntDefault(c.Query("limit"), 100))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, evs)
	}
}

func handleWalletEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		evs, err := svcs.Treasury.AuditTrail(c.Request.Context(), id, parseIntDefault(c.Query("limit"), 100))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, evs)
	}
}

// --- Webhooks ---

// Gateway callbacks always answer 200 once accepted for processing; the
// machines decide what, if anything, changes. A 4xx is returned only for
// payloads the gateway should never retry.

// @Summary  Invoice created callback
// @Param    req body  InvoiceWebhook true "payload"
// @Success  200
// @Router   /webhooks/payment/invoice [post]
func handleInvoiceWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvoiceWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			badRequest(c, "invalid ticket_id")
			return
		}

		err = svcs.BoxOffice.InvoiceCreated(c.Request.Context(), ticketID, req.InvoiceID, req.PaymentAddress)
		respondWebhook(c, err)
	}
}

func handlePaymentInitiatedWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentInitiatedWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			badRequest(c, "invalid ticket_id")
			return
		}

		err = svcs.BoxOffice.PaymentInitiated(c.Request.Context(), ticketID, req.Address)
		respondWebhook(c, err)
	}
}

// @Summary  Payment received callback
// @Param    req body  PaymentWebhook true "payload"
// @Success  200
// @Router   /webhooks/payment/received [post]
func handlePaymentReceivedWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			badRequest(c, "invalid ticket_id")
			return
		}

		err = svcs.BoxOffice.PaymentReceived(c.Request.Context(), ticketID, req.Transaction.Domain())
		respondWebhook(c, err)
	}
}

func handleRefundReceivedWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			badRequest(c, "invalid ticket_id")
			return
		}

		err = svcs.BoxOffice.RefundReceived(c.Request.Context(), ticketID, req.Transaction.Domain())
		respondWebhook(c, err)
	}
}

// @Summary  Payout status callback
// @Param    req body  PayoutWebhook true "payload"
// @Success  200
// @Router   /webhooks/payment/payout [post]
func handlePayoutWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayoutWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		walletID, err := uuid.Parse(req.WalletID)
		if err != nil {
			badRequest(c, "invalid wallet_id")
			return
		}
		payoutID, err := uuid.Parse(req.PayoutID)
		if err != nil {
			badRequest(c, "invalid payout_id")
			return
		}

		ctx := c.Request.Context()

		switch req.Status {
		case "sent":
			err = svcs.Treasury.PayoutSent(ctx, walletID, payoutID, req.TxID)
		case "complete":
			err = svcs.Treasury.PayoutComplete(ctx, walletID, payoutID)
		case "failed":
			err = svcs.Treasury.PayoutFailed(ctx, walletID, payoutID)
		case "cancelled":
			err = svcs.Treasury.PayoutCancelled(ctx, walletID, payoutID)
		default:
			badRequest(c, "unknown payout status")
			return
		}

		respondWebhook(c, err)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondWebhook: unknown entities and illegal transitions still return 200
// so the gateway stops retrying; the event is already recorded or discarded.
func respondWebhook(c *gin.Context, err error) {
	switch {
	case err == nil,
		errors.Is(err, boxoffice.ErrTicketNotFound),
		errors.Is(err, boxoffice.ErrBadTransition),
		errors.Is(err, treasury.ErrWalletNotFound):
		c.Status(http.StatusOK)
	default:
		respondErr(c, err)
	}
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// boxoffice service
	case errors.Is(err, boxoffice.ErrShowNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "show not found"})
	case errors.Is(err, boxoffice.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, boxoffice.ErrNotSelling):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "show is not selling tickets"})
	case errors.Is(err, boxoffice.ErrInProgress):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
	case errors.Is(err, boxoffice.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, boxoffice.ErrBadTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "action not allowed in current state"})
	case errors.Is(err, boxoffice.ErrBadFeedback):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "rating must be between 1 and 5"})

	// showtime service
	case errors.Is(err, showtime.ErrShowNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "show not found"})
	case errors.Is(err, showtime.ErrBadShow):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid show definition"})
	case errors.Is(err, showtime.ErrBadTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "action not allowed in current state"})

	// treasury service
	case errors.Is(err, treasury.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "wallet not found"})
	case errors.Is(err, treasury.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient available balance"})
	case errors.Is(err, treasury.ErrWalletBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "payout already in progress"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
