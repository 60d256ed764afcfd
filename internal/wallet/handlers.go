package wallet

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"skinmarket/internal/httpx"
)

// Handler exposes the wallet surface over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance returns the caller's current balance.
// GET /wallet/balance
func (h *Handler) Balance(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	balance, err := h.svc.Balance(c.Request().Context(), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": balance})
}

// Transactions lists the caller's ledger entries, newest first.
// GET /wallet/transactions
func (h *Handler) Transactions(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	entries, err := h.svc.Transactions(c.Request().Context(), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": entries})
}

// InitDeposit starts a checkout session at the payment gateway.
// POST /wallet/deposits/init
func (h *Handler) InitDeposit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || !req.Amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
	}

	session, err := h.svc.InitDeposit(c.Request().Context(), uid, req.Amount)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":  session.ID,
		"payment_url": session.URL,
		"message":     "Deposit initialized. Complete payment at " + session.URL,
	})
}

// ConfirmDeposit settles a deposit after the user returns from checkout.
// POST /wallet/deposits/:id/confirm
func (h *Handler) ConfirmDeposit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing session id"})
	}

	if err := h.svc.ConfirmDeposit(c.Request().Context(), uid, sessionID); err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Deposit confirmed and balance updated"})
}

// Withdraw places a payout hold.
// POST /wallet/withdrawals
func (h *Handler) Withdraw(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || !req.Amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
	}

	entry, err := h.svc.Withdraw(c.Request().Context(), uid, req.Amount)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"withdrawal_id": entry.ID,
		"status":        entry.Status,
		"message":       "Withdrawal requested. Funds are on hold until the gateway settles the payout.",
	})
}

// GatewayWebhook receives asynchronous status updates from the payment
// gateway. Authenticated by a shared secret header, not a user token.
// POST /webhooks/payments
func (h *Handler) GatewayWebhook(c echo.Context) error {
	secret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if secret == "" || c.Request().Header.Get("X-Webhook-Secret") != secret {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid webhook signature"})
	}

	var req struct {
		Reference string `json:"reference"`
		Status    string `json:"status"` // paid | failed | canceled
	}
	if err := c.Bind(&req); err != nil || req.Reference == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	succeeded := req.Status == "paid"
	if err := h.svc.HandleGatewayEvent(c.Request().Context(), req.Reference, succeeded); err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "event processed"})
}
