package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"skinmarket/internal/escrow"
	"skinmarket/internal/httpx"
)

// Handler is the arbiter surface: dispute review, fund disposition and the
// manual sweep trigger. Routes are mounted behind the arbiter guard.
type Handler struct {
	svc     *escrow.Service
	sweeper *escrow.Sweeper
}

func NewHandler(svc *escrow.Service, sweeper *escrow.Sweeper) *Handler {
	return &Handler{svc: svc, sweeper: sweeper}
}

// ListDisputes returns open disputes, oldest first.
// GET /admin/disputes
func (h *Handler) ListDisputes(c echo.Context) error {
	trades, err := h.svc.ListDisputedTrades(c.Request().Context())
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"disputes": trades})
}

// GetDispute returns one disputed trade for inspection.
// GET /admin/disputes/:id
func (h *Handler) GetDispute(c echo.Context) error {
	trade, err := h.svc.DisputeDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trade": trade})
}

// ResolveDispute decides fund disposition on a disputed trade.
// POST /admin/disputes/:id/resolve
func (h *Handler) ResolveDispute(c echo.Context) error {
	arbiterID, ok := c.Get("user_id").(string)
	if !ok || arbiterID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		RefundBuyer bool   `json:"refund_buyer"`
		Resolution  string `json:"resolution"`
		Notes       string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil || req.Resolution == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: resolution required"})
	}

	trade, err := h.svc.ResolveDispute(c.Request().Context(), c.Param("id"), arbiterID,
		req.RefundBuyer, req.Resolution, req.Notes)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":   trade,
		"message": "Dispute has been resolved successfully.",
	})
}

// RunSweep triggers a deadline sweep pass outside the normal schedule.
// POST /admin/sweep/run
func (h *Handler) RunSweep(c echo.Context) error {
	expired, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": expired})
}

// AuditAccount replays an account's ledger against its stored balance.
// GET /admin/accounts/:id/audit
func (h *Handler) AuditAccount(c echo.Context) error {
	balance, expected, err := h.svc.VerifyAccount(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"balance":       balance,
		"ledger_replay": expected,
		"consistent":    true,
	})
}
