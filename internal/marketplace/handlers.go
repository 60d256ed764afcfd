package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"skinmarket/internal/escrow"
	"skinmarket/internal/httpx"
)

// Handler exposes listings and the trade lifecycle over HTTP. All escrow
// rules live in the service; handlers only authenticate, bind and map errors.
type Handler struct {
	svc *escrow.Service
}

func NewHandler(svc *escrow.Service) *Handler {
	return &Handler{svc: svc}
}

// ListListings is the public browse endpoint.
// GET /marketplace/listings
func (h *Handler) ListListings(c echo.Context) error {
	listings, err := h.svc.ListActiveListings(c.Request().Context())
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings})
}

// CreateListing puts an item up for sale.
// POST /marketplace/listings
func (h *Handler) CreateListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		AssetID  string          `json:"asset_id"`
		ItemName string          `json:"item_name"`
		ItemWear string          `json:"item_wear"`
		Price    decimal.Decimal `json:"price"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	listing, err := h.svc.CreateListing(c.Request().Context(), uid, req.AssetID, req.ItemName, req.ItemWear, req.Price)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"listing": listing,
		"message": "Listing created successfully.",
	})
}

// Purchase buys a listing: debits the buyer and opens the escrow trade.
// POST /marketplace/listings/:id/purchase
func (h *Handler) Purchase(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	listingID := c.Param("id")
	if listingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing listing id"})
	}

	trade, err := h.svc.Purchase(c.Request().Context(), uid, listingID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"trade_id": trade.ID,
		"message":  "Purchase successful! Please wait for the seller to send you a trade offer.",
	})
}

// ListTrades returns the caller's trades as buyer or seller.
// GET /marketplace/trades
func (h *Handler) ListTrades(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trades, err := h.svc.TradesForUser(c.Request().Context(), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trades": trades})
}

// GetTrade returns one trade, participants only.
// GET /marketplace/trades/:id
func (h *Handler) GetTrade(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trade, err := h.svc.TradeForUser(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trade": trade})
}

// TradeOffer hands the seller the buyer's trade link so they can start the
// hand-off on the trading platform.
// POST /marketplace/trades/:id/offer
func (h *Handler) TradeOffer(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	token, err := h.svc.TradeOffer(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trade_link": token})
}

// MarkAsSent records the hand-off as sent and starts the buyer's 24h window.
// POST /marketplace/trades/:id/sent
func (h *Handler) MarkAsSent(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trade, err := h.svc.MarkAsSent(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":   trade,
		"message": "Trade offer has been marked as sent. The buyer has 24 hours to confirm receipt.",
	})
}

// ConfirmReceipt completes the trade and releases funds to the seller.
// POST /marketplace/trades/:id/confirm
func (h *Handler) ConfirmReceipt(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trade, err := h.svc.ConfirmReceipt(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":   trade,
		"message": "Trade has been confirmed and completed successfully.",
	})
}

// Dispute freezes the trade for arbitration.
// POST /marketplace/trades/:id/dispute
func (h *Handler) Dispute(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: reason required"})
	}

	trade, err := h.svc.Dispute(c.Request().Context(), c.Param("id"), uid, req.Reason)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":   trade,
		"message": "Trade has been marked as disputed. Our support team will review the case.",
	})
}

// Cancel terminates a not-yet-settled trade and refunds the buyer's hold.
// POST /marketplace/trades/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trade, err := h.svc.Cancel(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":   trade,
		"message": "Trade cancelled and buyer refunded.",
	})
}
