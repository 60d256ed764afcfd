package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
	"skinmarket/internal/observability"
	"skinmarket/internal/store/memory"
)

type allowAll struct{}

func (allowAll) IsEligibleToSell(ctx context.Context, accountID string) (bool, string, error) {
	return true, "", nil
}

func newTestHandler(t *testing.T) (*Handler, *memory.Store, *escrow.Service) {
	t.Helper()
	store := memory.New()
	store.PutAccount(&escrow.Account{ID: "seller", PlatformID: "765-s"})
	store.PutAccount(&escrow.Account{ID: "buyer", PlatformID: "765-b", DeliveryToken: "https://trade.example/buyer"})

	err := store.Transact(context.Background(), func(tx escrow.Tx) error {
		return tx.ApplyEntry(context.Background(), &ledger.Entry{
			ID: "seed", AccountID: "buyer", Amount: decimal.NewFromInt(100),
			Type: ledger.TypeDeposit, Status: ledger.StatusCompleted, Reference: "seed",
		}, true)
	})
	require.NoError(t, err)

	svc := escrow.NewService(store, allowAll{}, nil, observability.NewLogger("test"))
	return NewHandler(svc), store, svc
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, target, userID, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	require.NoError(t, h(c))
	return rec
}

func TestListingAndPurchaseFlow(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.CreateListing, http.MethodPost, "/marketplace/listings", "seller",
		`{"asset_id":"asset-1","item_name":"AK-47 | Redline","item_wear":"Field-Tested","price":"80"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Listing escrow.Listing `json:"listing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, h.ListListings, http.MethodGet, "/marketplace/listings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AK-47 | Redline")

	rec = doJSON(t, h.Purchase, http.MethodPost, "/marketplace/listings/x/purchase", "buyer", "",
		"id", created.Listing.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "wait for the seller")
}

func TestPurchaseErrorMapping(t *testing.T) {
	h, _, svc := newTestHandler(t)

	listing, err := svc.CreateListing(context.Background(), "seller", "asset-1", "AK-47 | Redline", "", decimal.NewFromInt(80))
	require.NoError(t, err)
	_, err = svc.Purchase(context.Background(), "buyer", listing.ID)
	require.NoError(t, err)

	t.Run("sold listing conflicts", func(t *testing.T) {
		rec := doJSON(t, h.Purchase, http.MethodPost, "/marketplace/listings/x/purchase", "buyer", "",
			"id", listing.ID)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing listing", func(t *testing.T) {
		rec := doJSON(t, h.Purchase, http.MethodPost, "/marketplace/listings/x/purchase", "buyer", "",
			"id", "nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		rec := doJSON(t, h.Purchase, http.MethodPost, "/marketplace/listings/x/purchase", "", "",
			"id", listing.ID)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTradeLifecycleOverHTTP(t *testing.T) {
	h, _, svc := newTestHandler(t)

	listing, err := svc.CreateListing(context.Background(), "seller", "asset-1", "AWP | Asiimov", "", decimal.NewFromInt(80))
	require.NoError(t, err)
	trade, err := svc.Purchase(context.Background(), "buyer", listing.ID)
	require.NoError(t, err)

	rec := doJSON(t, h.TradeOffer, http.MethodPost, "/marketplace/trades/x/offer", "seller", "", "id", trade.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trade.example/buyer")

	rec = doJSON(t, h.MarkAsSent, http.MethodPost, "/marketplace/trades/x/sent", "seller", "", "id", trade.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "24 hours")

	// buyer-only action from the seller maps to 403
	rec = doJSON(t, h.ConfirmReceipt, http.MethodPost, "/marketplace/trades/x/confirm", "seller", "", "id", trade.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h.ConfirmReceipt, http.MethodPost, "/marketplace/trades/x/confirm", "buyer", "", "id", trade.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed successfully")
}

func TestDisputeRequiresReason(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.Dispute, http.MethodPost, "/marketplace/trades/x/dispute", "buyer",
		`{"reason":""}`, "id", "t1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
