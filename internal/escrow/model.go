package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus tracks a listing through its single possible sale.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// Listing is an item offered for sale. AssetID is the unique instance id of
// the item on the external trading platform; a seller can have at most one
// active listing per asset.
type Listing struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	AssetID   string          `json:"asset_id"`
	ItemName  string          `json:"item_name"`
	ItemWear  string          `json:"item_wear,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Status    ListingStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// TradeStatus is the trade state machine. Transitions are guarded inside a
// single storage transaction keyed by trade id; see Service.
type TradeStatus string

const (
	StatusWaitingForSeller            TradeStatus = "waiting_for_seller"
	StatusWaitingForBuyerConfirmation TradeStatus = "waiting_for_buyer_confirmation"
	StatusCompleted                   TradeStatus = "completed"
	StatusDisputed                    TradeStatus = "disputed"
	StatusDisputeResolved             TradeStatus = "dispute_resolved"
	StatusCancelled                   TradeStatus = "cancelled"
	StatusExpired                     TradeStatus = "expired"
	StatusRefunded                    TradeStatus = "refunded"
)

// Terminal reports whether no transition is defined out of the status.
func (s TradeStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDisputeResolved, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// ResponseWindow is how long the buyer has to confirm or dispute after the
// seller marks the hand-off sent.
const ResponseWindow = 24 * time.Hour

// Trade holds the full escrow lifecycle of one purchase. Amount is copied
// from the listing at purchase time and never changes. DeliveryToken is a
// snapshot of the buyer's token at purchase time, so later profile edits do
// not affect an in-flight trade.
type Trade struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listing_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	AssetID       string          `json:"asset_id"`
	ItemName      string          `json:"item_name"`
	ItemWear      string          `json:"item_wear,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        TradeStatus     `json:"status"`
	StatusMessage string          `json:"status_message"`
	DeliveryToken string          `json:"delivery_token,omitempty"`

	DisputeReason     string `json:"dispute_reason,omitempty"`
	DisputeResolution string `json:"dispute_resolution,omitempty"`
	AdminNotes        string `json:"admin_notes,omitempty"`

	Refunded   bool       `json:"refunded"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	OfferSentAt      *time.Time `json:"offer_sent_at,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DisputedAt       *time.Time `json:"disputed_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
}

// buyerCanRespond reports whether the buyer may still confirm or dispute:
// the trade must be waiting on them and the response window still open.
func (t *Trade) buyerCanRespond(now time.Time) bool {
	if t.Status != StatusWaitingForBuyerConfirmation {
		return false
	}
	return t.ResponseDeadline != nil && !now.After(*t.ResponseDeadline)
}

// Account is the escrow-relevant subset of a user record. Balance is only
// ever mutated through ledger entries.
type Account struct {
	ID            string          `json:"id"`
	PlatformID    string          `json:"platform_id"`
	Balance       decimal.Decimal `json:"balance"`
	DeliveryToken string          `json:"delivery_token,omitempty"`

	Eligible             bool       `json:"eligible"`
	EligibilityCheckedAt *time.Time `json:"eligibility_checked_at,omitempty"`
}
