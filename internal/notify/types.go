package notify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Task type constants
const (
	TaskTradeCreated   = "trade:created"
	TaskTradeSent      = "trade:sent"
	TaskTradeCompleted = "trade:completed"
	TaskTradeDisputed  = "trade:disputed"
	TaskTradeResolved  = "trade:resolved"
	TaskTradeExpired   = "trade:expired"
	TaskTradeCancelled = "trade:cancelled"
)

// TradePayload carries everything a handler needs to render the message
// without reading the database.
type TradePayload struct {
	TradeID  string          `json:"trade_id"`
	BuyerID  string          `json:"buyer_id"`
	SellerID string          `json:"seller_id"`
	ItemName string          `json:"item_name"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	SentAt   time.Time       `json:"sent_at"`
}
