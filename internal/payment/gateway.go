// Package payment is the card-gateway boundary. The escrow core only sees
// this contract; no gateway call ever happens inside a ledger transaction.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Session is a hosted checkout the user completes off-site.
type Session struct {
	ID     string
	URL    string
	Amount decimal.Decimal
}

// Gateway abstracts the payment provider. Deposit sessions and payouts are
// asynchronous: final status arrives by confirmation poll or webhook.
type Gateway interface {
	CreateDepositSession(ctx context.Context, accountID string, amount decimal.Decimal) (*Session, error)
	ConfirmDepositSession(ctx context.Context, sessionID string) (paid bool, err error)
	CreatePayout(ctx context.Context, accountID string, amount decimal.Decimal, reference string) error
}
