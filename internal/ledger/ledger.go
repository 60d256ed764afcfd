package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies what a ledger entry represents.
type EntryType string

const (
	TypeDeposit    EntryType = "deposit"
	TypeWithdrawal EntryType = "withdrawal"
	TypeSale       EntryType = "sale"
	TypePurchase   EntryType = "purchase"
	TypeRefund     EntryType = "refund"
)

// EntryStatus is the settlement state of an entry. Completed entries are
// immutable; a correction is always a new entry. Pending entries may settle
// to Completed or Failed exactly once.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
	StatusRefunded  EntryStatus = "refunded"
)

// Entry is one immutable balance-affecting event. Amount is signed: credits
// are positive, debits negative. Reference ties the entry to the trade or
// external payment that produced it.
type Entry struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        EntryType       `json:"type"`
	Status      EntryStatus     `json:"status"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Applied reports whether the entry currently contributes to the account
// balance. Completed entries always do. A pending withdrawal is a hold: the
// funds left the balance when the payout was requested and come back only if
// the gateway reports failure.
func (e *Entry) Applied() bool {
	if e.Status == StatusCompleted {
		return true
	}
	return e.Status == StatusPending && e.Type == TypeWithdrawal
}

// ExpectedBalance replays entries and returns the balance the account must
// hold: the sum of all applied amounts.
func ExpectedBalance(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for i := range entries {
		if entries[i].Applied() {
			sum = sum.Add(entries[i].Amount)
		}
	}
	return sum
}

// CreditsForReference returns the completed crediting entries tied to a
// reference. A terminal trade must have exactly one.
func CreditsForReference(entries []Entry, reference string) []Entry {
	var out []Entry
	for i := range entries {
		e := entries[i]
		if e.Reference == reference && e.Status == StatusCompleted && e.Amount.IsPositive() {
			out = append(out, e)
		}
	}
	return out
}
