package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAppliedByStatusAndType(t *testing.T) {
	cases := []struct {
		name    string
		entry   Entry
		applied bool
	}{
		{"completed deposit", Entry{Type: TypeDeposit, Status: StatusCompleted, Amount: dec("50")}, true},
		{"pending deposit", Entry{Type: TypeDeposit, Status: StatusPending, Amount: dec("50")}, false},
		{"failed deposit", Entry{Type: TypeDeposit, Status: StatusFailed, Amount: dec("50")}, false},
		{"pending withdrawal hold", Entry{Type: TypeWithdrawal, Status: StatusPending, Amount: dec("-20")}, true},
		{"completed withdrawal", Entry{Type: TypeWithdrawal, Status: StatusCompleted, Amount: dec("-20")}, true},
		{"failed withdrawal", Entry{Type: TypeWithdrawal, Status: StatusFailed, Amount: dec("-20")}, false},
		{"completed purchase", Entry{Type: TypePurchase, Status: StatusCompleted, Amount: dec("-80")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.applied, tc.entry.Applied())
		})
	}
}

func TestExpectedBalanceReplaysOnlyAppliedEntries(t *testing.T) {
	entries := []Entry{
		{Type: TypeDeposit, Status: StatusCompleted, Amount: dec("100")},
		{Type: TypePurchase, Status: StatusCompleted, Amount: dec("-80")},
		{Type: TypeDeposit, Status: StatusPending, Amount: dec("500")},    // not yet paid
		{Type: TypeWithdrawal, Status: StatusPending, Amount: dec("-10")}, // hold counts
		{Type: TypeWithdrawal, Status: StatusFailed, Amount: dec("-999")}, // reversed, gone
	}
	assert.True(t, dec("10").Equal(ExpectedBalance(entries)),
		"got %s", ExpectedBalance(entries))
}

func TestExpectedBalanceEmptyLedgerIsZero(t *testing.T) {
	assert.True(t, ExpectedBalance(nil).IsZero())
}

func TestCreditsForReference(t *testing.T) {
	entries := []Entry{
		{ID: "debit", Reference: "trade-1", Status: StatusCompleted, Amount: dec("-80")},
		{ID: "credit", Reference: "trade-1", Status: StatusCompleted, Amount: dec("80")},
		{ID: "other", Reference: "trade-2", Status: StatusCompleted, Amount: dec("80")},
		{ID: "pending", Reference: "trade-1", Status: StatusPending, Amount: dec("80")},
	}

	credits := CreditsForReference(entries, "trade-1")
	if assert.Len(t, credits, 1) {
		assert.Equal(t, "credit", credits[0].ID)
	}
}
