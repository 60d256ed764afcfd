package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTransactRollsBackOnError(t *testing.T) {
	s := New()
	s.PutAccount(&escrow.Account{ID: "a1", Balance: dec("100")})

	boom := errors.New("boom")
	err := s.Transact(context.Background(), func(tx escrow.Tx) error {
		entry := &ledger.Entry{ID: "e1", AccountID: "a1", Amount: dec("-40"),
			Type: ledger.TypePurchase, Status: ledger.StatusCompleted}
		if err := tx.ApplyEntry(context.Background(), entry, true); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("100")), "debit must not leak out of a failed transaction")

	entries, err := s.ListEntries(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNegativeBalanceRejected(t *testing.T) {
	s := New()
	s.PutAccount(&escrow.Account{ID: "a1", Balance: dec("10")})

	err := s.Transact(context.Background(), func(tx escrow.Tx) error {
		entry := &ledger.Entry{ID: "e1", AccountID: "a1", Amount: dec("-40"),
			Type: ledger.TypePurchase, Status: ledger.StatusCompleted}
		return tx.ApplyEntry(context.Background(), entry, true)
	})
	assert.ErrorIs(t, err, escrow.ErrInvariantViolation)
}

func TestSettleEntryEffects(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, entryType ledger.EntryType, amount string, applyBalance bool) *Store {
		t.Helper()
		s := New()
		s.PutAccount(&escrow.Account{ID: "a1", Balance: dec("100")})
		err := s.Transact(ctx, func(tx escrow.Tx) error {
			return tx.ApplyEntry(ctx, &ledger.Entry{ID: "e1", AccountID: "a1", Amount: dec(amount),
				Type: entryType, Status: ledger.StatusPending, Reference: "ref-1"}, applyBalance)
		})
		require.NoError(t, err)
		return s
	}

	t.Run("apply credits on settle", func(t *testing.T) {
		s := seed(t, ledger.TypeDeposit, "50", false)
		err := s.Transact(ctx, func(tx escrow.Tx) error {
			e, err := tx.GetEntryByReferenceForUpdate(ctx, "ref-1")
			if err != nil {
				return err
			}
			return tx.SettleEntry(ctx, e, ledger.StatusCompleted, escrow.EffectApply)
		})
		require.NoError(t, err)

		a, _ := s.GetAccount(ctx, "a1")
		assert.True(t, a.Balance.Equal(dec("150")))
		entries, _ := s.ListEntries(ctx, "a1")
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.StatusCompleted, entries[0].Status)
	})

	t.Run("reverse returns the hold", func(t *testing.T) {
		s := seed(t, ledger.TypeWithdrawal, "-30", true)
		a, _ := s.GetAccount(ctx, "a1")
		require.True(t, a.Balance.Equal(dec("70")), "hold applied up front")

		err := s.Transact(ctx, func(tx escrow.Tx) error {
			e, err := tx.GetEntryByReferenceForUpdate(ctx, "ref-1")
			if err != nil {
				return err
			}
			return tx.SettleEntry(ctx, e, ledger.StatusFailed, escrow.EffectReverse)
		})
		require.NoError(t, err)

		a, _ = s.GetAccount(ctx, "a1")
		assert.True(t, a.Balance.Equal(dec("100")))
	})

	t.Run("none leaves balance alone", func(t *testing.T) {
		s := seed(t, ledger.TypeWithdrawal, "-30", true)
		err := s.Transact(ctx, func(tx escrow.Tx) error {
			e, err := tx.GetEntryByReferenceForUpdate(ctx, "ref-1")
			if err != nil {
				return err
			}
			return tx.SettleEntry(ctx, e, ledger.StatusCompleted, escrow.EffectNone)
		})
		require.NoError(t, err)

		a, _ := s.GetAccount(ctx, "a1")
		assert.True(t, a.Balance.Equal(dec("70")))
	})
}

func TestListOverdue(t *testing.T) {
	s := New()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	put := func(id string, status escrow.TradeStatus, deadline *time.Time) {
		err := s.Transact(context.Background(), func(tx escrow.Tx) error {
			return tx.CreateTrade(context.Background(), &escrow.Trade{
				ID: id, Status: status, ResponseDeadline: deadline,
			})
		})
		require.NoError(t, err)
	}
	put("overdue", escrow.StatusWaitingForBuyerConfirmation, &past)
	put("not-yet", escrow.StatusWaitingForBuyerConfirmation, &future)
	put("terminal", escrow.StatusCompleted, &past)
	put("unsent", escrow.StatusWaitingForSeller, nil)

	ids, err := s.ListOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue"}, ids)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	s.PutAccount(&escrow.Account{ID: "a1", Balance: dec("100")})

	a, err := s.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	a.Balance = dec("0")

	again, err := s.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(dec("100")), "caller mutation must not reach the store")
}
