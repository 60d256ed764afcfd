package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
	"skinmarket/internal/observability"
	"skinmarket/internal/payment"
	"skinmarket/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeGateway answers deterministically and records payout requests.
type fakeGateway struct {
	sessions   int
	paid       map[string]bool
	payouts    []string
	payoutErr  error
	confirmErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{paid: make(map[string]bool)}
}

func (g *fakeGateway) CreateDepositSession(ctx context.Context, accountID string, amount decimal.Decimal) (*payment.Session, error) {
	g.sessions++
	id := fmt.Sprintf("sess-%d", g.sessions)
	return &payment.Session{ID: id, URL: "https://pay.example/" + id, Amount: amount}, nil
}

func (g *fakeGateway) ConfirmDepositSession(ctx context.Context, sessionID string) (bool, error) {
	if g.confirmErr != nil {
		return false, g.confirmErr
	}
	return g.paid[sessionID], nil
}

func (g *fakeGateway) CreatePayout(ctx context.Context, accountID string, amount decimal.Decimal, reference string) error {
	if g.payoutErr != nil {
		return g.payoutErr
	}
	g.payouts = append(g.payouts, reference)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeGateway) {
	t.Helper()
	store := memory.New()
	store.PutAccount(&escrow.Account{ID: "u1", PlatformID: "765-u1"})
	gw := newFakeGateway()
	return NewService(store, gw, observability.NewLogger("test")), store, gw
}

func balance(t *testing.T, store *memory.Store, accountID string) decimal.Decimal {
	t.Helper()
	a, err := store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func TestDepositLifecycle(t *testing.T) {
	svc, store, gw := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitDeposit(ctx, "u1", dec("50"))
	require.NoError(t, err)
	assert.True(t, balance(t, store, "u1").IsZero(), "no credit before payment")

	// user finished checkout
	gw.paid[session.ID] = true
	require.NoError(t, svc.ConfirmDeposit(ctx, "u1", session.ID))
	assert.True(t, balance(t, store, "u1").Equal(dec("50")))

	// replaying the confirmation must not credit twice
	err = svc.ConfirmDeposit(ctx, "u1", session.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	assert.True(t, balance(t, store, "u1").Equal(dec("50")))
}

func TestConfirmDepositGuards(t *testing.T) {
	svc, store, gw := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitDeposit(ctx, "u1", dec("50"))
	require.NoError(t, err)

	t.Run("unpaid session", func(t *testing.T) {
		err := svc.ConfirmDeposit(ctx, "u1", session.ID)
		assert.ErrorIs(t, err, escrow.ErrPreconditionFailed)
		assert.True(t, balance(t, store, "u1").IsZero())
	})

	t.Run("wrong owner", func(t *testing.T) {
		gw.paid[session.ID] = true
		store.PutAccount(&escrow.Account{ID: "u2"})
		err := svc.ConfirmDeposit(ctx, "u2", session.ID)
		assert.ErrorIs(t, err, escrow.ErrUnauthorized)
	})

	t.Run("gateway down", func(t *testing.T) {
		gw.confirmErr = errors.New("gateway timeout")
		err := svc.ConfirmDeposit(ctx, "u1", session.ID)
		assert.ErrorIs(t, err, escrow.ErrExternalDependency)
	})
}

func TestWithdrawPlacesHold(t *testing.T) {
	svc, store, gw := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitDeposit(ctx, "u1", dec("100"))
	require.NoError(t, err)
	gw.paid[session.ID] = true
	require.NoError(t, svc.ConfirmDeposit(ctx, "u1", session.ID))

	entry, err := svc.Withdraw(ctx, "u1", dec("30"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, entry.Status)
	assert.True(t, balance(t, store, "u1").Equal(dec("70")), "hold applies immediately")
	assert.Equal(t, []string{entry.Reference}, gw.payouts)

	// funds on hold cannot be withdrawn again
	_, err = svc.Withdraw(ctx, "u1", dec("80"))
	assert.ErrorIs(t, err, escrow.ErrPreconditionFailed)
}

func TestGatewayEventSettlesWithdrawal(t *testing.T) {
	seed := func(t *testing.T) (*Service, *memory.Store, *ledger.Entry) {
		svc, store, gw := newTestService(t)
		ctx := context.Background()
		session, err := svc.InitDeposit(ctx, "u1", dec("100"))
		require.NoError(t, err)
		gw.paid[session.ID] = true
		require.NoError(t, svc.ConfirmDeposit(ctx, "u1", session.ID))
		entry, err := svc.Withdraw(ctx, "u1", dec("30"))
		require.NoError(t, err)
		return svc, store, entry
	}

	t.Run("payout succeeded", func(t *testing.T) {
		svc, store, entry := seed(t)
		require.NoError(t, svc.HandleGatewayEvent(context.Background(), entry.Reference, true))
		assert.True(t, balance(t, store, "u1").Equal(dec("70")), "hold stays gone")

		entries, err := store.ListEntries(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ledger.ExpectedBalance(entries).Equal(dec("70")))
	})

	t.Run("payout failed reverses hold", func(t *testing.T) {
		svc, store, entry := seed(t)
		require.NoError(t, svc.HandleGatewayEvent(context.Background(), entry.Reference, false))
		assert.True(t, balance(t, store, "u1").Equal(dec("100")))

		entries, err := store.ListEntries(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ledger.ExpectedBalance(entries).Equal(dec("100")))
	})

	t.Run("duplicate event rejected", func(t *testing.T) {
		svc, store, entry := seed(t)
		require.NoError(t, svc.HandleGatewayEvent(context.Background(), entry.Reference, false))
		err := svc.HandleGatewayEvent(context.Background(), entry.Reference, false)
		assert.ErrorIs(t, err, escrow.ErrInvalidState)
		assert.True(t, balance(t, store, "u1").Equal(dec("100")), "reversal happens once")
	})
}

func TestGatewayEventSettlesDeposit(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitDeposit(ctx, "u1", dec("50"))
	require.NoError(t, err)

	t.Run("failed payment leaves no credit", func(t *testing.T) {
		require.NoError(t, svc.HandleGatewayEvent(ctx, session.ID, false))
		assert.True(t, balance(t, store, "u1").IsZero())
	})

	t.Run("unknown reference", func(t *testing.T) {
		err := svc.HandleGatewayEvent(ctx, "sess-unknown", true)
		assert.ErrorIs(t, err, escrow.ErrNotFound)
	})
}

func TestWithdrawRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Withdraw(context.Background(), "u1", dec("0"))
	assert.ErrorIs(t, err, escrow.ErrPreconditionFailed)
	_, err = svc.Withdraw(context.Background(), "u1", dec("-5"))
	assert.ErrorIs(t, err, escrow.ErrPreconditionFailed)
}
