package escrow

import (
	"context"
	"time"

	"skinmarket/internal/ledger"
)

// BalanceEffect tells the store what to do with the account balance when an
// entry settles. Applying and reversing go through the same code path as any
// other balance mutation.
type BalanceEffect int

const (
	EffectNone BalanceEffect = iota
	EffectApply
	EffectReverse
)

// Tx is the unit of work for one state transition. Every *ForUpdate read
// takes a row lock (or the store's equivalent), so two concurrent transitions
// on the same trade, listing or account serialize and the loser observes the
// committed state.
type Tx interface {
	GetListingForUpdate(ctx context.Context, id string) (*Listing, error)
	CreateListing(ctx context.Context, l *Listing) error
	UpdateListing(ctx context.Context, l *Listing) error
	HasActiveListingForAsset(ctx context.Context, sellerID, assetID string) (bool, error)

	GetTradeForUpdate(ctx context.Context, id string) (*Trade, error)
	CreateTrade(ctx context.Context, t *Trade) error
	UpdateTrade(ctx context.Context, t *Trade) error

	GetAccountForUpdate(ctx context.Context, id string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error

	// ApplyEntry inserts a ledger entry and, when applyBalance is set, adds
	// the signed amount to the account balance in the same transaction. A
	// mutation that would drive the balance negative fails with
	// ErrInvariantViolation and aborts the transaction.
	ApplyEntry(ctx context.Context, e *ledger.Entry, applyBalance bool) error

	GetEntryByReferenceForUpdate(ctx context.Context, reference string) (*ledger.Entry, error)

	// SettleEntry moves a pending entry to its final status, applying or
	// reversing its balance effect as instructed.
	SettleEntry(ctx context.Context, e *ledger.Entry, status ledger.EntryStatus, effect BalanceEffect) error
}

// Store is the persistent backing of the escrow core. Transact runs fn inside
// one atomically-committed transaction; if fn returns an error nothing is
// applied. The remaining methods are plain reads outside any transaction.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error

	GetTrade(ctx context.Context, id string) (*Trade, error)
	ListTradesForUser(ctx context.Context, accountID string) ([]*Trade, error)
	ListDisputed(ctx context.Context) ([]*Trade, error)

	// ListOverdue returns ids of trades waiting on the buyer whose response
	// deadline elapsed before now. The sweep re-checks each trade inside its
	// own transaction, so a stale result here is harmless.
	ListOverdue(ctx context.Context, now time.Time) ([]string, error)

	GetListing(ctx context.Context, id string) (*Listing, error)
	ListActiveListings(ctx context.Context) ([]*Listing, error)

	GetAccount(ctx context.Context, id string) (*Account, error)
	ListEntries(ctx context.Context, accountID string) ([]ledger.Entry, error)
}
