// Package memory is a mutex-serialized in-memory implementation of the
// escrow store. It backs the test suite and local development; transactions
// are fully serialized, which is strictly stronger isolation than the
// row-lock scheme the Postgres store provides.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
)

type Store struct {
	mu       sync.Mutex
	listings map[string]*escrow.Listing
	trades   map[string]*escrow.Trade
	accounts map[string]*escrow.Account
	entries  []*ledger.Entry
}

func New() *Store {
	return &Store{
		listings: make(map[string]*escrow.Listing),
		trades:   make(map[string]*escrow.Trade),
		accounts: make(map[string]*escrow.Account),
	}
}

// PutAccount seeds or replaces an account. Test and bootstrap helper.
func (s *Store) PutAccount(a *escrow.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

// PutListing seeds a listing directly, bypassing the eligibility gate.
func (s *Store) PutListing(l *escrow.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.listings[l.ID] = &cp
}

// Transact runs fn under the store lock against staged copies; nothing is
// visible to other callers until fn returns nil and the stage commits.
func (s *Store) Transact(ctx context.Context, fn func(tx escrow.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		listings: make(map[string]*escrow.Listing),
		trades:   make(map[string]*escrow.Trade),
		accounts: make(map[string]*escrow.Account),
		settled:  make(map[string]*ledger.Entry),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (*escrow.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, escrow.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTradesForUser(ctx context.Context, accountID string) ([]*escrow.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*escrow.Trade
	for _, t := range s.trades {
		if t.BuyerID == accountID || t.SellerID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDisputed(ctx context.Context) ([]*escrow.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*escrow.Trade
	for _, t := range s.trades {
		if t.Status == escrow.StatusDisputed {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		// oldest dispute first
		return out[i].DisputedAt.Before(*out[j].DisputedAt)
	})
	return out, nil
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, t := range s.trades {
		if t.Status == escrow.StatusWaitingForBuyerConfirmation &&
			t.ResponseDeadline != nil && t.ResponseDeadline.Before(now) {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*escrow.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, escrow.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListActiveListings(ctx context.Context) ([]*escrow.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*escrow.Listing
	for _, l := range s.listings {
		if l.Status == escrow.ListingActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*escrow.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, escrow.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListEntries(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// memTx stages mutations until commit. The store lock is already held.
type memTx struct {
	store    *Store
	listings map[string]*escrow.Listing
	trades   map[string]*escrow.Trade
	accounts map[string]*escrow.Account
	inserted []*ledger.Entry
	settled  map[string]*ledger.Entry
}

func (tx *memTx) commit() {
	for id, l := range tx.listings {
		tx.store.listings[id] = l
	}
	for id, t := range tx.trades {
		tx.store.trades[id] = t
	}
	for id, a := range tx.accounts {
		tx.store.accounts[id] = a
	}
	for _, e := range tx.inserted {
		tx.store.entries = append(tx.store.entries, e)
	}
	for _, e := range tx.settled {
		for i, base := range tx.store.entries {
			if base.ID == e.ID {
				tx.store.entries[i] = e
				break
			}
		}
	}
}

func (tx *memTx) GetListingForUpdate(ctx context.Context, id string) (*escrow.Listing, error) {
	if l, ok := tx.listings[id]; ok {
		return l, nil
	}
	l, ok := tx.store.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, escrow.ErrNotFound)
	}
	cp := *l
	tx.listings[id] = &cp
	return &cp, nil
}

func (tx *memTx) CreateListing(ctx context.Context, l *escrow.Listing) error {
	cp := *l
	tx.listings[l.ID] = &cp
	return nil
}

func (tx *memTx) UpdateListing(ctx context.Context, l *escrow.Listing) error {
	cp := *l
	tx.listings[l.ID] = &cp
	return nil
}

func (tx *memTx) HasActiveListingForAsset(ctx context.Context, sellerID, assetID string) (bool, error) {
	check := func(l *escrow.Listing) bool {
		return l.SellerID == sellerID && l.AssetID == assetID && l.Status == escrow.ListingActive
	}
	for _, l := range tx.listings {
		if check(l) {
			return true, nil
		}
	}
	for id, l := range tx.store.listings {
		if _, staged := tx.listings[id]; staged {
			continue
		}
		if check(l) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) GetTradeForUpdate(ctx context.Context, id string) (*escrow.Trade, error) {
	if t, ok := tx.trades[id]; ok {
		return t, nil
	}
	t, ok := tx.store.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, escrow.ErrNotFound)
	}
	cp := *t
	tx.trades[id] = &cp
	return &cp, nil
}

func (tx *memTx) CreateTrade(ctx context.Context, t *escrow.Trade) error {
	cp := *t
	tx.trades[t.ID] = &cp
	return nil
}

func (tx *memTx) UpdateTrade(ctx context.Context, t *escrow.Trade) error {
	cp := *t
	tx.trades[t.ID] = &cp
	return nil
}

func (tx *memTx) GetAccountForUpdate(ctx context.Context, id string) (*escrow.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	a, ok := tx.store.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, escrow.ErrNotFound)
	}
	cp := *a
	tx.accounts[id] = &cp
	return &cp, nil
}

func (tx *memTx) UpdateAccount(ctx context.Context, a *escrow.Account) error {
	cp := *a
	tx.accounts[a.ID] = &cp
	return nil
}

func (tx *memTx) ApplyEntry(ctx context.Context, e *ledger.Entry, applyBalance bool) error {
	if applyBalance {
		if err := tx.adjustBalance(ctx, e.AccountID, e); err != nil {
			return err
		}
	}
	cp := *e
	tx.inserted = append(tx.inserted, &cp)
	return nil
}

func (tx *memTx) GetEntryByReferenceForUpdate(ctx context.Context, reference string) (*ledger.Entry, error) {
	for _, e := range tx.settled {
		if e.Reference == reference {
			return e, nil
		}
	}
	for _, e := range tx.inserted {
		if e.Reference == reference {
			return e, nil
		}
	}
	for _, e := range tx.store.entries {
		if e.Reference == reference {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("ledger entry for reference %s: %w", reference, escrow.ErrNotFound)
}

func (tx *memTx) SettleEntry(ctx context.Context, e *ledger.Entry, status ledger.EntryStatus, effect escrow.BalanceEffect) error {
	switch effect {
	case escrow.EffectApply:
		if err := tx.adjustBalance(ctx, e.AccountID, e); err != nil {
			return err
		}
	case escrow.EffectReverse:
		rev := *e
		rev.Amount = e.Amount.Neg()
		if err := tx.adjustBalance(ctx, e.AccountID, &rev); err != nil {
			return err
		}
	}
	cp := *e
	cp.Status = status
	tx.settled[cp.ID] = &cp
	return nil
}

func (tx *memTx) adjustBalance(ctx context.Context, accountID string, e *ledger.Entry) error {
	a, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	next := a.Balance.Add(e.Amount)
	if next.IsNegative() {
		return fmt.Errorf("%w: entry %s would drive account %s balance to %s",
			escrow.ErrInvariantViolation, e.ID, accountID, next)
	}
	a.Balance = next
	return tx.UpdateAccount(ctx, a)
}
