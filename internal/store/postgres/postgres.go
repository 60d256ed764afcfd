// Package postgres implements the escrow store on pgx. Every Transact call
// is one database transaction; *ForUpdate reads take row locks so concurrent
// state transitions on the same trade, listing or account serialize.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Transact(ctx context.Context, fn func(tx escrow.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const listingColumns = `id, seller_id, asset_id, item_name, item_wear, price, status, created_at`

func scanListing(row pgx.Row) (*escrow.Listing, error) {
	var l escrow.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.AssetID, &l.ItemName, &l.ItemWear, &l.Price, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const tradeColumns = `id, listing_id, buyer_id, seller_id, asset_id, item_name, item_wear, amount,
	status, status_message, delivery_token, dispute_reason, dispute_resolution, admin_notes,
	refunded, refunded_at, created_at, offer_sent_at, response_deadline, completed_at,
	disputed_at, resolved_at, last_checked_at`

func scanTrade(row pgx.Row) (*escrow.Trade, error) {
	var t escrow.Trade
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerID, &t.SellerID, &t.AssetID, &t.ItemName, &t.ItemWear,
		&t.Amount, &t.Status, &t.StatusMessage, &t.DeliveryToken, &t.DisputeReason, &t.DisputeResolution,
		&t.AdminNotes, &t.Refunded, &t.RefundedAt, &t.CreatedAt, &t.OfferSentAt, &t.ResponseDeadline,
		&t.CompletedAt, &t.DisputedAt, &t.ResolvedAt, &t.LastCheckedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (*escrow.Trade, error) {
	t, err := scanTrade(s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", id, escrow.ErrNotFound)
	}
	return t, err
}

func (s *Store) ListTradesForUser(ctx context.Context, accountID string) ([]*escrow.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (s *Store) ListDisputed(ctx context.Context) ([]*escrow.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE status = $1 ORDER BY disputed_at ASC`, escrow.StatusDisputed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM trades WHERE status = $1 AND response_deadline < $2`,
		escrow.StatusWaitingForBuyerConfirmation, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetListing(ctx context.Context, id string) (*escrow.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, escrow.ErrNotFound)
	}
	return l, err
}

func (s *Store) ListActiveListings(ctx context.Context) ([]*escrow.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = $1 ORDER BY created_at DESC`,
		escrow.ListingActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*escrow.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const accountColumns = `id, platform_id, balance, delivery_token, is_eligible, eligibility_checked_at`

func scanAccount(row pgx.Row) (*escrow.Account, error) {
	var a escrow.Account
	err := row.Scan(&a.ID, &a.PlatformID, &a.Balance, &a.DeliveryToken, &a.Eligible, &a.EligibilityCheckedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*escrow.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, escrow.ErrNotFound)
	}
	return a, err
}

const entryColumns = `id, account_id, amount, type, status, description, reference, created_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Type, &e.Status, &e.Description, &e.Reference, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM wallet_transactions
		 WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func collectTrades(rows pgx.Rows) ([]*escrow.Trade, error) {
	var out []*escrow.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (p *pgTx) GetListingForUpdate(ctx context.Context, id string) (*escrow.Listing, error) {
	l, err := scanListing(p.tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, escrow.ErrNotFound)
	}
	return l, err
}

func (p *pgTx) CreateListing(ctx context.Context, l *escrow.Listing) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO listings (id, seller_id, asset_id, item_name, item_wear, price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.SellerID, l.AssetID, l.ItemName, l.ItemWear, l.Price, l.Status, l.CreatedAt)
	return err
}

func (p *pgTx) UpdateListing(ctx context.Context, l *escrow.Listing) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE listings SET status = $1 WHERE id = $2`, l.Status, l.ID)
	return err
}

func (p *pgTx) HasActiveListingForAsset(ctx context.Context, sellerID, assetID string) (bool, error) {
	var exists bool
	err := p.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM listings WHERE seller_id = $1 AND asset_id = $2 AND status = $3)`,
		sellerID, assetID, escrow.ListingActive).Scan(&exists)
	return exists, err
}

func (p *pgTx) GetTradeForUpdate(ctx context.Context, id string) (*escrow.Trade, error) {
	t, err := scanTrade(p.tx.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", id, escrow.ErrNotFound)
	}
	return t, err
}

func (p *pgTx) CreateTrade(ctx context.Context, t *escrow.Trade) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO trades (id, listing_id, buyer_id, seller_id, asset_id, item_name, item_wear, amount,
		   status, status_message, delivery_token, dispute_reason, dispute_resolution, admin_notes,
		   refunded, refunded_at, created_at, offer_sent_at, response_deadline, completed_at,
		   disputed_at, resolved_at, last_checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		t.ID, t.ListingID, t.BuyerID, t.SellerID, t.AssetID, t.ItemName, t.ItemWear, t.Amount,
		t.Status, t.StatusMessage, t.DeliveryToken, t.DisputeReason, t.DisputeResolution, t.AdminNotes,
		t.Refunded, t.RefundedAt, t.CreatedAt, t.OfferSentAt, t.ResponseDeadline, t.CompletedAt,
		t.DisputedAt, t.ResolvedAt, t.LastCheckedAt)
	return err
}

func (p *pgTx) UpdateTrade(ctx context.Context, t *escrow.Trade) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE trades SET status = $1, status_message = $2, dispute_reason = $3,
		   dispute_resolution = $4, admin_notes = $5, refunded = $6, refunded_at = $7,
		   offer_sent_at = $8, response_deadline = $9, completed_at = $10,
		   disputed_at = $11, resolved_at = $12, last_checked_at = $13
		 WHERE id = $14`,
		t.Status, t.StatusMessage, t.DisputeReason, t.DisputeResolution, t.AdminNotes,
		t.Refunded, t.RefundedAt, t.OfferSentAt, t.ResponseDeadline, t.CompletedAt,
		t.DisputedAt, t.ResolvedAt, t.LastCheckedAt, t.ID)
	return err
}

func (p *pgTx) GetAccountForUpdate(ctx context.Context, id string) (*escrow.Account, error) {
	a, err := scanAccount(p.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, escrow.ErrNotFound)
	}
	return a, err
}

func (p *pgTx) UpdateAccount(ctx context.Context, a *escrow.Account) error {
	_, err := p.tx.Exec(ctx,
		`UPDATE accounts SET delivery_token = $1, is_eligible = $2, eligibility_checked_at = $3 WHERE id = $4`,
		a.DeliveryToken, a.Eligible, a.EligibilityCheckedAt, a.ID)
	return err
}

func (p *pgTx) ApplyEntry(ctx context.Context, e *ledger.Entry, applyBalance bool) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO wallet_transactions (id, account_id, amount, type, status, description, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, e.Amount, e.Type, e.Status, e.Description, e.Reference, e.CreatedAt)
	if err != nil {
		return err
	}
	if applyBalance {
		return p.adjustBalance(ctx, e.AccountID, e.Amount, e.ID)
	}
	return nil
}

func (p *pgTx) GetEntryByReferenceForUpdate(ctx context.Context, reference string) (*ledger.Entry, error) {
	e, err := scanEntry(p.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM wallet_transactions WHERE reference = $1 FOR UPDATE`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ledger entry for reference %s: %w", reference, escrow.ErrNotFound)
	}
	return e, err
}

func (p *pgTx) SettleEntry(ctx context.Context, e *ledger.Entry, status ledger.EntryStatus, effect escrow.BalanceEffect) error {
	tag, err := p.tx.Exec(ctx,
		`UPDATE wallet_transactions SET status = $1 WHERE id = $2 AND status = $3`,
		status, e.ID, ledger.StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s is not pending", escrow.ErrInvalidState, e.ID)
	}

	switch effect {
	case escrow.EffectApply:
		return p.adjustBalance(ctx, e.AccountID, e.Amount, e.ID)
	case escrow.EffectReverse:
		return p.adjustBalance(ctx, e.AccountID, e.Amount.Neg(), e.ID)
	}
	return nil
}

// adjustBalance is the one statement that mutates an account balance. The
// guard in the WHERE clause backs the CHECK constraint: a mutation that would
// drive the balance negative affects no rows and aborts the transaction.
func (p *pgTx) adjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, entryID string) error {
	tag, err := p.tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0`,
		delta, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s would drive account %s balance negative",
			escrow.ErrInvariantViolation, entryID, accountID)
	}
	return nil
}
