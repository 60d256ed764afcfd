package db

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"skinmarket/internal/observability"
)

var log = observability.NewLogger("db")

// Connect opens the Postgres pool and bootstraps the schema.
func Connect(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	if err := ensureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{
		ensureAccountsTable,
		ensureListingsTable,
		ensureTradesTable,
		ensureWalletTransactionsTable,
		ensureIndexes,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Info().Msg("schema ensured")
	return nil
}

const ensureAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    platform_id TEXT NOT NULL DEFAULT '',
    balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    delivery_token TEXT NOT NULL DEFAULT '',
    is_eligible BOOLEAN NOT NULL DEFAULT FALSE,
    eligibility_checked_at TIMESTAMPTZ NULL
)`

const ensureListingsTable = `
CREATE TABLE IF NOT EXISTS listings (
    id UUID PRIMARY KEY,
    seller_id UUID NOT NULL REFERENCES accounts(id),
    asset_id TEXT NOT NULL,
    item_name TEXT NOT NULL,
    item_wear TEXT NOT NULL DEFAULT '',
    price NUMERIC(12,2) NOT NULL CHECK (price > 0),
    status TEXT NOT NULL DEFAULT 'active'
        CHECK (status IN ('active', 'sold', 'cancelled')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const ensureTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
    id UUID PRIMARY KEY,
    listing_id UUID NOT NULL REFERENCES listings(id),
    buyer_id UUID NOT NULL REFERENCES accounts(id),
    seller_id UUID NOT NULL REFERENCES accounts(id),
    asset_id TEXT NOT NULL,
    item_name TEXT NOT NULL,
    item_wear TEXT NOT NULL DEFAULT '',
    amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
    status TEXT NOT NULL
        CHECK (status IN (
            'waiting_for_seller', 'waiting_for_buyer_confirmation', 'completed',
            'disputed', 'dispute_resolved', 'cancelled', 'expired', 'refunded'
        )),
    status_message TEXT NOT NULL DEFAULT '',
    delivery_token TEXT NOT NULL DEFAULT '',
    dispute_reason TEXT NOT NULL DEFAULT '',
    dispute_resolution TEXT NOT NULL DEFAULT '',
    admin_notes TEXT NOT NULL DEFAULT '',
    refunded BOOLEAN NOT NULL DEFAULT FALSE,
    refunded_at TIMESTAMPTZ NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    offer_sent_at TIMESTAMPTZ NULL,
    response_deadline TIMESTAMPTZ NULL,
    completed_at TIMESTAMPTZ NULL,
    disputed_at TIMESTAMPTZ NULL,
    resolved_at TIMESTAMPTZ NULL,
    last_checked_at TIMESTAMPTZ NULL
)`

const ensureWalletTransactionsTable = `
CREATE TABLE IF NOT EXISTS wallet_transactions (
    id UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts(id),
    amount NUMERIC(12,2) NOT NULL,
    type TEXT NOT NULL
        CHECK (type IN ('deposit', 'withdrawal', 'sale', 'purchase', 'refund')),
    status TEXT NOT NULL
        CHECK (status IN ('pending', 'completed', 'failed', 'refunded')),
    description TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const ensureIndexes = `
CREATE INDEX IF NOT EXISTS idx_listings_seller_asset ON listings(seller_id, asset_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_trades_participants ON trades(buyer_id, seller_id);
CREATE INDEX IF NOT EXISTS idx_trades_sweep ON trades(response_deadline) WHERE status = 'waiting_for_buyer_confirmation';
CREATE INDEX IF NOT EXISTS idx_trades_disputed ON trades(disputed_at) WHERE status = 'disputed';
CREATE INDEX IF NOT EXISTS idx_wallet_tx_account ON wallet_transactions(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_wallet_tx_reference ON wallet_transactions(reference)`
