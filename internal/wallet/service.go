package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skinmarket/internal/escrow"
	"skinmarket/internal/ledger"
	"skinmarket/internal/observability"
	"skinmarket/internal/payment"
)

// Service owns deposits and withdrawals: the ledger entries the payment
// gateway produces and consumes. Gateway calls happen strictly outside the
// ledger transaction.
type Service struct {
	store   escrow.Store
	gateway payment.Gateway
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(store escrow.Store, gateway payment.Gateway, log zerolog.Logger) *Service {
	return &Service{store: store, gateway: gateway, log: log, now: time.Now}
}

// SetClock overrides the service clock for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *Service) Transactions(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	return s.store.ListEntries(ctx, accountID)
}

// InitDeposit opens a gateway checkout session and records a pending deposit
// entry referencing it. The balance is untouched until the session confirms.
func (s *Service) InitDeposit(ctx context.Context, accountID string, amount decimal.Decimal) (*payment.Session, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", escrow.ErrPreconditionFailed)
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateDepositSession(ctx, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: create deposit session: %v", escrow.ErrExternalDependency, err)
	}

	entry := &ledger.Entry{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Amount:      amount,
		Type:        ledger.TypeDeposit,
		Status:      ledger.StatusPending,
		Description: "Deposit via payment gateway",
		Reference:   session.ID,
		CreatedAt:   s.now(),
	}
	err = s.store.Transact(ctx, func(tx escrow.Tx) error {
		return tx.ApplyEntry(ctx, entry, false)
	})
	if err != nil {
		return nil, err
	}

	observability.LedgerEntriesTotal.WithLabelValues(string(ledger.TypeDeposit)).Inc()
	s.log.Info().Str("account_id", accountID).Str("session_id", session.ID).
		Str("amount", amount.String()).Msg("deposit initialized")
	return session, nil
}

// ConfirmDeposit polls the gateway for the session outcome and, when paid,
// settles the pending entry and applies the credit in one transaction.
func (s *Service) ConfirmDeposit(ctx context.Context, accountID, sessionID string) error {
	paid, err := s.gateway.ConfirmDepositSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: confirm deposit session: %v", escrow.ErrExternalDependency, err)
	}
	if !paid {
		return fmt.Errorf("%w: payment not completed", escrow.ErrPreconditionFailed)
	}

	return s.store.Transact(ctx, func(tx escrow.Tx) error {
		entry, err := tx.GetEntryByReferenceForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if entry.AccountID != accountID {
			return escrow.ErrUnauthorized
		}
		if entry.Status != ledger.StatusPending {
			return fmt.Errorf("%w: deposit already settled", escrow.ErrInvalidState)
		}
		return tx.SettleEntry(ctx, entry, ledger.StatusCompleted, escrow.EffectApply)
	})
}

// Withdraw places a hold: a pending withdrawal entry whose debit applies
// immediately, then a payout request to the gateway. The webhook settles the
// entry to completed, or failed with the hold reversed.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*ledger.Entry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", escrow.ErrPreconditionFailed)
	}

	entry := &ledger.Entry{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Amount:      amount.Neg(),
		Type:        ledger.TypeWithdrawal,
		Status:      ledger.StatusPending,
		Description: "Withdrawal to payment gateway",
		CreatedAt:   s.now(),
	}
	entry.Reference = entry.ID

	err := s.store.Transact(ctx, func(tx escrow.Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return fmt.Errorf("%w: insufficient balance", escrow.ErrPreconditionFailed)
		}
		return tx.ApplyEntry(ctx, entry, true)
	})
	if err != nil {
		return nil, err
	}
	observability.LedgerEntriesTotal.WithLabelValues(string(ledger.TypeWithdrawal)).Inc()

	// The hold is committed; the payout itself settles via webhook. A failure
	// here is recoverable, the gateway event will reverse the hold.
	if err := s.gateway.CreatePayout(ctx, accountID, amount, entry.Reference); err != nil {
		s.log.Error().Err(err).Str("entry_id", entry.ID).Msg("payout request failed, awaiting gateway event")
	}

	s.log.Info().Str("account_id", accountID).Str("entry_id", entry.ID).
		Str("amount", amount.String()).Msg("withdrawal initialized")
	return entry, nil
}

// HandleGatewayEvent settles a pending entry from an asynchronous gateway
// status update. Deposits apply their credit on success; failed withdrawals
// reverse the hold. Settlement and balance effect commit atomically.
func (s *Service) HandleGatewayEvent(ctx context.Context, reference string, succeeded bool) error {
	return s.store.Transact(ctx, func(tx escrow.Tx) error {
		entry, err := tx.GetEntryByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if entry.Status != ledger.StatusPending {
			return fmt.Errorf("%w: entry already settled", escrow.ErrInvalidState)
		}

		switch entry.Type {
		case ledger.TypeDeposit:
			if succeeded {
				return tx.SettleEntry(ctx, entry, ledger.StatusCompleted, escrow.EffectApply)
			}
			return tx.SettleEntry(ctx, entry, ledger.StatusFailed, escrow.EffectNone)
		case ledger.TypeWithdrawal:
			if succeeded {
				return tx.SettleEntry(ctx, entry, ledger.StatusCompleted, escrow.EffectNone)
			}
			return tx.SettleEntry(ctx, entry, ledger.StatusFailed, escrow.EffectReverse)
		default:
			return fmt.Errorf("%w: gateway event for non-gateway entry %s", escrow.ErrInvalidState, entry.ID)
		}
	})
}
