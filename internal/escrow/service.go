package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skinmarket/internal/ledger"
	"skinmarket/internal/observability"
)

// EligibilityChecker is the trading-platform collaborator that decides
// whether a seller's account may sell. Implementations are expected to cache;
// the core only consumes the answer.
type EligibilityChecker interface {
	IsEligibleToSell(ctx context.Context, accountID string) (eligible bool, reason string, err error)
}

// TradeEvent identifies a lifecycle notification. Delivery is best-effort
// and never part of the money-moving transaction.
type TradeEvent string

const (
	EventTradeCreated    TradeEvent = "trade:created"
	EventTradeSent       TradeEvent = "trade:sent"
	EventTradeCompleted  TradeEvent = "trade:completed"
	EventTradeDisputed   TradeEvent = "trade:disputed"
	EventTradeResolved   TradeEvent = "trade:resolved"
	EventTradeExpired    TradeEvent = "trade:expired"
	EventTradeCancelled  TradeEvent = "trade:cancelled"
)

type Notifier interface {
	NotifyTrade(ctx context.Context, event TradeEvent, t *Trade) error
}

// Service owns the trade state machine and the purchase/dispute/sweep
// operations around it. Every transition is one Store.Transact call whose
// closure re-reads state under lock, so concurrency guarantees come from the
// store rather than from request scheduling.
type Service struct {
	store       Store
	eligibility EligibilityChecker
	notifier    Notifier
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(store Store, eligibility EligibilityChecker, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:       store,
		eligibility: eligibility,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Tests use it to move time past the
// response deadline.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateListing offers an asset for sale. The seller must pass the
// eligibility gate and may not have another active listing for the same
// asset instance.
func (s *Service) CreateListing(ctx context.Context, sellerID, assetID, itemName, itemWear string, price decimal.Decimal) (*Listing, error) {
	if assetID == "" || itemName == "" {
		return nil, fmt.Errorf("%w: asset and item name required", ErrPreconditionFailed)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrPreconditionFailed)
	}

	eligible, reason, err := s.eligibility.IsEligibleToSell(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("%w: eligibility check: %v", ErrExternalDependency, err)
	}
	if !eligible {
		return nil, fmt.Errorf("%w: %s", ErrPreconditionFailed, reason)
	}

	listing := &Listing{
		ID:        uuid.New().String(),
		SellerID:  sellerID,
		AssetID:   assetID,
		ItemName:  itemName,
		ItemWear:  itemWear,
		Price:     price,
		Status:    ListingActive,
		CreatedAt: s.now(),
	}

	err = s.store.Transact(ctx, func(tx Tx) error {
		listed, err := tx.HasActiveListingForAsset(ctx, sellerID, assetID)
		if err != nil {
			return err
		}
		if listed {
			return fmt.Errorf("%w: item is already listed for sale", ErrInvalidState)
		}
		return tx.CreateListing(ctx, listing)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *Service) ListActiveListings(ctx context.Context) ([]*Listing, error) {
	return s.store.ListActiveListings(ctx)
}

// Purchase debits the buyer, creates the trade and marks the listing sold as
// one atomic unit. The listing row lock serializes concurrent purchases: the
// first wins, the rest observe a non-active listing and fail with
// ErrInvalidState.
func (s *Service) Purchase(ctx context.Context, buyerID, listingID string) (*Trade, error) {
	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != ListingActive {
			return fmt.Errorf("%w: this item is no longer available", ErrInvalidState)
		}
		if listing.SellerID == buyerID {
			return fmt.Errorf("%w: you cannot buy your own listing", ErrPreconditionFailed)
		}

		buyer, err := tx.GetAccountForUpdate(ctx, buyerID)
		if err != nil {
			return err
		}
		if buyer.DeliveryToken == "" {
			return fmt.Errorf("%w: set up your trade link before purchasing items", ErrPreconditionFailed)
		}
		if buyer.Balance.LessThan(listing.Price) {
			return fmt.Errorf("%w: insufficient balance", ErrPreconditionFailed)
		}

		now := s.now()
		trade = &Trade{
			ID:            uuid.New().String(),
			ListingID:     listing.ID,
			BuyerID:       buyerID,
			SellerID:      listing.SellerID,
			AssetID:       listing.AssetID,
			ItemName:      listing.ItemName,
			ItemWear:      listing.ItemWear,
			Amount:        listing.Price,
			Status:        StatusWaitingForSeller,
			StatusMessage: "Waiting for seller to send trade offer...",
			DeliveryToken: buyer.DeliveryToken,
			CreatedAt:     now,
		}
		if err := tx.CreateTrade(ctx, trade); err != nil {
			return err
		}

		debit := &ledger.Entry{
			ID:          uuid.New().String(),
			AccountID:   buyerID,
			Amount:      listing.Price.Neg(),
			Type:        ledger.TypePurchase,
			Status:      ledger.StatusCompleted,
			Description: "Purchase: " + listing.ItemName,
			Reference:   trade.ID,
			CreatedAt:   now,
		}
		if err := tx.ApplyEntry(ctx, debit, true); err != nil {
			return err
		}

		listing.Status = ListingSold
		return tx.UpdateListing(ctx, listing)
	})
	if err != nil {
		return nil, err
	}

	observability.PurchasesTotal.Inc()
	observability.LedgerEntriesTotal.WithLabelValues(string(ledger.TypePurchase)).Inc()
	s.log.Info().Str("trade_id", trade.ID).Str("buyer_id", buyerID).
		Str("amount", trade.Amount.String()).Msg("trade created")
	s.notify(ctx, EventTradeCreated, trade)
	return trade, nil
}

// TradeOffer gives the seller the buyer's delivery token so they can start
// the hand-off on the external platform. Seller-only; legal while the trade
// is waiting on the seller.
func (s *Service) TradeOffer(ctx context.Context, tradeID, sellerID string) (string, error) {
	trade, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return "", err
	}
	if trade.SellerID != sellerID {
		return "", ErrUnauthorized
	}
	if trade.Status != StatusWaitingForSeller {
		return "", fmt.Errorf("%w: trade is no longer waiting on the seller", ErrInvalidState)
	}
	if trade.DeliveryToken == "" {
		return "", fmt.Errorf("%w: the buyer has not set up their trade link", ErrPreconditionFailed)
	}
	return trade.DeliveryToken, nil
}

// MarkAsSent records that the seller started the hand-off and opens the
// buyer's 24-hour response window.
func (s *Service) MarkAsSent(ctx context.Context, tradeID, sellerID string) (*Trade, error) {
	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.SellerID != sellerID {
			return ErrUnauthorized
		}
		if t.Status != StatusWaitingForSeller {
			return fmt.Errorf("%w: this trade can no longer be marked as sent", ErrInvalidState)
		}

		now := s.now()
		deadline := now.Add(ResponseWindow)
		t.Status = StatusWaitingForBuyerConfirmation
		t.StatusMessage = "Waiting for buyer to confirm receipt..."
		t.OfferSentAt = &now
		t.ResponseDeadline = &deadline
		trade = t
		return tx.UpdateTrade(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("trade_id", trade.ID).Time("deadline", *trade.ResponseDeadline).Msg("trade marked as sent")
	s.notify(ctx, EventTradeSent, trade)
	return trade, nil
}

// ConfirmReceipt completes the trade and credits the seller. Legal only while
// the buyer may still respond; once the deadline has passed the sweep owns
// the trade and confirmation fails with ErrDeadlinePassed.
func (s *Service) ConfirmReceipt(ctx context.Context, tradeID, buyerID string) (*Trade, error) {
	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.BuyerID != buyerID {
			return ErrUnauthorized
		}
		if t.Status != StatusWaitingForBuyerConfirmation {
			return fmt.Errorf("%w: this trade can no longer be confirmed", ErrInvalidState)
		}
		now := s.now()
		if !t.buyerCanRespond(now) {
			return fmt.Errorf("%w: the confirmation period has expired", ErrDeadlinePassed)
		}

		t.Status = StatusCompleted
		t.StatusMessage = "Trade completed successfully"
		t.CompletedAt = &now
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		trade = t
		return s.creditSeller(ctx, tx, t, fmt.Sprintf("Sale completed for trade %s", t.ID))
	})
	if err != nil {
		return nil, err
	}

	observability.TradesCompletedTotal.Inc()
	s.log.Info().Str("trade_id", trade.ID).Msg("trade completed by buyer")
	s.notify(ctx, EventTradeCompleted, trade)
	return trade, nil
}

// Dispute freezes the trade for arbitration. Same window guard as
// ConfirmReceipt; no funds move until an arbiter decides.
func (s *Service) Dispute(ctx context.Context, tradeID, buyerID, reason string) (*Trade, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: dispute reason required", ErrPreconditionFailed)
	}

	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.BuyerID != buyerID {
			return ErrUnauthorized
		}
		if t.Status != StatusWaitingForBuyerConfirmation {
			return fmt.Errorf("%w: this trade can no longer be disputed", ErrInvalidState)
		}
		now := s.now()
		if !t.buyerCanRespond(now) {
			return fmt.Errorf("%w: the response period has expired", ErrDeadlinePassed)
		}

		t.Status = StatusDisputed
		t.StatusMessage = "Trade under review due to dispute"
		t.DisputeReason = reason
		t.DisputedAt = &now
		trade = t
		return tx.UpdateTrade(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	observability.TradesDisputedTotal.Inc()
	s.log.Info().Str("trade_id", trade.ID).Str("reason", reason).Msg("trade disputed")
	s.notify(ctx, EventTradeDisputed, trade)
	return trade, nil
}

// Cancel terminates a trade that has not yet settled, by either party. The
// buyer's escrow hold is returned with a refund entry; the listing stays
// sold, relisting is an explicit seller action.
func (s *Service) Cancel(ctx context.Context, tradeID, actorID string) (*Trade, error) {
	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.BuyerID != actorID && t.SellerID != actorID {
			return ErrUnauthorized
		}
		if t.Status != StatusWaitingForSeller && t.Status != StatusWaitingForBuyerConfirmation {
			return fmt.Errorf("%w: this trade can no longer be cancelled", ErrInvalidState)
		}

		now := s.now()
		t.Status = StatusCancelled
		t.StatusMessage = "Trade cancelled"
		t.CompletedAt = &now
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		trade = t
		return s.refundBuyer(ctx, tx, t, fmt.Sprintf("Refund for cancelled trade %s", t.ID))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("trade_id", trade.ID).Str("actor_id", actorID).Msg("trade cancelled")
	s.notify(ctx, EventTradeCancelled, trade)
	return trade, nil
}

// ResolveDispute is the arbiter decision on a disputed trade. Exactly one
// crediting entry is written: a refund to the buyer or a sale to the seller.
// Authorization is enforced by the caller's arbiter guard; arbiterID is kept
// for the audit trail.
func (s *Service) ResolveDispute(ctx context.Context, tradeID, arbiterID string, refundBuyer bool, resolution, adminNotes string) (*Trade, error) {
	var trade *Trade
	err := s.store.Transact(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.Status != StatusDisputed {
			return fmt.Errorf("%w: only disputed trades can be resolved", ErrInvalidState)
		}

		now := s.now()
		t.Status = StatusDisputeResolved
		t.StatusMessage = "Dispute resolved by admin: " + resolution
		t.DisputeResolution = resolution
		t.AdminNotes = adminNotes
		t.ResolvedAt = &now
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		trade = t

		if refundBuyer {
			return s.refundBuyer(ctx, tx, t, fmt.Sprintf("Refund for disputed trade %s", t.ID))
		}
		return s.creditSeller(ctx, tx, t, fmt.Sprintf("Funds released for disputed trade %s", t.ID))
	})
	if err != nil {
		return nil, err
	}

	outcome := "seller"
	if refundBuyer {
		outcome = "buyer"
	}
	observability.DisputesResolvedTotal.WithLabelValues(outcome).Inc()
	s.log.Info().Str("trade_id", trade.ID).Str("arbiter_id", arbiterID).
		Bool("refund_buyer", refundBuyer).Msg("dispute resolved")
	s.notify(ctx, EventTradeResolved, trade)
	return trade, nil
}

// ListDisputedTrades returns open disputes, oldest dispute first, so the
// arbitration backlog is worked in order.
func (s *Service) ListDisputedTrades(ctx context.Context) ([]*Trade, error) {
	return s.store.ListDisputed(ctx)
}

// DisputeDetails returns a disputed trade for arbiter inspection.
func (s *Service) DisputeDetails(ctx context.Context, tradeID string) (*Trade, error) {
	t, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusDisputed {
		return nil, fmt.Errorf("%w: trade is not disputed", ErrInvalidState)
	}
	return t, nil
}

// TradesForUser lists trades the account participates in, newest first.
func (s *Service) TradesForUser(ctx context.Context, accountID string) ([]*Trade, error) {
	return s.store.ListTradesForUser(ctx, accountID)
}

// TradeForUser returns one trade, participants only.
func (s *Service) TradeForUser(ctx context.Context, tradeID, accountID string) (*Trade, error) {
	t, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != accountID && t.SellerID != accountID {
		return nil, ErrUnauthorized
	}
	return t, nil
}

// ExpireOverdue is the deadline sweep pass: every trade still waiting on the
// buyer past its deadline is expired in the seller's favor. Each trade is its
// own transaction with the state re-checked under lock, so the sweep loses
// cleanly to a buyer action that committed first and re-running over terminal
// trades is a no-op.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		var trade *Trade
		err := s.store.Transact(ctx, func(tx Tx) error {
			t, err := tx.GetTradeForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if t.Status != StatusWaitingForBuyerConfirmation {
				return nil // settled by the buyer or an arbiter since the scan
			}
			if t.ResponseDeadline == nil || now.Before(*t.ResponseDeadline) {
				return nil
			}

			t.Status = StatusExpired
			t.StatusMessage = "Automatically completed due to buyer inaction"
			t.CompletedAt = &now
			t.LastCheckedAt = &now
			if err := tx.UpdateTrade(ctx, t); err != nil {
				return err
			}
			trade = t
			return s.creditSeller(ctx, tx, t, fmt.Sprintf("Sale auto-completed for trade %s", t.ID))
		})
		if err != nil {
			s.log.Error().Err(err).Str("trade_id", id).Msg("sweep failed to expire trade")
			continue
		}
		if trade != nil {
			expired++
			observability.TradesExpiredTotal.Inc()
			s.notify(ctx, EventTradeExpired, trade)
		}
	}
	return expired, nil
}

// VerifyAccount replays the account's ledger and compares it to the stored
// balance. A mismatch is an invariant violation.
func (s *Service) VerifyAccount(ctx context.Context, accountID string) (decimal.Decimal, decimal.Decimal, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	entries, err := s.store.ListEntries(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	expected := ledger.ExpectedBalance(entries)
	if !expected.Equal(account.Balance) {
		return account.Balance, expected, fmt.Errorf("%w: balance %s does not match ledger replay %s",
			ErrInvariantViolation, account.Balance, expected)
	}
	return account.Balance, expected, nil
}

// creditSeller writes the single Sale entry that settles a trade in the
// seller's favor.
func (s *Service) creditSeller(ctx context.Context, tx Tx, t *Trade, description string) error {
	entry := &ledger.Entry{
		ID:          uuid.New().String(),
		AccountID:   t.SellerID,
		Amount:      t.Amount,
		Type:        ledger.TypeSale,
		Status:      ledger.StatusCompleted,
		Description: description,
		Reference:   t.ID,
		CreatedAt:   s.now(),
	}
	if err := tx.ApplyEntry(ctx, entry, true); err != nil {
		return err
	}
	observability.LedgerEntriesTotal.WithLabelValues(string(ledger.TypeSale)).Inc()
	return nil
}

// refundBuyer writes the single Refund entry that settles a trade in the
// buyer's favor and stamps the refunded flag.
func (s *Service) refundBuyer(ctx context.Context, tx Tx, t *Trade, description string) error {
	now := s.now()
	entry := &ledger.Entry{
		ID:          uuid.New().String(),
		AccountID:   t.BuyerID,
		Amount:      t.Amount,
		Type:        ledger.TypeRefund,
		Status:      ledger.StatusCompleted,
		Description: description,
		Reference:   t.ID,
		CreatedAt:   now,
	}
	if err := tx.ApplyEntry(ctx, entry, true); err != nil {
		return err
	}
	t.Refunded = true
	t.RefundedAt = &now
	if err := tx.UpdateTrade(ctx, t); err != nil {
		return err
	}
	observability.LedgerEntriesTotal.WithLabelValues(string(ledger.TypeRefund)).Inc()
	return nil
}

func (s *Service) notify(ctx context.Context, event TradeEvent, t *Trade) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyTrade(ctx, event, t); err != nil {
		s.log.Warn().Err(err).Str("trade_id", t.ID).Str("event", string(event)).Msg("notification failed")
	}
}
