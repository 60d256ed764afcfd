package steam

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"skinmarket/internal/escrow"
)

// EligibilityTTL is how long a verdict stays trusted before the platform is
// asked again.
const EligibilityTTL = 24 * time.Hour

// Verifier answers IsEligibleToSell with a stale-tolerant cache on the
// account row, so listing and purchase paths do not hit the platform API on
// every call.
type Verifier struct {
	api   API
	store escrow.Store
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

func NewVerifier(api API, store escrow.Store, log zerolog.Logger) *Verifier {
	return &Verifier{
		api:   api,
		store: store,
		ttl:   EligibilityTTL,
		log:   log,
		now:   time.Now,
	}
}

func (v *Verifier) IsEligibleToSell(ctx context.Context, accountID string) (bool, string, error) {
	account, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return false, "", err
	}

	now := v.now()
	if account.EligibilityCheckedAt != nil && now.Sub(*account.EligibilityCheckedAt) < v.ttl {
		if account.Eligible {
			return true, "", nil
		}
		return false, "account is not eligible for trading", nil
	}

	bans, err := v.api.GetPlayerBans(ctx, account.PlatformID)
	if err != nil {
		return false, "", fmt.Errorf("verify eligibility: %w", err)
	}
	eligible := bans.Eligible()

	err = v.store.Transact(ctx, func(tx escrow.Tx) error {
		a, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		a.Eligible = eligible
		a.EligibilityCheckedAt = &now
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		// The verdict is still usable; only the cache write failed.
		v.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to cache eligibility verdict")
	}

	if eligible {
		return true, "", nil
	}
	return false, "account is banned from trading on the platform", nil
}
