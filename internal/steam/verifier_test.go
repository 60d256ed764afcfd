package steam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinmarket/internal/escrow"
	"skinmarket/internal/observability"
	"skinmarket/internal/store/memory"
)

type fakeAPI struct {
	bans  *BanSummary
	err   error
	calls int
}

func (f *fakeAPI) GetPlayerBans(ctx context.Context, platformID string) (*BanSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bans, nil
}

func cleanRecord() *BanSummary {
	return &BanSummary{EconomyBan: "none"}
}

func TestEligibleRules(t *testing.T) {
	cases := []struct {
		name     string
		bans     BanSummary
		eligible bool
	}{
		{"clean account", BanSummary{EconomyBan: "none"}, true},
		{"economy banned", BanSummary{EconomyBan: "banned"}, false},
		{"economy probation", BanSummary{EconomyBan: "probation"}, false},
		{"vac banned", BanSummary{EconomyBan: "none", VACBanned: true}, false},
		{"community banned", BanSummary{EconomyBan: "none", CommunityBanned: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.eligible, tc.bans.Eligible())
		})
	}
}

func TestVerifierCachesVerdict(t *testing.T) {
	store := memory.New()
	store.PutAccount(&escrow.Account{ID: "u1", PlatformID: "765-u1"})
	api := &fakeAPI{bans: cleanRecord()}

	v := NewVerifier(api, store, observability.NewLogger("test"))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return base }

	ctx := context.Background()
	eligible, _, err := v.IsEligibleToSell(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Equal(t, 1, api.calls)

	// within the TTL the account row answers
	v.now = func() time.Time { return base.Add(EligibilityTTL - time.Minute) }
	eligible, _, err = v.IsEligibleToSell(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Equal(t, 1, api.calls, "cached verdict must not hit the API")

	// past the TTL the platform is asked again
	api.bans = &BanSummary{EconomyBan: "banned"}
	v.now = func() time.Time { return base.Add(EligibilityTTL + time.Minute) }
	eligible, reason, err := v.IsEligibleToSell(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, eligible)
	assert.NotEmpty(t, reason)
	assert.Equal(t, 2, api.calls)

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, account.Eligible)
	require.NotNil(t, account.EligibilityCheckedAt)
}

func TestVerifierCachesNegativeVerdict(t *testing.T) {
	store := memory.New()
	store.PutAccount(&escrow.Account{ID: "u1", PlatformID: "765-u1"})
	api := &fakeAPI{bans: &BanSummary{EconomyBan: "none", VACBanned: true}}

	v := NewVerifier(api, store, observability.NewLogger("test"))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return base }

	ctx := context.Background()
	eligible, reason, err := v.IsEligibleToSell(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, eligible)
	assert.NotEmpty(t, reason)

	v.now = func() time.Time { return base.Add(time.Hour) }
	eligible, reason, err = v.IsEligibleToSell(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, eligible)
	assert.NotEmpty(t, reason)
	assert.Equal(t, 1, api.calls, "negative verdicts cache too")
}

func TestVerifierAPIFailure(t *testing.T) {
	store := memory.New()
	store.PutAccount(&escrow.Account{ID: "u1", PlatformID: "765-u1"})
	api := &fakeAPI{err: errors.New("platform unavailable")}

	v := NewVerifier(api, store, observability.NewLogger("test"))
	_, _, err := v.IsEligibleToSell(context.Background(), "u1")
	assert.Error(t, err)
}

func TestVerifierUnknownAccount(t *testing.T) {
	v := NewVerifier(&fakeAPI{bans: cleanRecord()}, memory.New(), observability.NewLogger("test"))
	_, _, err := v.IsEligibleToSell(context.Background(), "ghost")
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}
