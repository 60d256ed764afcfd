package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlayerBans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/GetPlayerBans/v1/", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "765-u1", r.URL.Query().Get("steamids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"players":[{"EconomyBan":"none","VACBanned":false,"CommunityBanned":true}]}`))
	}))
	defer srv.Close()

	c := &Client{apiKey: "test-key", baseURL: srv.URL, client: srv.Client()}
	bans, err := c.GetPlayerBans(context.Background(), "765-u1")
	require.NoError(t, err)
	assert.Equal(t, "none", bans.EconomyBan)
	assert.False(t, bans.VACBanned)
	assert.True(t, bans.CommunityBanned)
	assert.False(t, bans.Eligible())
}

func TestGetPlayerBansUnknownPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"players":[]}`))
	}))
	defer srv.Close()

	c := &Client{apiKey: "test-key", baseURL: srv.URL, client: srv.Client()}
	_, err := c.GetPlayerBans(context.Background(), "765-missing")
	assert.Error(t, err)
}

func TestGetPlayerBansHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{apiKey: "bad-key", baseURL: srv.URL, client: srv.Client()}
	_, err := c.GetPlayerBans(context.Background(), "765-u1")
	assert.Error(t, err)
}
