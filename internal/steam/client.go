// Package steam integrates with the external trading platform. The escrow
// core consumes only the eligibility verdict; delivery itself happens
// off-band through the buyer's trade link.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// BanSummary is the platform's account standing for a player.
type BanSummary struct {
	EconomyBan      string
	VACBanned       bool
	CommunityBanned bool
}

// Eligible applies the marketplace rule: any ban disqualifies the seller.
func (b BanSummary) Eligible() bool {
	return b.EconomyBan == "none" && !b.VACBanned && !b.CommunityBanned
}

// API is the subset of the platform web API the marketplace needs.
type API interface {
	GetPlayerBans(ctx context.Context, platformID string) (*BanSummary, error)
}

// Client calls the Steam Web API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	base := os.Getenv("STEAM_API_URL")
	if base == "" {
		base = "https://api.steampowered.com"
	}
	return &Client{
		apiKey:  os.Getenv("STEAM_API_KEY"),
		baseURL: base,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) GetPlayerBans(ctx context.Context, platformID string) (*BanSummary, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamids", platformID)

	endpoint := c.baseURL + "/ISteamUser/GetPlayerBans/v1/?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player bans request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player bans request: status %d", resp.StatusCode)
	}

	var out struct {
		Players []struct {
			EconomyBan      string `json:"EconomyBan"`
			VACBanned       bool   `json:"VACBanned"`
			CommunityBanned bool   `json:"CommunityBanned"`
		} `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Players) == 0 {
		return nil, fmt.Errorf("player %s not found on platform", platformID)
	}

	p := out.Players[0]
	return &BanSummary{
		EconomyBan:      p.EconomyBan,
		VACBanned:       p.VACBanned,
		CommunityBanned: p.CommunityBanned,
	}, nil
}
