package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestGateway talks to a mock payment server over HTTP. It stands in for the
// real provider in development and staging; the production build swaps in the
// provider-specific implementation behind the same interface.
type TestGateway struct {
	baseURL string
	client  *http.Client
}

func NewTestGateway() *TestGateway {
	base := os.Getenv("PAYMENT_GATEWAY_URL")
	if base == "" {
		base = "https://pay.skinmarket.dev/mock"
	}
	return &TestGateway{
		baseURL: base,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *TestGateway) CreateDepositSession(ctx context.Context, accountID string, amount decimal.Decimal) (*Session, error) {
	sessionID := uuid.New().String()
	body, _ := json.Marshal(map[string]string{
		"session_id": sessionID,
		"account_id": accountID,
		"amount":     amount.String(),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway session create: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway session create: status %d", resp.StatusCode)
	}

	return &Session{
		ID:     sessionID,
		URL:    g.baseURL + "/checkout/" + sessionID,
		Amount: amount,
	}, nil
}

func (g *TestGateway) ConfirmDepositSession(ctx context.Context, sessionID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway session confirm: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("gateway session confirm: status %d", resp.StatusCode)
	}

	var out struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.PaymentStatus == "paid", nil
}

func (g *TestGateway) CreatePayout(ctx context.Context, accountID string, amount decimal.Decimal, reference string) error {
	body, _ := json.Marshal(map[string]string{
		"account_id": accountID,
		"amount":     amount.String(),
		"reference":  reference,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway payout create: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway payout create: status %d", resp.StatusCode)
	}
	return nil
}
