package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
)

type relayConfig struct {
	URL    string
	APIKey string
}

var relayCfg relayConfig

// ConfigureRelayFromEnv loads the notification relay config.
// Required: NOTIFY_RELAY_URL; Optional: NOTIFY_RELAY_KEY
func ConfigureRelayFromEnv() error {
	relayCfg = relayConfig{
		URL:    os.Getenv("NOTIFY_RELAY_URL"),
		APIKey: os.Getenv("NOTIFY_RELAY_KEY"),
	}
	if relayCfg.URL == "" {
		return fmt.Errorf("relay not configured: set NOTIFY_RELAY_URL")
	}
	return nil
}

type relaySendBody struct {
	Recipient string `json:"recipient"`
	Event     string `json:"event"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// sendViaRelay posts one rendered notification to the relay service, which
// owns the actual channel (email, push, platform message).
func sendViaRelay(recipient, event, subject, body string) error {
	if relayCfg.URL == "" {
		if err := ConfigureRelayFromEnv(); err != nil {
			return err
		}
	}

	payload := relaySendBody{Recipient: recipient, Event: event, Subject: subject, Body: body}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", relayCfg.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if relayCfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+relayCfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errMsg string
		if b, readErr := io.ReadAll(resp.Body); readErr == nil && len(b) > 0 {
			errMsg = string(b)
		}
		if errMsg != "" {
			return fmt.Errorf("relay send failed: status=%d body=%s", resp.StatusCode, errMsg)
		}
		return fmt.Errorf("relay send failed: status=%d", resp.StatusCode)
	}
	return nil
}

// handleTradeEvent renders one lifecycle event and hands it to the relay.
// The recipient is the party that needs to act or be informed next.
func (n *Notifier) handleTradeEvent(_ context.Context, t *asynq.Task) error {
	var p TradePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}

	recipient := p.BuyerID
	subject := "Trade update"
	switch t.Type() {
	case TaskTradeCreated:
		recipient = p.SellerID
		subject = fmt.Sprintf("Your item %s has been purchased", p.ItemName)
	case TaskTradeSent:
		subject = fmt.Sprintf("Trade offer sent for %s", p.ItemName)
	case TaskTradeCompleted, TaskTradeExpired:
		recipient = p.SellerID
		subject = fmt.Sprintf("Sale of %s completed, %s credited", p.ItemName, p.Amount.StringFixed(2))
	case TaskTradeDisputed:
		recipient = p.SellerID
		subject = fmt.Sprintf("Trade for %s is under dispute", p.ItemName)
	case TaskTradeResolved:
		subject = fmt.Sprintf("Dispute over %s has been resolved", p.ItemName)
	case TaskTradeCancelled:
		recipient = p.SellerID
		subject = fmt.Sprintf("Trade for %s was cancelled", p.ItemName)
	}

	body := fmt.Sprintf("Trade %s: %s", p.TradeID, p.Message)
	if err := sendViaRelay(recipient, t.Type(), subject, body); err != nil {
		n.log.Error().Err(err).Str("trade_id", p.TradeID).Str("event", t.Type()).Msg("notification delivery failed")
		return err
	}
	n.log.Info().Str("trade_id", p.TradeID).Str("event", t.Type()).Str("recipient", recipient).Msg("notification delivered")
	return nil
}
