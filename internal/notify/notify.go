// Package notify delivers trade lifecycle notifications through an asynq
// queue so the HTTP request path never waits on email delivery.
package notify

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"skinmarket/internal/escrow"
	"skinmarket/internal/observability"
)

// Notifier enqueues trade events. It satisfies the escrow service's
// notifier contract; delivery happens in the worker, not the caller.
type Notifier struct {
	client *asynq.Client
	server *asynq.Server
	log    zerolog.Logger
}

// redisAddr resolves the Redis address from the environment, preferring the
// explicit REDIS_ADDR, then REDIS_HOST/REDIS_PORT, then the compose default.
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		return host + ":" + port
	}
	if os.Getenv("RUN_LOCAL") == "true" {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

// Init connects the client and starts the worker server in the background.
func Init() *Notifier {
	log := observability.NewLogger("notify")
	opts := asynq.RedisClientOpt{Addr: redisAddr()}

	n := &Notifier{
		client: asynq.NewClient(opts),
		log:    log,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTradeCreated, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeSent, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeCompleted, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeDisputed, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeResolved, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeExpired, n.handleTradeEvent)
	mux.HandleFunc(TaskTradeCancelled, n.handleTradeEvent)

	n.server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"emails": 10,
		},
	})
	go func() {
		if err := n.server.Run(mux); err != nil {
			log.Error().Err(err).Msg("asynq server stopped")
		}
	}()

	log.Info().Str("addr", redisAddr()).Msg("notification queue initialized")
	return n
}

// Close releases the client and stops the worker.
func (n *Notifier) Close() {
	if n.client != nil {
		_ = n.client.Close()
	}
	if n.server != nil {
		n.server.Shutdown()
	}
}

// NotifyTrade enqueues one lifecycle event for a trade.
func (n *Notifier) NotifyTrade(ctx context.Context, event escrow.TradeEvent, t *escrow.Trade) error {
	payload := TradePayload{
		TradeID:  t.ID,
		BuyerID:  t.BuyerID,
		SellerID: t.SellerID,
		ItemName: t.ItemName,
		Amount:   t.Amount,
		Status:   string(t.Status),
		Message:  t.StatusMessage,
		SentAt:   time.Now(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(string(event), b)
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue("emails"))
	return err
}
