package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PurchasesTotal counts trades created from active listings.
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinmarket_purchases_total",
		Help: "Trades created from active listings.",
	})

	// TradesCompletedTotal counts buyer-confirmed completions.
	TradesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinmarket_trades_completed_total",
		Help: "Trades completed by buyer confirmation.",
	})

	// TradesExpiredTotal counts trades auto-resolved by the deadline sweep.
	TradesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinmarket_trades_expired_total",
		Help: "Trades expired by the deadline sweep.",
	})

	// TradesDisputedTotal counts disputes opened by buyers.
	TradesDisputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinmarket_trades_disputed_total",
		Help: "Trades moved into dispute by the buyer.",
	})

	// DisputesResolvedTotal counts arbiter resolutions, labelled by outcome.
	DisputesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinmarket_disputes_resolved_total",
		Help: "Disputes resolved by an arbiter.",
	}, []string{"outcome"})

	// LedgerEntriesTotal counts ledger entries written, labelled by type.
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinmarket_ledger_entries_total",
		Help: "Wallet ledger entries recorded.",
	}, []string{"type"})

	// SweepRunsTotal counts deadline sweep passes.
	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinmarket_sweep_runs_total",
		Help: "Deadline sweep passes executed.",
	})
)
