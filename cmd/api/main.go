package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skinmarket/internal/admin"
	"skinmarket/internal/db"
	"skinmarket/internal/escrow"
	"skinmarket/internal/marketplace"
	appmw "skinmarket/internal/middleware"
	"skinmarket/internal/notify"
	"skinmarket/internal/observability"
	"skinmarket/internal/payment"
	"skinmarket/internal/steam"
	"skinmarket/internal/store/postgres"
	"skinmarket/internal/wallet"
)

func main() {
	_ = godotenv.Load()
	log := observability.NewLogger("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	store := postgres.New(pool)
	notifier := notify.Init()
	defer notifier.Close()

	verifier := steam.NewVerifier(steam.NewClient(), store, observability.NewLogger("steam"))
	escrowSvc := escrow.NewService(store, verifier, notifier, observability.NewLogger("escrow"))
	walletSvc := wallet.NewService(store, payment.NewTestGateway(), observability.NewLogger("wallet"))

	sweeper := escrow.NewSweeper(escrowSvc, escrow.DefaultSweepInterval, observability.NewLogger("sweep"))
	go sweeper.Run(ctx)

	marketH := marketplace.NewHandler(escrowSvc)
	walletH := wallet.NewHandler(walletSvc)
	adminH := admin.NewHandler(escrowSvc, sweeper)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public discovery and gateway callbacks
	e.GET("/marketplace/listings", marketH.ListListings)
	e.POST("/webhooks/payments", walletH.GatewayWebhook)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWT)

	g.POST("/marketplace/listings", marketH.CreateListing)
	g.POST("/marketplace/listings/:id/purchase", marketH.Purchase)
	g.GET("/marketplace/trades", marketH.ListTrades)
	g.GET("/marketplace/trades/:id", marketH.GetTrade)
	g.POST("/marketplace/trades/:id/offer", marketH.TradeOffer)
	g.POST("/marketplace/trades/:id/sent", marketH.MarkAsSent)
	g.POST("/marketplace/trades/:id/confirm", marketH.ConfirmReceipt)
	g.POST("/marketplace/trades/:id/dispute", marketH.Dispute)
	g.POST("/marketplace/trades/:id/cancel", marketH.Cancel)

	g.GET("/wallet/balance", walletH.Balance)
	g.GET("/wallet/transactions", walletH.Transactions)
	g.POST("/wallet/deposits/init", walletH.InitDeposit)
	g.POST("/wallet/deposits/:id/confirm", walletH.ConfirmDeposit)
	g.POST("/wallet/withdrawals", walletH.Withdraw)

	// Arbiter routes
	arbiterGroup := e.Group("/admin")
	arbiterGroup.Use(appmw.JWT)
	arbiterGroup.Use(appmw.ArbiterGuard)
	arbiterGroup.GET("/disputes", adminH.ListDisputes)
	arbiterGroup.GET("/disputes/:id", adminH.GetDispute)
	arbiterGroup.POST("/disputes/:id/resolve", adminH.ResolveDispute)
	arbiterGroup.POST("/sweep/run", adminH.RunSweep)
	arbiterGroup.GET("/accounts/:id/audit", adminH.AuditAccount)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", port).Msg("API server listening")
	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
