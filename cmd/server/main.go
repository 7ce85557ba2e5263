package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/auth"
	"github.com/ksred/otc-settlement/internal/config"
	"github.com/ksred/otc-settlement/internal/database"
	"github.com/ksred/otc-settlement/internal/escrow"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/oracle"
	"github.com/ksred/otc-settlement/internal/orders"
	"github.com/ksred/otc-settlement/internal/settings"
	"github.com/ksred/otc-settlement/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the settlement API server with graceful shutdown
// support. It wires the access, oracle, config, ledger, order and escrow
// services together and hands the escrow opener capability to the order book.
func main() {
	cfg := config.New()

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	// Demo credentials for the platform owner; production deployments would
	// load these from a credential store.
	authService.RegisterAPICredentials("test_api_key", "test_api_secret", cfg.OwnerAddress)
	authHandlers := auth.NewGinHandlers(authService)

	accessService := access.NewService(db)
	if err := accessService.Bootstrap(cfg.OwnerAddress); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap owner")
	}
	accessHandlers := access.NewGinHandlers(accessService)

	oracleService := oracle.NewService(db, accessService)
	oracleHandlers := oracle.NewGinHandlers(oracleService)

	settingsService := settings.NewService(db, accessService, oracleService)
	settingsHandlers := settings.NewGinHandlers(settingsService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	recorder := events.NewRecorder(db)

	escrowService := escrow.NewService(db, settingsService, accessService, ledgerService, recorder, nil)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	var quoter orders.Quoter
	if cfg.PricingMode == config.PricingModePair {
		quoter = orders.NewPairQuoter(settingsService)
	} else {
		quoter = orders.NewSymbolQuoter(settingsService)
	}

	ordersService := orders.NewService(
		db,
		accessService,
		settingsService,
		ledgerService,
		escrowService,
		escrowService.OpenerCapability(),
		recorder,
		quoter,
	)
	ordersHandlers := orders.NewGinHandlers(ordersService)

	// Start the audit event publisher when a broker is configured; events stay
	// in the outbox table as the durable audit log either way.
	publisherCtx, publisherCancel := context.WithCancel(context.Background())
	defer publisherCancel()
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		publisher := events.NewPublisher(db, nc, cfg.NATSSubject)
		go publisher.Start(publisherCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, accessHandlers, oracleHandlers,
		settingsHandlers, ledgerHandlers, ordersHandlers, escrowHandlers)

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order/trade/ledger routes: Protected by JWT authentication
// - Admin and config routes: JWT plus owner/admin checks inside the services
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	accessHandlers *access.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
	settingsHandlers *settings.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			orderGroup.POST("", ordersHandlers.CreateOrderHandler())
			orderGroup.GET("/:order_id", ordersHandlers.GetOrderHandler())
			orderGroup.POST("/:order_id/cancel", ordersHandlers.CancelOrderHandler())
			orderGroup.POST("/:order_id/take", ordersHandlers.TakeOrderHandler())
		}

		// Trade settlement routes
		tradeGroup := v1.Group("/trades")
		tradeGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			tradeGroup.GET("/:trade_id", escrowHandlers.GetTradeHandler())
			tradeGroup.POST("/:trade_id/delivery", escrowHandlers.SubmitDeliveryHandler())
			tradeGroup.POST("/:trade_id/confirm", escrowHandlers.ConfirmReceiptHandler())
			tradeGroup.POST("/:trade_id/reject", escrowHandlers.RejectReceiptHandler())
		}

		// Ledger routes
		ledgerGroup := v1.Group("/ledger")
		ledgerGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ledgerGroup.POST("/deposits", ledgerHandlers.DepositHandler())
			ledgerGroup.GET("/balances/:currency", ledgerHandlers.GetBalanceHandler())
		}

		// Admin routes (admin/owner checks happen inside the services)
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			adminGroup.POST("/trades/:trade_id/release", escrowHandlers.ForceReleaseHandler())
			adminGroup.POST("/trades/:trade_id/refund", escrowHandlers.ForceRefundHandler())
			adminGroup.POST("/accounts/:address/flags", accessHandlers.SetFlagsHandler())
			adminGroup.POST("/admins/:address", accessHandlers.SetAdminHandler())
			adminGroup.POST("/ownership", accessHandlers.TransferOwnershipHandler())
		}

		// Configuration routes (owner-only inside the services)
		configGroup := v1.Group("/config")
		configGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			configGroup.POST("/fee", settingsHandlers.SetFeeHandler())
			configGroup.POST("/spread", settingsHandlers.SetSpreadHandler())
			configGroup.POST("/treasury", settingsHandlers.SetTreasuryHandler())
			configGroup.POST("/escrow-account", settingsHandlers.SetEscrowAccountHandler())
			configGroup.POST("/quote-tokens", settingsHandlers.SetQuoteTokenHandler())
			configGroup.POST("/assets", settingsHandlers.SetAssetHandler())
		}

		// Oracle routes (owner-only inside the service)
		oracleGroup := v1.Group("/oracle")
		oracleGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			oracleGroup.POST("/feeds", oracleHandlers.CreateFeedHandler())
			oracleGroup.POST("/feeds/:ref/rounds", oracleHandlers.PostRoundHandler())
		}
	}
}
