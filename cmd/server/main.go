package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/vellum/internal"
	"github.com/dukerupert/vellum/internal/email"
	"github.com/dukerupert/vellum/internal/events"
	"github.com/dukerupert/vellum/internal/handler"
	"github.com/dukerupert/vellum/internal/handler/webhook"
	"github.com/dukerupert/vellum/internal/jobs"
	"github.com/dukerupert/vellum/internal/middleware"
	"github.com/dukerupert/vellum/internal/notify"
	"github.com/dukerupert/vellum/internal/payment"
	"github.com/dukerupert/vellum/internal/postgres"
	"github.com/dukerupert/vellum/internal/pricing"
	"github.com/dukerupert/vellum/internal/router"
	"github.com/dukerupert/vellum/internal/routes"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/shipping"
	"github.com/dukerupert/vellum/internal/sms"
	"github.com/dukerupert/vellum/internal/telemetry"
	"github.com/dukerupert/vellum/internal/verify"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Initialize pgx connection pool for application
	pool, err := postgres.NewPool(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Stores
	orderStore := postgres.NewOrderStore(pool)
	sessionStore := postgres.NewSessionStore(pool)
	challengeStore := postgres.NewChallengeStore(pool)

	// Metrics
	telemetry.InitBusinessMetrics("vellum")
	metrics := middleware.NewMetrics("vellum")

	// Payment gateway
	gateway := payment.NewClient(cfg.PayU.Key, cfg.PayU.Salt, cfg.PayU.BaseURL)

	// Shipping: the real carrier when credentials are configured, flat rates
	// otherwise and as the quote fallback either way.
	fallback := shipping.NewFlatRateProvider(shipping.DefaultFlatRates())
	carrier := fallback
	if cfg.Carrier.Email != "" && cfg.Carrier.Password != "" {
		sr, err := shipping.NewShiprocketProvider(shipping.ShiprocketConfig{
			BaseURL:   cfg.Carrier.BaseURL,
			Email:     cfg.Carrier.Email,
			Password:  cfg.Carrier.Password,
			ChannelID: cfg.Carrier.ChannelID,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize carrier provider: %w", err)
		}
		carrier = sr
	} else {
		logger.Warn("Carrier credentials not configured, using flat-rate shipping only")
	}

	// Message senders. Each channel is optional; verification on a channel
	// without a sender is refused at request time.
	mailer := email.NewSMTPSender(&email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     int(cfg.Email.Port),
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	}, logger)

	var smsSender sms.Sender
	if cfg.SMS.Fast2SMSKey != "" {
		smsSender, err = sms.NewFast2SMSSender(sms.Fast2SMSConfig{APIKey: cfg.SMS.Fast2SMSKey, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to initialize sms sender: %w", err)
		}
	}

	var whatsappSender sms.Sender
	if cfg.SMS.WhatsAppPhoneID != "" && cfg.SMS.WhatsAppToken != "" {
		whatsappSender, err = sms.NewWhatsAppSender(sms.WhatsAppConfig{
			PhoneID: cfg.SMS.WhatsAppPhoneID,
			Token:   cfg.SMS.WhatsAppToken,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize whatsapp sender: %w", err)
		}
	}

	// Event publisher
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer nc.Close()
		publisher = nc
	}

	// Services
	verifyService := verify.NewService(verify.Config{
		Challenges: challengeStore,
		Sessions:   sessionStore,
		SMS:        smsSender,
		WhatsApp:   whatsappSender,
		Email:      mailer,
		StoreName:  cfg.Store.Name,
		Logger:     logger,
	})

	notifier := notify.New(notify.Config{
		Email:         mailer,
		WhatsApp:      whatsappSender,
		StoreName:     cfg.Store.Name,
		OperatorEmail: cfg.Store.OperatorEmail,
		Logger:        logger,
	})

	cartService := service.NewCartService(sessionStore, pricing.DefaultPolicy(), logger)
	fulfiller := service.NewFulfiller(orderStore, carrier, cfg.Store.PickupPincode, logger)
	checkoutService := service.NewCheckoutService(service.CheckoutConfig{
		Orders:        orderStore,
		Sessions:      sessionStore,
		Gateway:       gateway,
		Carrier:       carrier,
		Fallback:      fallback,
		Fulfiller:     fulfiller,
		Notifier:      notifier,
		Publisher:     publisher,
		Policy:        pricing.DefaultPolicy(),
		BaseURL:       cfg.BaseURL,
		PickupPincode: cfg.Store.PickupPincode,
		StoreName:     cfg.Store.Name,
		Logger:        logger,
	})

	// Background reclamation of abandoned orders and expired codes
	sweeper := jobs.NewSweeper(orderStore, challengeStore, jobs.SweeperConfig{
		Interval: cfg.Sweeper.Interval,
		MaxAge:   cfg.Sweeper.MaxAge,
	}, logger)
	go func() {
		if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	// ==========================================================================
	// Build route dependencies
	// ==========================================================================

	sessions := handler.NewSessions(sessionStore, cfg.Env == "prod")

	storefrontDeps := routes.StorefrontDeps{
		Cart:        handler.NewCartHandler(cartService, sessions),
		Verify:      handler.NewVerifyHandler(verifyService, sessions, cfg.SMS.CountryPrefix),
		Checkout:    handler.NewCheckoutHandler(checkoutService, fulfiller, orderStore, sessions),
		SendLimiter: middleware.NewRateLimiter(middleware.StrictRateLimiterConfig()),
	}

	webhookDeps := routes.WebhookDeps{
		Payment: webhook.NewPaymentHandler(checkoutService, cfg.BaseURL),
		Carrier: webhook.NewCarrierHandler(fulfiller, cfg.Carrier.WebhookToken),
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer defaultRateLimiter.Stop()
	defer storefrontDeps.SendLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		defaultRateLimiter.Middleware,
		router.Logger(logger),
		middleware.WithRequestLogger(logger),
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	routes.RegisterStorefrontRoutes(r, storefrontDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
