package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/config"
	"cart-gateway/internal/events"
	"cart-gateway/internal/handler"
	"cart-gateway/internal/middleware"
	"cart-gateway/internal/pricing"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/router"
	"cart-gateway/internal/session"
	"cart-gateway/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting cart gateway")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cartStore, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cart store: %w", err)
	}
	defer closeStore()

	client, err := remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %w", err)
	}

	var opts []cart.Option
	var notifier *events.Notifier
	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		notifier = events.NewNotifier(nc, logger)
		opts = append(opts, cart.WithObserver(notifier.Attach))
	} else {
		logger.Info().Msg("NATS URL not set, settled carts will not be published")
	}

	manager := cart.NewManager(
		func(s *session.Session) cart.Remote { return client.ForSession(s) },
		cartStore,
		logger,
		opts...,
	)
	go manager.Run(ctx, time.Minute, cfg.Server.SessionIdle)

	rule := pricing.ShippingRule{
		FreeThreshold: cfg.Pricing.FreeShippingThreshold,
		FlatAmount:    cfg.Pricing.FlatShippingAmount,
	}
	coupons := handler.CouponsFor(client, logger)
	cartHandler := handler.NewCartHandler(manager, coupons, rule, cfg.Pricing.Currency, logger)
	checkoutHandler := handler.NewCheckoutHandler(manager, handler.CheckoutsFor(client, rule, cfg.Pricing.Currency, logger), coupons, logger)

	limiter := middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	// Initialize router
	mux := router.New(cartHandler, checkoutHandler, limiter, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("backend", cfg.Backend.BaseURL).
			Str("store", string(cfg.Store.Backend)).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		// Closing the reconcilers ends their subscriptions, which lets the
		// notifier drain before the NATS connection is closed.
		manager.Close()
		if notifier != nil {
			notifier.Wait()
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
