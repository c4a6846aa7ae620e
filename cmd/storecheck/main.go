// Command storecheck verifies that the configured cart store is reachable by
// writing, reading back and clearing a probe cart.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cart-gateway/internal/config"
	"cart-gateway/internal/model"
	"cart-gateway/internal/store"

	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := config.NewLogger(cfg.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("unable to open %s store: %w", cfg.Store.Backend, err)
	}
	defer closeStore()

	key := "probe:" + uuid.NewString()
	probe := &model.Cart{Items: []model.CartItem{
		{ID: "probe-1", ProductID: "probe", Name: "Probe", Price: 1, Quantity: 1},
	}}

	if err := st.Save(ctx, key, probe); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	got := st.Load(ctx, key)
	if len(got.Items) != 1 || got.Items[0].ID != "probe-1" {
		return fmt.Errorf("probe cart did not round-trip through the %s store", cfg.Store.Backend)
	}
	if err := st.Clear(ctx, key); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}

	fmt.Printf("Successfully reached %s cart store\n", cfg.Store.Backend)
	return nil
}
