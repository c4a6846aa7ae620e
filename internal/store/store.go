// Package store persists cart snapshots outside the process so a guest cart
// survives restarts and an authenticated cart has a fallback when the backend
// is unreachable.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"cart-gateway/internal/model"

	"github.com/rs/zerolog"
)

// Store is a durable key-value home for cart snapshots, one entry per cart
// key. Implementations serialize their own operations, so concurrent saves
// for a key never interleave.
type Store interface {
	// Load returns the cart stored under key. It never fails: a missing or
	// unreadable entry yields an empty cart, and a corrupt entry is replaced
	// by the next Save.
	Load(ctx context.Context, key string) *model.Cart

	// Save replaces the entry under key with cart.
	Save(ctx context.Context, key string, cart *model.Cart) error

	// Clear removes the entry under key. Clearing a missing entry is not an error.
	Clear(ctx context.Context, key string) error
}

// snapshot is the persisted form of a cart.
type snapshot struct {
	Version int              `json:"version"`
	Items   []model.CartItem `json:"items"`
	SavedAt time.Time        `json:"savedAt"`
}

const snapshotVersion = 1

func encode(cart *model.Cart) ([]byte, error) {
	items := []model.CartItem{}
	if cart != nil {
		items = cart.Items
	}
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Items: items, SavedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*model.Cart, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode cart snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported cart snapshot version %d", snap.Version)
	}
	cart := &model.Cart{Items: snap.Items, UpdatedAt: snap.SavedAt}
	cart.Normalize()
	return cart, nil
}

// fetcher is implemented by every store: fetch returns an empty cart for a
// missing entry and an error when the entry exists but cannot be read.
type fetcher interface {
	fetch(ctx context.Context, key string) (*model.Cart, error)
}

// loadOrEmpty adapts fetch to the never-failing Load contract.
func loadOrEmpty(ctx context.Context, f fetcher, key string, logger zerolog.Logger) *model.Cart {
	cart, err := f.fetch(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key_hash", hashKey(key)).Msg("unreadable cart snapshot, starting empty")
		return model.NewCart()
	}
	return cart
}

// hashKey maps an arbitrary cart key onto a name safe for file systems and
// object stores.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
