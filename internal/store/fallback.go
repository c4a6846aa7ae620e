package store

import (
	"context"

	"cart-gateway/internal/model"

	"github.com/rs/zerolog"
)

// fallbackStore writes through to a primary and a secondary store. Reads use
// the secondary when the primary cannot be read, has nothing for the key, or
// holds an older copy, as happens after saves made during a primary outage.
type fallbackStore struct {
	primary   Store
	secondary Store
	logger    zerolog.Logger
}

// NewFallbackStore combines a remote primary (S3, Redis, PostgreSQL) with a
// local secondary, typically the file store. Saves go to both; a primary
// save error is returned after the secondary has been written.
func NewFallbackStore(primary, secondary Store, logger zerolog.Logger) Store {
	return &fallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "fallback-cart-store").Logger(),
	}
}

func (s *fallbackStore) Load(ctx context.Context, key string) *model.Cart {
	return loadOrEmpty(ctx, s, key, s.logger)
}

func (s *fallbackStore) fetch(ctx context.Context, key string) (*model.Cart, error) {
	cart, err := fetchFrom(ctx, s.primary, key)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("failed to load from primary store, falling back to secondary")
		return fetchFrom(ctx, s.secondary, key)
	}

	local, err := fetchFrom(ctx, s.secondary, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load from secondary store")
		return cart, nil
	}
	if newer(local, cart) {
		s.logger.Info().
			Time("primary_updated_at", cart.UpdatedAt).
			Time("secondary_updated_at", local.UpdatedAt).
			Msg("secondary store holds a newer cart, using it")
		return local, nil
	}
	return cart, nil
}

// newer reports whether a should win over b: it has lines and b is empty or
// was written earlier.
func newer(a, b *model.Cart) bool {
	if a.IsEmpty() {
		return false
	}
	return b.IsEmpty() || a.UpdatedAt.After(b.UpdatedAt)
}

func fetchFrom(ctx context.Context, st Store, key string) (*model.Cart, error) {
	if f, ok := st.(fetcher); ok {
		return f.fetch(ctx, key)
	}
	return st.Load(ctx, key), nil
}

func (s *fallbackStore) Save(ctx context.Context, key string, cart *model.Cart) error {
	if err := s.secondary.Save(ctx, key, cart); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save to secondary store")
	}
	return s.primary.Save(ctx, key, cart)
}

func (s *fallbackStore) Clear(ctx context.Context, key string) error {
	if err := s.secondary.Clear(ctx, key); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear secondary store")
	}
	return s.primary.Clear(ctx, key)
}
