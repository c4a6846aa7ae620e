package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cart-gateway/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// DB is the subset of *pgxpool.Pool the postgres store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const cartSchema = `
	CREATE TABLE IF NOT EXISTS cart_snapshots (
		cart_key   VARCHAR(64) PRIMARY KEY,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// postgresStore keeps each cart as a JSONB row keyed by the hashed cart key.
type postgresStore struct {
	db     DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewPostgresStore creates a PostgreSQL-backed store. Call EnsureSchema once
// before first use.
func NewPostgresStore(db DB, logger zerolog.Logger) Store {
	return &postgresStore{
		db:     db,
		logger: logger.With().Str("component", "postgres-cart-store").Logger(),
	}
}

// EnsureSchema creates the cart_snapshots table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, cartSchema); err != nil {
		return fmt.Errorf("failed to create cart_snapshots table: %w", err)
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context, key string) *model.Cart {
	return loadOrEmpty(ctx, s, key, s.logger)
}

func (s *postgresStore) fetch(ctx context.Context, key string) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT payload
		FROM cart_snapshots
		WHERE cart_key = $1
	`

	var payload []byte
	err := s.db.QueryRow(ctx, query, hashKey(key)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewCart(), nil
		}
		return nil, fmt.Errorf("failed to query cart snapshot: %w", err)
	}
	return decode(payload)
}

func (s *postgresStore) Save(ctx context.Context, key string, cart *model.Cart) error {
	data, err := encode(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cart_snapshots (cart_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cart_key) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.Exec(ctx, query, hashKey(key), data); err != nil {
		s.logger.Error().Err(err).Msg("failed to save cart snapshot")
		return fmt.Errorf("failed to save cart snapshot: %w", err)
	}
	return nil
}

func (s *postgresStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(ctx, `DELETE FROM cart_snapshots WHERE cart_key = $1`, hashKey(key)); err != nil {
		return fmt.Errorf("failed to clear cart snapshot: %w", err)
	}
	return nil
}
