package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cart-gateway/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisMaxRetries      = 3
	redisMinRetryBackoff = 100 * time.Millisecond
	redisMaxRetryBackoff = 300 * time.Millisecond
	redisDialTimeout     = 5 * time.Second
	redisReadTimeout     = 3 * time.Second
	redisWriteTimeout    = 3 * time.Second
)

// ConnectRedis connects to Redis and verifies the connection with a ping.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      redisMaxRetries,
		MinRetryBackoff: redisMinRetryBackoff,
		MaxRetryBackoff: redisMaxRetryBackoff,
		DialTimeout:     redisDialTimeout,
		ReadTimeout:     redisReadTimeout,
		WriteTimeout:    redisWriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// redisStore keeps each cart as a JSON string under cart:<key>.
type redisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store. A ttl of zero keeps entries forever.
func NewRedisStore(client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis-cart-store").Logger(),
	}
}

func redisKey(key string) string {
	return "cart:" + hashKey(key)
}

func (s *redisStore) Load(ctx context.Context, key string) *model.Cart {
	return loadOrEmpty(ctx, s, key, s.logger)
}

func (s *redisStore) fetch(ctx context.Context, key string) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.NewCart(), nil
		}
		return nil, fmt.Errorf("failed to read cart from redis: %w", err)
	}
	return decode(data)
}

func (s *redisStore) Save(ctx context.Context, key string, cart *model.Cart) error {
	data, err := encode(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart to redis: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart in redis: %w", err)
	}
	return nil
}
