package store

import (
	"context"
	"fmt"

	"cart-gateway/internal/config"
	"cart-gateway/internal/database"

	"github.com/rs/zerolog"
)

// Open builds the store selected by cfg and returns a func releasing its
// connections. Remote stores are mirrored to the file store when local
// fallback is enabled.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, func(), error) {
	noop := func() {}

	var files Store
	if cfg.Store.Backend == config.StoreFile || cfg.Store.LocalFallback {
		fs, err := NewFileStore(cfg.Store.Dir, logger)
		if err != nil {
			return nil, noop, err
		}
		files = fs
	}

	var (
		primary Store
		closer  = noop
	)
	switch cfg.Store.Backend {
	case config.StoreFile:
		return files, noop, nil

	case config.StoreRedis:
		rdb, err := ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, err
		}
		primary = NewRedisStore(rdb, cfg.Redis.TTL, logger)
		closer = func() { rdb.Close() }

	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, noop, err
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, err
		}
		primary = NewPostgresStore(pool, logger)
		closer = pool.Close

	case config.StoreS3:
		client, err := NewS3Client(ctx, cfg.S3.Region)
		if err != nil {
			return nil, noop, err
		}
		primary = NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, logger)

	default:
		return nil, noop, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}

	if files == nil {
		return primary, closer, nil
	}

	logger.Info().
		Str("primary", string(cfg.Store.Backend)).
		Str("fallback_dir", cfg.Store.Dir).
		Msg("cart store mirrors to local files")
	return NewFallbackStore(primary, files, logger), closer, nil
}
