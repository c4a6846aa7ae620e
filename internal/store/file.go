package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"cart-gateway/internal/model"

	"github.com/rs/zerolog"
)

// fileStore keeps one JSON file per cart key under dir.
type fileStore struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileStore creates a file-backed store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger zerolog.Logger) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &fileStore{
		dir:    dir,
		logger: logger.With().Str("component", "file-cart-store").Logger(),
	}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, hashKey(key)+".json")
}

// Load reads the cart file for key.
func (s *fileStore) Load(ctx context.Context, key string) *model.Cart {
	return loadOrEmpty(ctx, s, key, s.logger)
}

func (s *fileStore) fetch(ctx context.Context, key string) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewCart(), nil
		}
		return nil, fmt.Errorf("failed to read cart file: %w", err)
	}
	return decode(data)
}

// Save writes the cart to a temporary file and renames it into place.
func (s *fileStore) Save(ctx context.Context, key string, cart *model.Cart) error {
	data, err := encode(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".cart-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cart file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cart file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cart file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cart file: %w", err)
	}

	s.logger.Debug().Str("key_hash", hashKey(key)).Msg("cart saved")
	return nil
}

// Clear removes the cart file for key.
func (s *fileStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cart file: %w", err)
	}
	return nil
}
