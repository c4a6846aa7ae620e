package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cart-gateway/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3API is the subset of *s3.Client the s3 store needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// NewS3Client loads the default AWS configuration for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// s3Store keeps each cart as a JSON object under <prefix><hash>.json.
type s3Store struct {
	client S3API
	bucket string
	prefix string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewS3Store creates an S3-backed store.
func NewS3Store(client S3API, bucket, prefix string, logger zerolog.Logger) Store {
	logger = logger.With().Str("component", "s3-cart-store").Logger()

	logger.Info().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Msg("S3 cart store initialised")

	return &s3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

func (s *s3Store) objectKey(key string) string {
	return s.prefix + hashKey(key) + ".json"
}

func (s *s3Store) Load(ctx context.Context, key string) *model.Cart {
	return loadOrEmpty(ctx, s, key, s.logger)
}

func (s *s3Store) fetch(ctx context.Context, key string) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objectKey := s.objectKey(key)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return model.NewCart(), nil
		}
		return nil, fmt.Errorf("failed to get object from S3 (bucket=%s, key=%s): %w", s.bucket, objectKey, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object %s: %w", objectKey, err)
	}
	return decode(data)
}

func (s *s3Store) Save(ctx context.Context, key string, cart *model.Cart) error {
	data, err := encode(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objectKey := s.objectKey(key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("bucket", s.bucket).
			Str("key", objectKey).
			Msg("failed to put cart object")
		return fmt.Errorf("failed to put object to S3 (bucket=%s, key=%s): %w", s.bucket, objectKey, err)
	}
	return nil
}

func (s *s3Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objectKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3 (bucket=%s, key=%s): %w", s.bucket, objectKey, err)
	}
	return nil
}
