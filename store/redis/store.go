package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ballasthq/ballast"
)

// Ensure Store implements the driver boundary at compile time.
var _ ballast.Driver = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a Redis backing store for the ballast write path.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Begin opens a MULTI/EXEC pipeline. Commands queue client-side and land
// atomically on Commit.
func (s *Store) Begin(ctx context.Context) (ballast.Tx, error) {
	return &redisTx{pipe: s.client.TxPipeline()}, nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
