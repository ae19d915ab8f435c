package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ballasthq/ballast"
	"github.com/ballasthq/ballast/maintain"
)

// Collection name constants.
const (
	colJobs      = "ballast_jobs"
	colJobStates = "ballast_job_states"
	colCounters  = "ballast_counters"
	colSets      = "ballast_sets"
	colLists     = "ballast_lists"
	colHashes    = "ballast_hashes"
	colJobQueue  = "ballast_jobqueue"
)

// Ensure Store implements the driver and maintenance boundaries at
// compile time.
var (
	_ ballast.Driver      = (*Store)(nil)
	_ maintain.Maintainer = (*Store)(nil)
)

// Store is a MongoDB backing store for the ballast write path. The caller
// owns the *mongo.Client lifecycle; Store never disconnects it.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store over the named database.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		db:     client.Database(database),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying *mongo.Database for advanced usage.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Migrate creates the indexes every collection relies on.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ballast/mongo: create indexes for %s: %w", col, err)
		}
		s.logger.Info("created indexes", "collection", col, "count", len(models))
	}
	return nil
}

// Begin opens a session and starts a multi-document transaction.
func (s *Store) Begin(ctx context.Context) (ballast.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("ballast/mongo: start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("ballast/mongo: start transaction: %w", err)
	}
	return &mongoTx{sess: sess, db: s.db}, nil
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close is a no-op; the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

func migrationIndexes() map[string][]mongo.IndexModel {
	unique := options.Index().SetUnique(true)
	sparse := options.Index().SetSparse(true)

	return map[string][]mongo.IndexModel{
		colJobs: {
			{Keys: bson.D{{Key: "expire_at", Value: 1}}, Options: sparse},
		},
		colJobStates: {
			{Keys: bson.D{{Key: "job_id", Value: 1}}},
		},
		colCounters: {
			{Keys: bson.D{{Key: "key", Value: 1}}},
		},
		colSets: {
			{Keys: bson.D{{Key: "key", Value: 1}, {Key: "value", Value: 1}}, Options: unique},
		},
		colLists: {
			{Keys: bson.D{{Key: "key", Value: 1}}},
		},
		colHashes: {
			{Keys: bson.D{{Key: "key", Value: 1}, {Key: "field", Value: 1}}, Options: unique},
		},
		colJobQueue: {
			{Keys: bson.D{{Key: "queue", Value: 1}}},
		},
	}
}
