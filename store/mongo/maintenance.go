package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// expiringCollections are swept purely by their expire_at field.
var expiringCollections = []string{colCounters, colSets, colLists, colHashes}

// SweepExpired deletes every document whose expire_at has passed. Expired
// jobs take their state history with them. Returns the number of documents
// removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	expired := bson.D{{Key: "expire_at", Value: bson.D{{Key: "$lte", Value: now}}}}
	var total int64

	for _, col := range expiringCollections {
		res, err := s.db.Collection(col).DeleteMany(ctx, expired)
		if err != nil {
			return total, fmt.Errorf("ballast/mongo: sweep %s: %w", col, err)
		}
		total += res.DeletedCount
	}

	// History documents first, while the expired jobs are still visible.
	cur, err := s.db.Collection(colJobs).Find(ctx, expired,
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return total, fmt.Errorf("ballast/mongo: find expired jobs: %w", err)
	}

	var jobIDs []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if decErr := cur.Decode(&doc); decErr != nil {
			cur.Close(ctx)
			return total, fmt.Errorf("ballast/mongo: decode expired job: %w", decErr)
		}
		jobIDs = append(jobIDs, doc.ID)
	}
	if cerr := cur.Err(); cerr != nil {
		cur.Close(ctx)
		return total, fmt.Errorf("ballast/mongo: iterate expired jobs: %w", cerr)
	}
	cur.Close(ctx)

	if len(jobIDs) == 0 {
		return total, nil
	}

	res, err := s.db.Collection(colJobStates).DeleteMany(ctx,
		bson.D{{Key: "job_id", Value: bson.D{{Key: "$in", Value: jobIDs}}}})
	if err != nil {
		return total, fmt.Errorf("ballast/mongo: sweep job states: %w", err)
	}
	total += res.DeletedCount

	res, err = s.db.Collection(colJobs).DeleteMany(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: jobIDs}}}})
	if err != nil {
		return total, fmt.Errorf("ballast/mongo: sweep jobs: %w", err)
	}
	total += res.DeletedCount

	return total, nil
}

// AggregateCounters folds at most limit counter delta documents, preserving
// each key's sum. Never-expiring deltas fold into a document that stays
// never-expiring; expiring deltas fold into a document carrying their latest
// expiry. Returns the number of documents folded. The fold runs in a
// transaction so readers never observe a partially folded key.
func (s *Store) AggregateCounters(ctx context.Context, limit int) (int64, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("ballast/mongo: aggregate: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var folded int64
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		folded = 0

		cur, err := s.db.Collection(colCounters).Find(ctx, bson.D{},
			options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit)))
		if err != nil {
			return nil, err
		}

		// Never-expiring deltas fold separately from expiring ones so the
		// next sweep cannot take a permanent contribution with it.
		type class struct {
			key      string
			expiring bool
		}
		type fold struct {
			sum    int64
			expire *time.Time
		}
		folds := make(map[class]*fold)
		order := make([]class, 0)
		var doomed []bson.ObjectID

		for cur.Next(ctx) {
			var doc struct {
				ID       bson.ObjectID `bson:"_id"`
				Key      string        `bson:"key"`
				Value    int64         `bson:"value"`
				ExpireAt *time.Time    `bson:"expire_at,omitempty"`
			}
			if decErr := cur.Decode(&doc); decErr != nil {
				cur.Close(ctx)
				return nil, decErr
			}

			c := class{key: doc.Key, expiring: doc.ExpireAt != nil}
			f, ok := folds[c]
			if !ok {
				f = &fold{}
				folds[c] = f
				order = append(order, c)
			}
			f.sum += doc.Value
			if doc.ExpireAt != nil && (f.expire == nil || doc.ExpireAt.After(*f.expire)) {
				f.expire = doc.ExpireAt
			}
			doomed = append(doomed, doc.ID)
		}
		if cerr := cur.Err(); cerr != nil {
			cur.Close(ctx)
			return nil, cerr
		}
		cur.Close(ctx)

		if len(doomed) == 0 {
			return nil, nil
		}

		if _, err := s.db.Collection(colCounters).DeleteMany(ctx,
			bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: doomed}}}}); err != nil {
			return nil, err
		}

		docs := make([]any, 0, len(order))
		for _, c := range order {
			f := folds[c]
			doc := bson.D{
				{Key: "key", Value: c.key},
				{Key: "value", Value: f.sum},
			}
			if f.expire != nil {
				doc = append(doc, bson.E{Key: "expire_at", Value: *f.expire})
			}
			docs = append(docs, doc)
		}
		if _, err := s.db.Collection(colCounters).InsertMany(ctx, docs); err != nil {
			return nil, err
		}

		folded = int64(len(doomed))
		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("ballast/mongo: aggregate counters: %w", err)
	}
	return folded, nil
}
