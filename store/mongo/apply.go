package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ballasthq/ballast"
)

// mongoTx adapts a session-scoped multi-document transaction to ballast.Tx.
type mongoTx struct {
	sess *mongo.Session
	db   *mongo.Database
}

// Exec is unsupported: MongoDB takes no SQL, so custom queue providers
// cannot run statements against this backend.
func (t *mongoTx) Exec(ctx context.Context, query string, args ...any) error {
	return ballast.ErrConnUnsupported
}

// Commit commits the transaction and ends the session.
func (t *mongoTx) Commit(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	if err := t.sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("ballast/mongo: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and ends the session.
func (t *mongoTx) Rollback(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	if err := t.sess.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("ballast/mongo: abort: %w", err)
	}
	return nil
}

func (t *mongoTx) col(name string) *mongo.Collection {
	return t.db.Collection(name)
}

// Apply interprets one command as session-scoped document operations.
func (t *mongoTx) Apply(ctx context.Context, cmd ballast.Command) error {
	ctx = mongo.NewSessionContext(ctx, t.sess)
	var err error

	switch c := cmd.(type) {
	case ballast.JobExpire:
		_, err = t.col(colJobs).UpdateOne(ctx,
			bson.D{{Key: "_id", Value: c.JobID}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "expire_at", Value: c.ExpireAt}}}})

	case ballast.JobPersist:
		_, err = t.col(colJobs).UpdateOne(ctx,
			bson.D{{Key: "_id", Value: c.JobID}},
			bson.D{{Key: "$unset", Value: bson.D{{Key: "expire_at", Value: ""}}}})

	case ballast.JobSetState:
		err = t.setJobState(ctx, c)

	case ballast.StateAdd:
		_, err = t.col(colJobStates).InsertOne(ctx,
			stateDoc(c.JobID, c.Name, c.Reason, c.Data, c.CreatedAt))

	case ballast.QueueAdd:
		_, err = t.col(colJobQueue).InsertOne(ctx, bson.D{
			{Key: "queue", Value: c.Queue},
			{Key: "job_id", Value: c.JobID},
		})

	case ballast.CounterAdd:
		doc := bson.D{
			{Key: "key", Value: c.Key},
			{Key: "value", Value: c.Delta},
		}
		if c.ExpireAt != nil {
			doc = append(doc, bson.E{Key: "expire_at", Value: *c.ExpireAt})
		}
		_, err = t.col(colCounters).InsertOne(ctx, doc)

	case ballast.SetAdd:
		_, err = t.col(colSets).UpdateOne(ctx,
			bson.D{{Key: "key", Value: c.Key}, {Key: "value", Value: c.Value}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "score", Value: c.Score}}}},
			upsert())

	case ballast.SetAddRange:
		if len(c.Values) == 0 {
			return nil
		}
		models := make([]mongo.WriteModel, 0, len(c.Values))
		for _, v := range c.Values {
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "key", Value: c.Key}, {Key: "value", Value: v}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "score", Value: float64(0)}}}}).
				SetUpsert(true))
		}
		_, err = t.col(colSets).BulkWrite(ctx, models)

	case ballast.SetRemove:
		_, err = t.col(colSets).DeleteOne(ctx,
			bson.D{{Key: "key", Value: c.Key}, {Key: "value", Value: c.Value}})

	case ballast.SetExpire:
		_, err = t.col(colSets).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "expire_at", Value: c.ExpireAt}}}})

	case ballast.SetPersist:
		_, err = t.col(colSets).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$unset", Value: bson.D{{Key: "expire_at", Value: ""}}}})

	case ballast.SetDelete:
		_, err = t.col(colSets).DeleteMany(ctx, bson.D{{Key: "key", Value: c.Key}})

	case ballast.ListInsert:
		_, err = t.col(colLists).InsertOne(ctx, bson.D{
			{Key: "key", Value: c.Key},
			{Key: "value", Value: c.Value},
		})

	case ballast.ListRemove:
		_, err = t.col(colLists).DeleteMany(ctx,
			bson.D{{Key: "key", Value: c.Key}, {Key: "value", Value: c.Value}})

	case ballast.ListTrim:
		err = t.trimList(ctx, c)

	case ballast.ListExpire:
		_, err = t.col(colLists).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "expire_at", Value: c.ExpireAt}}}})

	case ballast.ListPersist:
		_, err = t.col(colLists).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$unset", Value: bson.D{{Key: "expire_at", Value: ""}}}})

	case ballast.HashSetRange:
		if len(c.Fields) == 0 {
			return nil
		}
		models := make([]mongo.WriteModel, 0, len(c.Fields))
		for f, v := range c.Fields {
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "key", Value: c.Key}, {Key: "field", Value: f}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: v}}}}).
				SetUpsert(true))
		}
		_, err = t.col(colHashes).BulkWrite(ctx, models)

	case ballast.HashExpire:
		_, err = t.col(colHashes).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "expire_at", Value: c.ExpireAt}}}})

	case ballast.HashPersist:
		_, err = t.col(colHashes).UpdateMany(ctx,
			bson.D{{Key: "key", Value: c.Key}},
			bson.D{{Key: "$unset", Value: bson.D{{Key: "expire_at", Value: ""}}}})

	case ballast.HashDelete:
		_, err = t.col(colHashes).DeleteMany(ctx, bson.D{{Key: "key", Value: c.Key}})

	default:
		return fmt.Errorf("ballast/mongo: unknown command %T", cmd)
	}

	if err != nil {
		return fmt.Errorf("ballast/mongo: %s: %w", cmd.Kind(), err)
	}
	return nil
}

// setJobState inserts the history document, then repoints the job at it.
func (t *mongoTx) setJobState(ctx context.Context, c ballast.JobSetState) error {
	res, err := t.col(colJobStates).InsertOne(ctx,
		stateDoc(c.JobID, c.Name, c.Reason, c.Data, c.CreatedAt))
	if err != nil {
		return err
	}

	_, err = t.col(colJobs).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: c.JobID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "state_id", Value: res.InsertedID},
			{Key: "state_name", Value: c.Name},
		}}})
	return err
}

// trimList deletes every document for key outside the keep window, which
// is 0-based inclusive over insertion order.
func (t *mongoTx) trimList(ctx context.Context, c ballast.ListTrim) error {
	cur, err := t.col(colLists).Find(ctx,
		bson.D{{Key: "key", Value: c.Key}},
		sortByID())
	if err != nil {
		return err
	}

	var doomed []bson.ObjectID
	pos := 0
	for cur.Next(ctx) {
		var doc struct {
			ID bson.ObjectID `bson:"_id"`
		}
		if decErr := cur.Decode(&doc); decErr != nil {
			cur.Close(ctx)
			return decErr
		}
		if pos < c.KeepFrom || pos > c.KeepTo {
			doomed = append(doomed, doc.ID)
		}
		pos++
	}
	if cerr := cur.Err(); cerr != nil {
		cur.Close(ctx)
		return cerr
	}
	cur.Close(ctx)

	if len(doomed) == 0 {
		return nil
	}
	_, err = t.col(colLists).DeleteMany(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: doomed}}}})
	return err
}

func stateDoc(jobID, name, reason string, data []byte, createdAt time.Time) bson.D {
	doc := bson.D{
		{Key: "job_id", Value: jobID},
		{Key: "name", Value: name},
		{Key: "data", Value: data},
		{Key: "created_at", Value: createdAt},
	}
	if reason != "" {
		doc = append(doc, bson.E{Key: "reason", Value: reason})
	}
	return doc
}

func upsert() options.Lister[options.UpdateOneOptions] {
	return options.UpdateOne().SetUpsert(true)
}

func sortByID() options.Lister[options.FindOptions] {
	return options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
}
