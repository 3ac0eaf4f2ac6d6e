package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const auditCollection = "audit_records"

// MongoStorage persists audit records in a MongoDB collection.
type MongoStorage struct {
	coll *mongo.Collection
}

// NewMongoStorage creates the storage and ensures the query indexes exist.
func NewMongoStorage(ctx context.Context, db *mongo.Database) (*MongoStorage, error) {
	coll := db.Collection(auditCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "notification_id", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("auditlog: failed to create indexes: %w", err)
	}

	return &MongoStorage{coll: coll}, nil
}

func (s *MongoStorage) Append(ctx context.Context, rec Record) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *MongoStorage) Query(ctx context.Context, criteria Criteria) ([]Record, error) {
	filter := criteriaFilter(criteria)

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if criteria.Limit > 0 {
		opts.SetLimit(int64(criteria.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return out, nil
}

func (s *MongoStorage) CountByEvent(ctx context.Context, event EventType, since time.Time) (int64, error) {
	filter := bson.M{
		"event":      event,
		"created_at": bson.M{"$gte": since},
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

func (s *MongoStorage) AverageDuration(ctx context.Context, event EventType, since time.Time) (time.Duration, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"event":      event,
			"created_at": bson.M{"$gte": since},
			"duration":   bson.M{"$gt": 0},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"avg": bson.M{"$avg": "$duration"},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	defer cur.Close(ctx)

	var result struct {
		Avg float64 `bson:"avg"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&result); err != nil {
			return 0, errors.Join(ErrStorageUnavailable, err)
		}
	}
	return time.Duration(result.Avg), nil
}

func (s *MongoStorage) PurgeOlderThan(ctx context.Context, event EventType, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"event":      event,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return res.DeletedCount, nil
}

func criteriaFilter(c Criteria) bson.M {
	filter := bson.M{}
	if c.Event != "" {
		filter["event"] = c.Event
	}
	if c.WorkerID != "" {
		filter["worker_id"] = c.WorkerID
	}
	if c.NotificationID != "" {
		filter["notification_id"] = c.NotificationID
	}
	created := bson.M{}
	if !c.Since.IsZero() {
		created["$gte"] = c.Since
	}
	if !c.Until.IsZero() {
		created["$lte"] = c.Until
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}
