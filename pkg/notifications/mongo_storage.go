package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const notificationCollection = "notifications"

// MongoStorage persists notifications in a MongoDB collection. Status
// transitions are enforced inside the update filter, so two concurrent
// workers cannot both move the same record.
type MongoStorage struct {
	coll *mongo.Collection
}

// NewMongoStorage creates the storage and ensures its indexes exist.
func NewMongoStorage(ctx context.Context, db *mongo.Database) (*MongoStorage, error) {
	coll := db.Collection(notificationCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "attempts", Value: 1}, {Key: "last_attempt_at", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("notifications: failed to create indexes: %w", err)
	}

	return &MongoStorage{coll: coll}, nil
}

func (s *MongoStorage) Create(ctx context.Context, n *Notification) error {
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("notifications: create failed: %w", err)
	}
	return nil
}

func (s *MongoStorage) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notifications: get failed: %w", err)
	}
	return &n, nil
}

func (s *MongoStorage) RecordAttempt(ctx context.Context, id string, status Status, at time.Time) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": allowedSources(status)},
	}
	update := bson.M{
		"$set": bson.M{
			"status":          status,
			"last_attempt_at": at,
			"updated_at":      at,
		},
		"$inc": bson.M{"attempts": 1},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("notifications: record attempt failed: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing record from a forbidden transition.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *MongoStorage) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": allowedSources(StatusDelivered)},
	}
	update := bson.M{
		"$set": bson.M{"status": StatusDelivered, "updated_at": at},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("notifications: mark delivered failed: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *MongoStorage) Requeue(ctx context.Context, id string, maxAttempts int) error {
	filter := bson.M{
		"_id":      id,
		"status":   StatusFailed,
		"attempts": bson.M{"$lt": maxAttempts},
	}
	update := bson.M{
		"$set": bson.M{"status": StatusPending, "updated_at": time.Now()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("notifications: requeue failed: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotRequeueable
	}
	return nil
}

func (s *MongoStorage) CountByStatusSince(ctx context.Context, statuses []Status, since time.Time) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"status":     bson.M{"$in": statuses},
		"created_at": bson.M{"$gt": since},
	})
	if err != nil {
		return 0, fmt.Errorf("notifications: count failed: %w", err)
	}
	return n, nil
}

func (s *MongoStorage) CountRetryQueue(ctx context.Context, maxAttempts int, attemptedSince time.Time) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"status":          StatusFailed,
		"attempts":        bson.M{"$lt": maxAttempts},
		"last_attempt_at": bson.M{"$gt": attemptedSince},
	})
	if err != nil {
		return 0, fmt.Errorf("notifications: count retry queue failed: %w", err)
	}
	return n, nil
}

func (s *MongoStorage) FindRequeueable(ctx context.Context, maxAttempts int, idleBefore time.Time, limit int) ([]Notification, error) {
	filter := bson.M{
		"status":   StatusFailed,
		"attempts": bson.M{"$lt": maxAttempts},
		"$or": bson.A{
			bson.M{"last_attempt_at": bson.M{"$lt": idleBefore}},
			bson.M{"last_attempt_at": nil},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_attempt_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("notifications: find requeueable failed: %w", err)
	}
	defer cur.Close(ctx)

	var out []Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("notifications: decode failed: %w", err)
	}
	return out, nil
}

// allowedSources returns the statuses that may legally move to target,
// including target itself so repeated attempts can re-stamp the same status.
func allowedSources(target Status) []Status {
	sources := []Status{target}
	for _, from := range []Status{StatusPending, StatusSent, StatusDelivered, StatusFailed} {
		if from != target && CanTransition(from, target) {
			sources = append(sources, from)
		}
	}
	return sources
}
