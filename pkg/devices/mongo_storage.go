package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const tokenCollection = "device_tokens"

// MongoStorage persists device tokens in a MongoDB collection. The provider
// token value carries a unique index, so Upsert is keyed on it and stat
// updates use atomic field operators instead of read-modify-write.
type MongoStorage struct {
	coll *mongo.Collection
}

// NewMongoStorage creates the storage and ensures its indexes exist.
func NewMongoStorage(ctx context.Context, db *mongo.Database) (*MongoStorage, error) {
	coll := db.Collection(tokenCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "active", Value: 1}, {Key: "last_seen_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("devices: failed to create indexes: %w", err)
	}

	return &MongoStorage{coll: coll}, nil
}

func (s *MongoStorage) Upsert(ctx context.Context, tok *Token) error {
	filter := bson.M{"token": tok.Token}
	update := bson.M{
		"$set": bson.M{
			"worker_id":    tok.WorkerID,
			"platform":     tok.Platform,
			"app_version":  tok.AppVersion,
			"os_version":   tok.OSVersion,
			"device_id":    tok.DeviceID,
			"active":       tok.Active,
			"last_seen_at": tok.LastSeenAt,
			"preferences":  tok.Preferences,
			"updated_at":   tok.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        tok.ID,
			"token":      tok.Token,
			"stats":      Stats{},
			"created_at": tok.CreatedAt,
		},
	}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("devices: upsert failed: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindByToken(ctx context.Context, token string) (*Token, error) {
	var tok Token
	err := s.coll.FindOne(ctx, bson.M{"token": token}).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("devices: find failed: %w", err)
	}
	return &tok, nil
}

func (s *MongoStorage) FindActiveByWorker(ctx context.Context, workerID string) ([]Token, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_seen_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"worker_id": workerID, "active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("devices: find by worker failed: %w", err)
	}
	defer cur.Close(ctx)

	var out []Token
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("devices: decode failed: %w", err)
	}
	return out, nil
}

func (s *MongoStorage) ApplyOutcome(ctx context.Context, token string, success bool, at time.Time) (*Token, error) {
	update := bson.M{
		"$inc": bson.M{"stats.sent": 1},
		"$set": bson.M{"updated_at": at},
	}
	if success {
		update["$inc"].(bson.M)["stats.delivered"] = 1
		update["$set"].(bson.M)["stats.consecutive_failures"] = 0
		update["$set"].(bson.M)["stats.last_success_at"] = at
	} else {
		update["$inc"].(bson.M)["stats.failed"] = 1
		update["$inc"].(bson.M)["stats.consecutive_failures"] = 1
		update["$set"].(bson.M)["stats.last_failure_at"] = at
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var tok Token
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"token": token}, update, opts).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("devices: apply outcome failed: %w", err)
	}
	return &tok, nil
}

func (s *MongoStorage) SetActive(ctx context.Context, token string, active bool) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"token": token}, bson.M{
		"$set": bson.M{"active": active, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("devices: set active failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *MongoStorage) DeactivateOthers(ctx context.Context, workerID, keepToken string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx, bson.M{
		"worker_id": workerID,
		"active":    true,
		"token":     bson.M{"$ne": keepToken},
	}, bson.M{
		"$set": bson.M{"active": false, "updated_at": time.Now()},
	})
	if err != nil {
		return 0, fmt.Errorf("devices: deactivate others failed: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStorage) DeleteStale(ctx context.Context, cutoff time.Time, maxConsecutiveFailures int) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"active": false},
			bson.M{"last_seen_at": bson.M{"$lt": cutoff}},
			bson.M{"stats.consecutive_failures": bson.M{"$gte": maxConsecutiveFailures}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("devices: delete stale failed: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStorage) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"active":       true,
		"last_seen_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("devices: count active failed: %w", err)
	}
	return n, nil
}

func (s *MongoStorage) Counts(ctx context.Context) (total, active int64, err error) {
	total, err = s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, fmt.Errorf("devices: count failed: %w", err)
	}
	active, err = s.coll.CountDocuments(ctx, bson.M{"active": true})
	if err != nil {
		return 0, 0, fmt.Errorf("devices: count failed: %w", err)
	}
	return total, active, nil
}
