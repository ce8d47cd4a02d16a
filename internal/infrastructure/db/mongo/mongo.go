package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// Collection names shared with the rest of the platform.
const (
	collectionUsers        = "users"
	collectionParticipants = "participants"
	collectionHealthData   = "healthStoreData"
	collectionAuditLogs    = "auditlogs"
	collectionTeams        = "teams"
	collectionStudies      = "studies"
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping, and
// returns both the client and the selected database. A default timeout is
// applied when none is provided.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return client, db, nil
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// indexes back ErrUserExists and ErrParticipantExists.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		collectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionParticipants: {
			{Keys: bson.D{{Key: "userKey", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "studies.studyKey", Value: 1}}},
			{Keys: bson.D{{Key: "pendingDeletion", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		collectionHealthData: {
			{Keys: bson.D{{Key: "userKey", Value: 1}, {Key: "studyKey", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "pendingSince", Value: 1}}},
		},
		collectionAuditLogs: {
			{Keys: bson.D{{Key: "userKey", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collectionTeams: {
			{Keys: bson.D{{Key: "researchersKeys", Value: 1}}},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// newKey returns a fresh document key.
func newKey() string {
	return primitive.NewObjectID().Hex()
}

// storeErr tags a driver failure with the StoreUnavailable class while keeping
// the driver error inspectable.
func storeErr(op string, err error) error {
	if classified(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// classified reports whether err already carries one of the domain outcome classes.
func classified(err error) bool {
	for _, class := range []error{
		domain.ErrNotFound, domain.ErrConflict, domain.ErrInvalidPayload,
		domain.ErrForbidden, domain.ErrStoreUnavailable,
	} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}
