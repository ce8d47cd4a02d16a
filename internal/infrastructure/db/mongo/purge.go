package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// userOwnedCollections hold documents that only reference their owner by
// userKey and are removed when a participant is deleted.
var userOwnedCollections = []string{
	"answers",
	collectionHealthData,
	"miband3Data",
	"qcstData",
	"smwtData",
	"po60Data",
	"peakFlowData",
	"positions",
	"tasksResults",
}

// UserDataPurger deletes a user's documents from the user-owned collections.
type UserDataPurger struct {
	db *mongo.Database
}

func NewUserDataPurger(db *mongo.Database) *UserDataPurger {
	return &UserDataPurger{db: db}
}

func (p *UserDataPurger) Collections() []string {
	return append([]string(nil), userOwnedCollections...)
}

func (p *UserDataPurger) DeleteByUser(ctx context.Context, collection, userKey string) (int64, error) {
	if userKey == "" {
		return 0, fmt.Errorf("purge %s: empty user key", collection)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := p.db.Collection(collection).DeleteMany(ctx, bson.M{"userKey": userKey})
	if err != nil {
		return 0, storeErr("purge "+collection, err)
	}
	return res.DeletedCount, nil
}
