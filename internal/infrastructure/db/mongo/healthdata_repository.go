package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// HealthDataRepository stores health data metadata. Records are written
// pending and promoted to complete once their attachment is stored.
type HealthDataRepository struct {
	col *mongo.Collection
}

func NewHealthDataRepository(db *mongo.Database) *HealthDataRepository {
	return &HealthDataRepository{col: db.Collection(collectionHealthData)}
}

func (r *HealthDataRepository) CreatePending(ctx context.Context, rec *domain.HealthDataRecord) (*domain.HealthDataRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := *rec
	doc.Key = newKey()
	doc.Status = domain.RecordPending
	doc.Attachments = []string{}
	if doc.PendingSince == nil {
		now := time.Now().UTC()
		doc.PendingSince = &now
	}

	if _, err := r.col.InsertOne(ctx, &doc); err != nil {
		return nil, storeErr("insert health data", err)
	}
	return &doc, nil
}

func (r *HealthDataRepository) Complete(ctx context.Context, key string, attachments []string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": key, "status": domain.RecordPending}
	update := bson.M{
		"$set":   bson.M{"status": domain.RecordComplete, "attachments": attachments},
		"$unset": bson.M{"pendingSince": ""},
	}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("complete health data", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *HealthDataRepository) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return storeErr("delete health data", err)
	}
	return nil
}

func (r *HealthDataRepository) DeletePending(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": key, "status": domain.RecordPending})
	if err != nil {
		return false, storeErr("delete pending health data", err)
	}
	return res.DeletedCount == 1, nil
}

// List returns completed records only, newest first.
func (r *HealthDataRepository) List(ctx context.Context, f ports.HealthDataFilter) ([]*domain.HealthDataRecord, error) {
	filter := bson.M{"status": domain.RecordComplete}
	if f.UserKey != "" {
		filter["userKey"] = f.UserKey
	}
	if f.StudyKey != "" {
		filter["studyKey"] = f.StudyKey
	}
	out, err := r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdTS", Value: -1}}))
	if err != nil {
		return nil, storeErr("list health data", err)
	}
	return out, nil
}

func (r *HealthDataRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.HealthDataRecord, error) {
	filter := bson.M{"status": domain.RecordPending, "pendingSince": bson.M{"$lt": cutoff}}
	out, err := r.find(ctx, filter, options.Find().SetLimit(500))
	if err != nil {
		return nil, storeErr("list pending health data", err)
	}
	return out, nil
}

func (r *HealthDataRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.HealthDataRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*domain.HealthDataRecord{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
