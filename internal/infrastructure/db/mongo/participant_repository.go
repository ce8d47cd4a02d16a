package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

type ParticipantRepository struct {
	col *mongo.Collection
}

func NewParticipantRepository(db *mongo.Database) *ParticipantRepository {
	return &ParticipantRepository{col: db.Collection(collectionParticipants)}
}

// Create inserts a new participant document with version 0.
func (r *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) (*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := *p
	if doc.Key == "" {
		doc.Key = newKey()
	}
	if doc.Studies == nil {
		doc.Studies = []domain.StudyEnrollment{}
	}
	doc.Version = 0

	if _, err := r.col.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrParticipantExists
		}
		return nil, storeErr("insert participant", err)
	}
	return &doc, nil
}

func (r *ParticipantRepository) FindByKey(ctx context.Context, key string) (*domain.Participant, error) {
	return r.findOne(ctx, bson.M{"_id": key})
}

func (r *ParticipantRepository) FindByUserKey(ctx context.Context, userKey string) (*domain.Participant, error) {
	return r.findOne(ctx, bson.M{"userKey": userKey})
}

// List returns participants that are not being deleted. With CurrentStatus
// set, a participant matches only when one of the selected enrollments has
// that status.
func (r *ParticipantRepository) List(ctx context.Context, f ports.ParticipantFilter) ([]*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"pendingDeletion": bson.M{"$ne": true}}
	enrollment := bson.M{}
	if f.StudyKeys != nil {
		enrollment["studyKey"] = bson.M{"$in": f.StudyKeys}
	}
	if f.CurrentStatus != "" {
		enrollment["currentStatus"] = f.CurrentStatus
	}
	if len(enrollment) > 0 {
		filter["studies"] = bson.M{"$elemMatch": enrollment}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdTS", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list participants", err)
	}
	defer cursor.Close(ctx)

	out := []*domain.Participant{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, storeErr("decode participants", err)
	}
	return out, nil
}

// Replace writes p when the stored version still equals p.Version.
func (r *ParticipantRepository) Replace(ctx context.Context, p *domain.Participant) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := *p
	doc.Version = p.Version + 1

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.Key, "version": p.Version}, &doc)
	if err != nil {
		return storeErr("replace participant", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrStale(ctx, p.Key)
	}
	return nil
}

func (r *ParticipantRepository) SetPendingDeletion(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"pendingDeletion": true},
		"$inc": bson.M{"version": 1},
	}
	if _, err := r.col.UpdateByID(ctx, key, update); err != nil {
		return storeErr("flag participant", err)
	}
	return nil
}

func (r *ParticipantRepository) ListPendingDeletion(ctx context.Context) ([]*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cursor, err := r.col.Find(ctx, bson.M{"pendingDeletion": true})
	if err != nil {
		return nil, storeErr("list pending deletions", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Participant
	if err := cursor.All(ctx, &out); err != nil {
		return nil, storeErr("decode participants", err)
	}
	return out, nil
}

func (r *ParticipantRepository) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return storeErr("delete participant", err)
	}
	return nil
}

// StatusCounts groups the enrollments of studyKey by currentStatus.
func (r *ParticipantRepository) StatusCounts(ctx context.Context, studyKey string) ([]domain.StatusCount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"pendingDeletion": bson.M{"$ne": true}, "studies.studyKey": studyKey}}},
		{{Key: "$unwind", Value: "$studies"}},
		{{Key: "$match", Value: bson.M{"studies.studyKey": studyKey}}},
		{{Key: "$group", Value: bson.M{"_id": "$studies.currentStatus", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("status counts", err)
	}
	defer cursor.Close(ctx)

	out := []domain.StatusCount{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, storeErr("decode status counts", err)
	}
	return out, nil
}

func (r *ParticipantRepository) findOne(ctx context.Context, filter bson.M) (*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var p domain.Participant
	if err := r.col.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, storeErr("find participant", err)
	}
	return &p, nil
}

func (r *ParticipantRepository) missingOrStale(ctx context.Context, key string) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return storeErr("replace participant", err)
	}
	if n == 0 {
		return domain.ErrParticipantNotFound
	}
	return domain.ErrVersionConflict
}
