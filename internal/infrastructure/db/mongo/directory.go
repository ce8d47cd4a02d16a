package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// Directory reads the teams and studies collections owned by the study
// management side of the platform. It answers both the study lookups and the
// researcher relationship questions.
type Directory struct {
	teams        *mongo.Collection
	studies      *mongo.Collection
	participants *mongo.Collection
}

func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{
		teams:        db.Collection(collectionTeams),
		studies:      db.Collection(collectionStudies),
		participants: db.Collection(collectionParticipants),
	}
}

func (d *Directory) Study(ctx context.Context, studyKey string) (*domain.Study, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s domain.Study
	if err := d.studies.FindOne(ctx, bson.M{"_id": studyKey}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrStudyNotFound
		}
		return nil, storeErr("find study", err)
	}
	return &s, nil
}

func (d *Directory) Team(ctx context.Context, teamKey string) (*domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t domain.Team
	if err := d.teams.FindOne(ctx, bson.M{"_id": teamKey}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, storeErr("find team", err)
	}
	return &t, nil
}

func (d *Directory) TeamsForResearcher(ctx context.Context, researcherKey, studyKey string) ([]domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"researchersKeys": researcherKey}
	if studyKey != "" {
		filter["studiesKeys"] = studyKey
	}
	cursor, err := d.teams.Find(ctx, filter)
	if err != nil {
		return nil, storeErr("find teams", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Team
	if err := cursor.All(ctx, &out); err != nil {
		return nil, storeErr("decode teams", err)
	}
	return out, nil
}

func (d *Directory) StudyKeysForTeam(ctx context.Context, teamKey string) ([]string, error) {
	t, err := d.Team(ctx, teamKey)
	if err != nil {
		return nil, err
	}
	return t.StudiesKeys, nil
}

func (d *Directory) StudyKeysForResearcher(ctx context.Context, researcherKey string) ([]string, error) {
	teams, err := d.TeamsForResearcher(ctx, researcherKey, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	keys := []string{}
	for _, t := range teams {
		for _, k := range t.StudiesKeys {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// IsResearcherLinkedToParticipant reports whether the participant is enrolled
// in at least one study run by a team of the researcher.
func (d *Directory) IsResearcherLinkedToParticipant(ctx context.Context, researcherKey string, ref access.ParticipantRef) (bool, error) {
	studyKeys, err := d.StudyKeysForResearcher(ctx, researcherKey)
	if err != nil || len(studyKeys) == 0 {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"studies.studyKey": bson.M{"$in": studyKeys}}
	switch {
	case ref.ParticipantKey != "":
		filter["_id"] = ref.ParticipantKey
	case ref.UserKey != "":
		filter["userKey"] = ref.UserKey
	default:
		return false, nil
	}

	n, err := d.participants.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, storeErr("check researcher link", err)
	}
	return n > 0, nil
}
