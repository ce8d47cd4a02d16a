package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// StudyDirectory resolves study and team descriptions owned by other modules.
type StudyDirectory interface {
	Study(ctx context.Context, studyKey string) (*domain.Study, error)
	// StudyKeysForTeam returns the studies run by a team.
	StudyKeysForTeam(ctx context.Context, teamKey string) ([]string, error)
	// StudyKeysForResearcher returns the studies run by any team of the researcher.
	StudyKeysForResearcher(ctx context.Context, researcherKey string) ([]string, error)
}
