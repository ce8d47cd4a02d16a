package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// ParticipantFilter carries the query parameters for listing participants.
type ParticipantFilter struct {
	// StudyKeys limits results to participants enrolled in any of these
	// studies. nil means no restriction; an empty non-nil slice matches nothing.
	StudyKeys     []string
	CurrentStatus string // optional, applied to the matching enrollments
}

// ParticipantRepository defines persistence operations for participants.
type ParticipantRepository interface {
	Create(ctx context.Context, p *domain.Participant) (*domain.Participant, error)
	FindByKey(ctx context.Context, key string) (*domain.Participant, error)
	FindByUserKey(ctx context.Context, userKey string) (*domain.Participant, error)
	List(ctx context.Context, filter ParticipantFilter) ([]*domain.Participant, error)
	// Replace overwrites the stored participant when its version still equals
	// p.Version, storing p.Version+1. A stale version yields domain.ErrVersionConflict.
	// The caller is responsible for bumping p.Version after a successful commit.
	Replace(ctx context.Context, p *domain.Participant) error
	// SetPendingDeletion flags the participant so an interrupted deletion can resume.
	SetPendingDeletion(ctx context.Context, key string) error
	ListPendingDeletion(ctx context.Context) ([]*domain.Participant, error)
	// Delete removes the participant; deleting a missing participant is not an error.
	Delete(ctx context.Context, key string) error
	StatusCounts(ctx context.Context, studyKey string) ([]domain.StatusCount, error)
}
