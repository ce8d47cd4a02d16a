package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// ListParticipantsInput carries the optional listing filters.
type ListParticipantsInput struct {
	TeamKey       string
	StudyKey      string
	CurrentStatus string
}

// ParticipantService covers profile, enrollment and consent operations. Every
// method authorizes the actor before touching the stores.
type ParticipantService interface {
	Create(ctx context.Context, actor access.Actor, profile domain.Profile) (*domain.Participant, error)
	Get(ctx context.Context, actor access.Actor, participantKey string) (*domain.Participant, error)
	GetByUserKey(ctx context.Context, actor access.Actor, userKey string) (*domain.Participant, error)
	List(ctx context.Context, actor access.Actor, in ListParticipantsInput) ([]*domain.Participant, error)
	UpdateProfile(ctx context.Context, actor access.Actor, userKey string, profile domain.Profile) (*domain.Participant, error)
	// UpdateEnrollment applies a status block; a nil payload removes the enrollment.
	UpdateEnrollment(ctx context.Context, actor access.Actor, userKey, studyKey string, payload *domain.StudyEnrollment) (*domain.Participant, error)
	UpdateTaskConsent(ctx context.Context, actor access.Actor, userKey, studyKey string, taskID int, payload domain.TaskItemConsent) (*domain.Participant, error)
	Delete(ctx context.Context, actor access.Actor, participantKey string) error
	DeleteByUserKey(ctx context.Context, actor access.Actor, userKey string) error
	StatusStats(ctx context.Context, actor access.Actor, studyKey string) ([]domain.StatusCount, error)
}

// DeletionService runs the cascading participant deletion job.
type DeletionService interface {
	DeleteParticipant(ctx context.Context, actorKey string, p *domain.Participant) error
	// ResumePending finishes jobs interrupted after the participant was flagged.
	ResumePending(ctx context.Context) (int, error)
}
