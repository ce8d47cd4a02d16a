package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// DeletionDeps groups the stores a participant deletion touches.
type DeletionDeps struct {
	Participants ports.ParticipantRepository
	Users        ports.UserRepository
	Attachments  ports.AttachmentStore
	Purger       ports.UserDataPurger
	Audit        ports.AuditTrail
}

// DeletionService removes a participant and everything that belongs to them.
// The participant is flagged first and deleted last, so an interrupted job
// can always be found and resumed. Every step tolerates already-deleted data.
type DeletionService struct {
	participants ports.ParticipantRepository
	users        ports.UserRepository
	attachments  ports.AttachmentStore
	purger       ports.UserDataPurger
	audit        ports.AuditTrail
	log          zerolog.Logger
}

func NewDeletionService(deps DeletionDeps, log zerolog.Logger) *DeletionService {
	return &DeletionService{
		participants: deps.Participants,
		users:        deps.Users,
		attachments:  deps.Attachments,
		purger:       deps.Purger,
		audit:        deps.Audit,
		log:          log.With().Str("component", "deletion").Logger(),
	}
}

func (s *DeletionService) DeleteParticipant(ctx context.Context, actorKey string, p *domain.Participant) error {
	log := s.log.With().Str("participant_key", p.Key).Str("user_key", p.UserKey).Logger()

	if !p.PendingDeletion {
		if err := s.participants.SetPendingDeletion(ctx, p.Key); err != nil {
			return fmt.Errorf("delete participant %s: flag: %w", p.Key, err)
		}
		p.PendingDeletion = true
	}

	n, err := s.attachments.DeleteAllForUser(ctx, p.UserKey)
	if err != nil {
		return fmt.Errorf("delete participant %s: attachments: %w", p.Key, err)
	}
	log.Debug().Int("count", n).Msg("attachments deleted")

	for _, collection := range s.purger.Collections() {
		n, err := s.purger.DeleteByUser(ctx, collection, p.UserKey)
		if err != nil {
			return fmt.Errorf("delete participant %s: %s: %w", p.Key, collection, err)
		}
		log.Debug().Str("collection", collection).Int64("count", n).Msg("user data purged")
	}

	if err := s.participants.Delete(ctx, p.Key); err != nil {
		return fmt.Errorf("delete participant %s: %w", p.Key, err)
	}
	if err := s.users.Delete(ctx, p.UserKey); err != nil {
		return fmt.Errorf("delete participant %s: user: %w", p.Key, err)
	}

	log.Info().Msg("participant deleted")
	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditParticipantDeleted,
		ActorKey:   actorKey,
		Message:    "participant and all their data deleted",
		Collection: "participants",
		EntityKey:  p.Key,
	})
	return nil
}

// ResumePending finishes every deletion job that was started but not completed.
func (s *DeletionService) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.participants.ListPendingDeletion(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume deletions: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, p := range pending {
		if err := s.DeleteParticipant(ctx, "", p); err != nil {
			s.log.Error().Err(err).Str("participant_key", p.Key).Msg("resumed deletion failed")
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}
