package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// ParticipantDeps groups the collaborators of ParticipantService.
type ParticipantDeps struct {
	Participants ports.ParticipantRepository
	Users        ports.UserRepository
	Directory    ports.StudyDirectory
	Locker       ports.ParticipantLocker
	Guard        Authorizer
	Audit        ports.AuditTrail
	Notifier     ports.StatusChangeNotifier
	Deletion     ports.DeletionService
}

type ParticipantService struct {
	participants ports.ParticipantRepository
	users        ports.UserRepository
	directory    ports.StudyDirectory
	locker       ports.ParticipantLocker
	guard        Authorizer
	audit        ports.AuditTrail
	notifier     ports.StatusChangeNotifier
	deletion     ports.DeletionService
	now          func() time.Time
	log          zerolog.Logger
}

func NewParticipantService(deps ParticipantDeps, log zerolog.Logger) *ParticipantService {
	return &ParticipantService{
		participants: deps.Participants,
		users:        deps.Users,
		directory:    deps.Directory,
		locker:       deps.Locker,
		guard:        deps.Guard,
		audit:        deps.Audit,
		notifier:     deps.Notifier,
		deletion:     deps.Deletion,
		now:          systemClock(),
		log:          log.With().Str("component", "participants").Logger(),
	}
}

// Create registers the profile of the calling participant. Only participant
// actors own a profile, and only one.
func (s *ParticipantService) Create(ctx context.Context, actor access.Actor, profile domain.Profile) (*domain.Participant, error) {
	if actor.Role != domain.RoleParticipant {
		return nil, fmt.Errorf("%w: only participants can create a participant profile", domain.ErrForbidden)
	}
	if _, err := s.guard.Check(ctx, actor, access.OpWriteParticipant, access.Target{UserKey: actor.Key}); err != nil {
		return nil, err
	}

	existing, err := s.participants.FindByUserKey(ctx, actor.Key)
	switch {
	case err == nil && existing != nil:
		return nil, domain.ErrParticipantExists
	case err != nil && !errors.Is(err, domain.ErrParticipantNotFound):
		return nil, fmt.Errorf("create participant: %w", err)
	}

	now := s.now()
	p := &domain.Participant{
		UserKey:   actor.Key,
		Profile:   profile,
		Studies:   []domain.StudyEnrollment{},
		CreatedTS: now,
		UpdatedTS: now,
	}
	created, err := s.participants.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}

	s.log.Info().Str("user_key", actor.Key).Str("participant_key", created.Key).Msg("participant created")
	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditParticipantCreated,
		ActorKey:   actor.Key,
		Message:    "participant profile created",
		Collection: "participants",
		EntityKey:  created.Key,
	})
	return created, nil
}

// Get returns a participant by its key. Participants flagged for deletion are
// reported as not found.
func (s *ParticipantService) Get(ctx context.Context, actor access.Actor, participantKey string) (*domain.Participant, error) {
	p, err := s.participants.FindByKey(ctx, participantKey)
	if err != nil {
		return nil, err
	}
	if p.PendingDeletion {
		return nil, domain.ErrParticipantNotFound
	}
	target := access.Target{UserKey: p.UserKey, ParticipantKey: p.Key}
	if _, err := s.guard.Check(ctx, actor, access.OpReadParticipant, target); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ParticipantService) GetByUserKey(ctx context.Context, actor access.Actor, userKey string) (*domain.Participant, error) {
	if _, err := s.guard.Check(ctx, actor, access.OpReadParticipant, access.Target{UserKey: userKey}); err != nil {
		return nil, err
	}
	p, err := s.participants.FindByUserKey(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if p.PendingDeletion {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// List returns the participants visible to the actor. Participants only ever
// see their own profile.
func (s *ParticipantService) List(ctx context.Context, actor access.Actor, in ports.ListParticipantsInput) ([]*domain.Participant, error) {
	if actor.Role == domain.RoleParticipant {
		p, err := s.GetByUserKey(ctx, actor, actor.Key)
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return []*domain.Participant{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*domain.Participant{p}, nil
	}

	decision, err := s.guard.Check(ctx, actor, access.OpListParticipants, access.Target{
		StudyKey: in.StudyKey,
		TeamKey:  in.TeamKey,
	})
	if err != nil {
		return nil, err
	}

	filter := ports.ParticipantFilter{CurrentStatus: in.CurrentStatus}
	switch {
	case in.StudyKey != "":
		filter.StudyKeys = []string{in.StudyKey}
	case in.TeamKey != "":
		keys, err := s.directory.StudyKeysForTeam(ctx, in.TeamKey)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		filter.StudyKeys = nonNil(keys)
	case decision.Scope == access.ScopeTeams:
		keys, err := s.directory.StudyKeysForResearcher(ctx, actor.Key)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		filter.StudyKeys = nonNil(keys)
	}

	out, err := s.participants.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// UpdateProfile replaces the profile fields of the participant. Studies and
// creation time are left untouched.
func (s *ParticipantService) UpdateProfile(ctx context.Context, actor access.Actor, userKey string, profile domain.Profile) (*domain.Participant, error) {
	if _, err := s.guard.Check(ctx, actor, access.OpWriteParticipant, access.Target{UserKey: userKey}); err != nil {
		return nil, err
	}

	p, err := s.mutate(ctx, userKey, func(p *domain.Participant) (bool, error) {
		p.Profile = profile
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditParticipantUpdated,
		ActorKey:   actor.Key,
		Message:    "participant profile updated",
		Collection: "participants",
		EntityKey:  p.Key,
		Data:       profile,
	})
	return p, nil
}

// UpdateEnrollment applies a status block to the participant's enrollment in
// studyKey. A nil payload removes the enrollment. The participant is notified
// when the stored status actually changed.
func (s *ParticipantService) UpdateEnrollment(ctx context.Context, actor access.Actor, userKey, studyKey string, payload *domain.StudyEnrollment) (*domain.Participant, error) {
	if studyKey == "" {
		return nil, domain.ErrMissingStudyKey
	}
	target := access.Target{UserKey: userKey, StudyKey: studyKey}
	if _, err := s.guard.Check(ctx, actor, access.OpWriteEnrollment, target); err != nil {
		return nil, err
	}
	if payload == nil {
		s.logReset(ctx, userKey, studyKey)
	}

	var change domain.EnrollmentChange
	p, err := s.mutate(ctx, userKey, func(p *domain.Participant) (bool, error) {
		var err error
		change, err = p.UpsertEnrollment(studyKey, payload)
		if err != nil {
			return false, err
		}
		return !change.NoOp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}
	if change.NoOp {
		return p, nil
	}

	s.log.Info().
		Str("user_key", userKey).
		Str("study_key", studyKey).
		Str("prior_status", string(change.PriorStatus)).
		Str("new_status", string(change.NewStatus)).
		Bool("removed", change.Removed).
		Msg("enrollment updated")

	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditParticipantStudyUpdate,
		ActorKey:   actor.Key,
		StudyKey:   studyKey,
		Message:    enrollmentMessage(change),
		Collection: "participants",
		EntityKey:  p.Key,
		Data:       payload,
	})

	if change.StatusChanged() {
		s.notifier.NotifyStatusChange(ctx, ports.StatusChangeNotice{
			UserKey:        userKey,
			ParticipantKey: p.Key,
			StudyKey:       studyKey,
			PriorStatus:    change.PriorStatus,
			NewStatus:      change.NewStatus,
		})
	}
	return p, nil
}

// UpdateTaskConsent replaces one pre-registered task consent entry.
func (s *ParticipantService) UpdateTaskConsent(ctx context.Context, actor access.Actor, userKey, studyKey string, taskID int, payload domain.TaskItemConsent) (*domain.Participant, error) {
	if studyKey == "" {
		return nil, domain.ErrMissingStudyKey
	}
	target := access.Target{UserKey: userKey, StudyKey: studyKey}
	if _, err := s.guard.Check(ctx, actor, access.OpWriteTaskConsent, target); err != nil {
		return nil, err
	}

	p, err := s.mutate(ctx, userKey, func(p *domain.Participant) (bool, error) {
		return true, p.UpsertTaskConsent(studyKey, taskID, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("update task consent: %w", err)
	}

	id := taskID
	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditParticipantStudyUpdate,
		ActorKey:   actor.Key,
		StudyKey:   studyKey,
		TaskID:     &id,
		Message:    "participant changed task consent",
		Collection: "participants",
		EntityKey:  p.Key,
		Data:       payload,
	})
	return p, nil
}

func (s *ParticipantService) Delete(ctx context.Context, actor access.Actor, participantKey string) error {
	p, err := s.participants.FindByKey(ctx, participantKey)
	if err != nil {
		return err
	}
	return s.delete(ctx, actor, p)
}

func (s *ParticipantService) DeleteByUserKey(ctx context.Context, actor access.Actor, userKey string) error {
	if _, err := s.guard.Check(ctx, actor, access.OpDeleteParticipant, access.Target{UserKey: userKey}); err != nil {
		return err
	}
	p, err := s.participants.FindByUserKey(ctx, userKey)
	if err != nil {
		return err
	}
	return s.delete(ctx, actor, p)
}

func (s *ParticipantService) delete(ctx context.Context, actor access.Actor, p *domain.Participant) error {
	target := access.Target{UserKey: p.UserKey, ParticipantKey: p.Key}
	if _, err := s.guard.Check(ctx, actor, access.OpDeleteParticipant, target); err != nil {
		return err
	}
	return s.deletion.DeleteParticipant(ctx, actor.Key, p)
}

func (s *ParticipantService) StatusStats(ctx context.Context, actor access.Actor, studyKey string) ([]domain.StatusCount, error) {
	if studyKey == "" {
		return nil, domain.ErrMissingStudyKey
	}
	if _, err := s.guard.Check(ctx, actor, access.OpReadStats, access.Target{StudyKey: studyKey}); err != nil {
		return nil, err
	}
	stats, err := s.participants.StatusCounts(ctx, studyKey)
	if err != nil {
		return nil, fmt.Errorf("status stats: %w", err)
	}
	return stats, nil
}

// mutate runs a read-modify-write on the participant owned by userKey under the
// participant lock. fn reports whether it changed anything; unchanged
// participants are not written back.
func (s *ParticipantService) mutate(ctx context.Context, userKey string, fn func(p *domain.Participant) (bool, error)) (*domain.Participant, error) {
	unlock, err := s.locker.Lock(ctx, userKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.participants.FindByUserKey(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if p.PendingDeletion {
		return nil, domain.ErrParticipantNotFound
	}

	changed, err := fn(p)
	if err != nil || !changed {
		return p, err
	}

	p.UpdatedTS = s.now()
	if err := s.participants.Replace(ctx, p); err != nil {
		return nil, err
	}
	p.Version++
	return p, nil
}

// logReset records the reset of an enrollment. Test users reset their
// enrollments routinely, so those are logged at debug level only.
func (s *ParticipantService) logReset(ctx context.Context, userKey, studyKey string) {
	level, testUser := zerolog.InfoLevel, false
	user, err := s.users.FindByKey(ctx, userKey)
	if err != nil {
		s.log.Warn().Err(err).Str("user_key", userKey).Msg("could not load user for enrollment reset")
	} else if user.TestUser {
		level, testUser = zerolog.DebugLevel, true
	}
	s.log.WithLevel(level).
		Str("user_key", userKey).
		Str("study_key", studyKey).
		Bool("test_user", testUser).
		Msg("enrollment reset requested")
}

func enrollmentMessage(c domain.EnrollmentChange) string {
	switch {
	case c.Removed:
		return "participant enrollment removed"
	case c.Created:
		return fmt.Sprintf("participant joined the study with status %q", c.NewStatus)
	case c.StatusChanged():
		return fmt.Sprintf("participant changed status from %q to %q", c.PriorStatus, c.NewStatus)
	default:
		return "participant updated the study enrollment"
	}
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
