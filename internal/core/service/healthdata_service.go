package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// HealthDataDeps groups the collaborators of HealthDataService.
type HealthDataDeps struct {
	Participants ports.ParticipantRepository
	Records      ports.HealthDataRepository
	Attachments  ports.AttachmentStore
	Tx           ports.TxRunner
	Locker       ports.ParticipantLocker
	Guard        Authorizer
	Audit        ports.AuditTrail
	Incidents    ports.IncidentReporter
}

// HealthDataService runs the ingestion pipeline: a pending metadata record is
// written first, then the attachment, then the record is promoted together
// with the participant's task marker in one transaction.
type HealthDataService struct {
	participants ports.ParticipantRepository
	records      ports.HealthDataRepository
	attachments  ports.AttachmentStore
	tx           ports.TxRunner
	locker       ports.ParticipantLocker
	guard        Authorizer
	audit        ports.AuditTrail
	incidents    ports.IncidentReporter
	now          func() time.Time
	log          zerolog.Logger
}

func NewHealthDataService(deps HealthDataDeps, log zerolog.Logger) *HealthDataService {
	return &HealthDataService{
		participants: deps.Participants,
		records:      deps.Records,
		attachments:  deps.Attachments,
		tx:           deps.Tx,
		locker:       deps.Locker,
		guard:        deps.Guard,
		audit:        deps.Audit,
		incidents:    deps.Incidents,
		now:          systemClock(),
		log:          log.With().Str("component", "ingestion").Logger(),
	}
}

// AttachmentFilename is the blob name used for a record's raw payload.
func AttachmentFilename(recordKey string) string {
	return recordKey + ".json"
}

// Ingest stores one submission. Precondition failures perform no writes.
func (s *HealthDataService) Ingest(ctx context.Context, actor access.Actor, sub domain.HealthDataSubmission) (*domain.HealthDataRecord, error) {
	if sub.UserKey == "" {
		sub.UserKey = actor.Key
	}
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}
	taskID := *sub.TaskID

	target := access.Target{UserKey: sub.UserKey, StudyKey: sub.StudyKey}
	if _, err := s.guard.Check(ctx, actor, access.OpSubmitHealthData, target); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, sub.UserKey)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	defer unlock()

	p, err := s.participants.FindByUserKey(ctx, sub.UserKey)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := p.CheckTaskRegistered(sub.StudyKey, taskID); err != nil {
		return nil, err
	}

	started := s.now()
	created := sub.CreatedTS
	if created.IsZero() {
		created = started
	}

	rec, err := s.records.CreatePending(ctx, &domain.HealthDataRecord{
		UserKey:      sub.UserKey,
		StudyKey:     sub.StudyKey,
		TaskID:       taskID,
		CreatedTS:    created,
		Attachments:  []string{},
		Status:       domain.RecordPending,
		PendingSince: &started,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: create record: %w", err)
	}

	log := s.log.With().
		Str("user_key", sub.UserKey).
		Str("study_key", sub.StudyKey).
		Int("task_id", taskID).
		Str("record_key", rec.Key).
		Logger()

	ref := ports.AttachmentRef{
		UserKey:  sub.UserKey,
		StudyKey: sub.StudyKey,
		TaskID:   taskID,
		Filename: AttachmentFilename(rec.Key),
	}
	if err := s.writeAttachment(ctx, ref, sub.HealthData); err != nil {
		log.Error().Err(err).Msg("attachment write failed")
		return nil, s.compensate(ctx, log, rec.Key, ref, domain.StageAttachmentWrite, err)
	}

	if err := p.MarkTaskExecuted(sub.StudyKey, taskID, created); err != nil {
		return nil, s.compensate(ctx, log, rec.Key, ref, domain.StageCommit, err)
	}
	p.UpdatedTS = s.now()
	filenames := []string{ref.Filename}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.records.Complete(txCtx, rec.Key, filenames); err != nil {
			return err
		}
		return s.participants.Replace(txCtx, p)
	})
	if err != nil {
		log.Error().Err(err).Msg("ingestion commit failed")
		return nil, s.compensate(ctx, log, rec.Key, ref, domain.StageCommit, err)
	}
	p.Version++

	rec.Attachments = filenames
	rec.Status = domain.RecordComplete
	rec.PendingSince = nil

	log.Info().Str("filename", ref.Filename).Msg("health data stored")
	s.audit.Record(ctx, domain.AuditEntry{
		EventType:  domain.AuditHealthStoreDataCreated,
		ActorKey:   actor.Key,
		StudyKey:   sub.StudyKey,
		TaskID:     &taskID,
		Message:    "participant sent health store data",
		Collection: "healthStoreData",
		EntityKey:  rec.Key,
	})
	return rec, nil
}

// List returns completed records. Participants only see their own records;
// researchers must name a study run by one of their teams.
func (s *HealthDataService) List(ctx context.Context, actor access.Actor, q ports.HealthDataQuery) ([]*domain.HealthDataRecord, error) {
	if actor.Role == domain.RoleParticipant && q.UserKey == "" {
		q.UserKey = actor.Key
	}
	target := access.Target{UserKey: q.UserKey, StudyKey: q.StudyKey}
	if _, err := s.guard.Check(ctx, actor, access.OpReadHealthData, target); err != nil {
		return nil, err
	}

	out, err := s.records.List(ctx, ports.HealthDataFilter{UserKey: q.UserKey, StudyKey: q.StudyKey})
	if err != nil {
		return nil, fmt.Errorf("list health data: %w", err)
	}
	return out, nil
}

func validateSubmission(sub domain.HealthDataSubmission) error {
	switch {
	case sub.StudyKey == "":
		return domain.ErrMissingStudyKey
	case sub.TaskID == nil:
		return domain.ErrMissingTaskID
	case len(sub.HealthData) == 0:
		return fmt.Errorf("%w: healthData is required", domain.ErrInvalidPayload)
	}
	return nil
}

// writeAttachment always finalizes the writer: Close on success, Abort on any
// failure including a failed Close.
func (s *HealthDataService) writeAttachment(ctx context.Context, ref ports.AttachmentRef, data []byte) (err error) {
	w, err := s.attachments.OpenWriter(ctx, ref)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if abortErr := w.Abort(); abortErr != nil {
			s.log.Warn().Err(abortErr).Str("filename", ref.Filename).Msg("attachment abort failed")
		}
	}()

	if _, err = w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// compensate removes the blob and the pending record left by a failed
// ingestion. When cleanup itself fails the leftovers are reported as a
// partial ingestion so they can be reconciled.
func (s *HealthDataService) compensate(ctx context.Context, log zerolog.Logger, recordKey string, ref ports.AttachmentRef, stage domain.IngestionStage, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var cleanup []error
	if stage == domain.StageCommit {
		if err := s.attachments.Delete(ctx, ref); err != nil {
			cleanup = append(cleanup, fmt.Errorf("delete attachment: %w", err))
		}
	}
	if err := s.records.Delete(ctx, recordKey); err != nil {
		cleanup = append(cleanup, fmt.Errorf("delete pending record: %w", err))
	}

	if len(cleanup) == 0 {
		return fmt.Errorf("ingest: %s: %w", stage, cause)
	}

	perr := &domain.PartialIngestionError{
		RecordKey: recordKey,
		Filenames: []string{ref.Filename},
		Stage:     stage,
		Err:       errors.Join(append([]error{cause}, cleanup...)...),
	}
	log.Error().Err(perr).Strs("filenames", perr.Filenames).Msg("ingestion left partial state")
	s.incidents.Report(ctx, perr, map[string]string{
		"stage":      string(stage),
		"record_key": recordKey,
		"study_key":  ref.StudyKey,
		"task_id":    strconv.Itoa(ref.TaskID),
	})
	return perr
}
