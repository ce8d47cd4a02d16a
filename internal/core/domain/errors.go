package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome classes. Every error returned by the core wraps exactly one of these
// so transports can map them without knowing the specific cause.
var (
	ErrForbidden        = errors.New("access forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrPartialIngestion = errors.New("partial ingestion")
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	ErrEnrollmentNotFound  = fmt.Errorf("study enrollment %w", ErrNotFound)
	ErrTaskNotFound        = fmt.Errorf("task consent %w", ErrNotFound)
	ErrTeamNotFound        = fmt.Errorf("team %w", ErrNotFound)
	ErrStudyNotFound       = fmt.Errorf("study %w", ErrNotFound)
	ErrRecordNotFound      = fmt.Errorf("health data record %w", ErrNotFound)

	ErrMissingStudyKey    = fmt.Errorf("%w: studyKey is required", ErrInvalidPayload)
	ErrMissingTaskID      = fmt.Errorf("%w: taskId is required", ErrInvalidPayload)
	ErrNotEnrolled        = fmt.Errorf("%w: participant is not enrolled in the study", ErrInvalidPayload)
	ErrTaskNotRegistered  = fmt.Errorf("%w: task is not registered for the study", ErrInvalidPayload)
	ErrUnknownStatus      = fmt.Errorf("%w: unknown enrollment status", ErrInvalidPayload)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrInvalidPayload)

	ErrUserExists        = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrParticipantExists = fmt.Errorf("participant already exists: %w", ErrConflict)
	ErrVersionConflict   = fmt.Errorf("participant was modified concurrently: %w", ErrConflict)
	ErrLockTimeout       = fmt.Errorf("participant is locked by another request: %w", ErrConflict)
)

// IngestionStage names the pipeline step a partial ingestion failed in.
type IngestionStage string

const (
	StageAttachmentWrite IngestionStage = "attachment_write"
	StageCommit          IngestionStage = "commit"
)

// PartialIngestionError reports a submission that left state behind in one of
// the stores after failing. RecordKey and Filenames identify what needs
// reconciling.
type PartialIngestionError struct {
	RecordKey string
	Filenames []string
	Stage     IngestionStage
	Err       error
}

func (e *PartialIngestionError) Error() string {
	return fmt.Sprintf("partial ingestion at %s (record %s, files [%s]): %v",
		e.Stage, e.RecordKey, strings.Join(e.Filenames, ", "), e.Err)
}

func (e *PartialIngestionError) Unwrap() []error {
	return []error{ErrPartialIngestion, e.Err}
}
