package ports

import (
	"context"
	"time"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// HealthDataFilter selects completed health data records. Empty fields match all.
type HealthDataFilter struct {
	UserKey  string
	StudyKey string
}

// HealthDataRepository persists health data metadata records.
type HealthDataRepository interface {
	// CreatePending stores rec with status pending and no attachments and
	// returns the record with its generated key. PendingSince is stamped with
	// the insert time when unset.
	CreatePending(ctx context.Context, rec *domain.HealthDataRecord) (*domain.HealthDataRecord, error)
	// Complete promotes a pending record, sets its attachment list and clears
	// PendingSince.
	Complete(ctx context.Context, key string, attachments []string) error
	// Delete removes a record; deleting a missing record is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, filter HealthDataFilter) ([]*domain.HealthDataRecord, error)
	// DeletePending removes the record only while it is still pending and
	// reports whether it did.
	DeletePending(ctx context.Context, key string) (bool, error)
	// ListPendingBefore returns pending records inserted before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.HealthDataRecord, error)
}
