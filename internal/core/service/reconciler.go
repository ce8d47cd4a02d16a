package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

const defaultReconcileGrace = 15 * time.Minute

// PendingReconciler deletes health data records stuck in the pending state,
// together with any blob their ingestion may have written.
type PendingReconciler struct {
	records     ports.HealthDataRepository
	attachments ports.AttachmentStore
	grace       time.Duration
	now         func() time.Time
	onSweep     func(removed int)
	log         zerolog.Logger
}

// NewPendingReconciler returns a reconciler that only touches records older
// than grace, leaving in-flight ingestions alone.
func NewPendingReconciler(records ports.HealthDataRepository, attachments ports.AttachmentStore, grace time.Duration, log zerolog.Logger) *PendingReconciler {
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	return &PendingReconciler{
		records:     records,
		attachments: attachments,
		grace:       grace,
		now:         systemClock(),
		log:         log.With().Str("component", "reconciler").Logger(),
	}
}

// Sweep removes stale pending records and returns how many were removed.
func (r *PendingReconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.records.ListPendingBefore(ctx, r.now().Add(-r.grace))
	if err != nil {
		return 0, fmt.Errorf("sweep pending records: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, rec := range stale {
		// The record goes first and only while still pending. An ingestion
		// that commits after the listing keeps both its record and its blob.
		deleted, err := r.records.DeletePending(ctx, rec.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", rec.Key, err))
			continue
		}
		if !deleted {
			r.log.Debug().Str("record_key", rec.Key).Msg("pending record settled before removal")
			continue
		}
		removed++

		ref := ports.AttachmentRef{
			UserKey:  rec.UserKey,
			StudyKey: rec.StudyKey,
			TaskID:   rec.TaskID,
			Filename: AttachmentFilename(rec.Key),
		}
		if err := r.attachments.Delete(ctx, ref); err != nil {
			errs = append(errs, fmt.Errorf("record %s: delete blob %s/%s/%d/%s: %w",
				rec.Key, ref.UserKey, ref.StudyKey, ref.TaskID, ref.Filename, err))
			continue
		}
		r.log.Info().Str("record_key", rec.Key).Str("user_key", rec.UserKey).Msg("stale pending record removed")
	}
	return removed, errors.Join(errs...)
}

// OnSweep registers fn to be called with the number of removed records after
// every sweep made by Run.
func (r *PendingReconciler) OnSweep(fn func(removed int)) {
	r.onSweep = fn
}

// Run sweeps every interval until ctx is cancelled.
func (r *PendingReconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if r.onSweep != nil {
				r.onSweep(n)
			}
			if err != nil {
				r.log.Error().Err(err).Int("removed", n).Msg("reconcile sweep failed")
			} else if n > 0 {
				r.log.Info().Int("removed", n).Msg("reconcile sweep done")
			}
		}
	}
}
