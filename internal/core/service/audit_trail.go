package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// AuditTrail stamps entries and appends them to the sink. Sink failures are
// logged and dropped so they never affect a committed mutation.
type AuditTrail struct {
	sink ports.AuditSink
	now  func() time.Time
	log  zerolog.Logger
}

func NewAuditTrail(sink ports.AuditSink, log zerolog.Logger) *AuditTrail {
	return &AuditTrail{
		sink: sink,
		now:  systemClock(),
		log:  log.With().Str("component", "audit").Logger(),
	}
}

func (a *AuditTrail) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}
	if err := a.sink.Append(context.WithoutCancel(ctx), &entry); err != nil {
		a.log.Warn().Err(err).
			Str("event", entry.EventType).
			Str("user_key", entry.ActorKey).
			Str("ref_key", entry.EntityKey).
			Msg("failed to record audit entry")
	}
}
