package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// AuditSink is the append-only store for audit entries.
type AuditSink interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// AuditTrail records accepted mutations. It is fire-and-forget: sink failures
// are logged, never returned.
type AuditTrail interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}
