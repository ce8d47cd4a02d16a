package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// HealthDataQuery carries the optional listing filters.
type HealthDataQuery struct {
	UserKey  string
	StudyKey string
}

// HealthDataService accepts and lists health data submissions.
type HealthDataService interface {
	Ingest(ctx context.Context, actor access.Actor, sub domain.HealthDataSubmission) (*domain.HealthDataRecord, error)
	List(ctx context.Context, actor access.Actor, q HealthDataQuery) ([]*domain.HealthDataRecord, error)
}

// Reconciler removes write-ahead records whose ingestion never completed.
type Reconciler interface {
	Sweep(ctx context.Context) (int, error)
}
