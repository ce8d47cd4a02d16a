package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// AuditRepository appends audit entries to the auditlogs collection.
type AuditRepository struct {
	col *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionAuditLogs)}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		return storeErr("insert audit entry", err)
	}
	return nil
}
