package ports

import "context"

// UserDataPurger removes the documents a user owns in the collections that
// only reference the user (answers, device data, task results).
type UserDataPurger interface {
	// Collections lists what DeleteByUser will purge, in order.
	Collections() []string
	DeleteByUser(ctx context.Context, collection, userKey string) (int64, error)
}

// IncidentReporter forwards failures that need human reconciliation.
type IncidentReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}
