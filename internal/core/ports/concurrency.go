package ports

import "context"

// ParticipantLocker serializes read-modify-write sequences on one participant.
type ParticipantLocker interface {
	// Lock blocks until the lock for userKey is held or ctx / the configured
	// wait expires. The returned function releases the lock.
	Lock(ctx context.Context, userKey string) (unlock func(), err error)
}

// TxRunner runs fn inside a structured-store transaction. fn must use the
// context it receives for every store call that should join the transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
