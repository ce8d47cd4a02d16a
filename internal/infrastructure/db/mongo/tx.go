package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs functions inside a MongoDB multi-document transaction. It
// requires a replica set or sharded cluster.
type TxRunner struct {
	client *mongo.Client
}

func NewTxRunner(client *mongo.Client) *TxRunner {
	return &TxRunner{client: client}
}

// WithTransaction commits when fn returns nil and aborts otherwise. The driver
// may call fn again on transient errors, so fn must be safe to repeat.
func (t *TxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return storeErr("start session", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil && !classified(err) {
		return storeErr("transaction", err)
	}
	return err
}
