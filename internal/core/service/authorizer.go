package service

import (
	"context"
	"time"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
)

// Authorizer is satisfied by *access.Guard.
type Authorizer interface {
	Check(ctx context.Context, actor access.Actor, op access.Operation, target access.Target) (access.Decision, error)
}

func systemClock() func() time.Time {
	return func() time.Time { return time.Now().UTC() }
}
