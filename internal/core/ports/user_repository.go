package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// UserRepository defines the persistence needed for users.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByKey(ctx context.Context, key string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// Delete removes the user; deleting a missing user is not an error.
	Delete(ctx context.Context, key string) error
}
