package auth

import (
	"context"

	"lotledger/internal/core/id"
)

// UserRepository defines storage operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID id.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update persists user changes with an optimistic version check.
	Update(ctx context.Context, user *User) error
}
