// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/cinecart/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to identity accounts.
type AccountRepository interface {
	// Create inserts a new account. Returns errs.ErrDuplicateAccount if the email is taken.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by its (normalized) email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// SetPassword replaces the password hash and salt.
	SetPassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error
}
