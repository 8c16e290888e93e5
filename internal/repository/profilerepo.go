package repository

import (
	"context"

	"github.com/and161185/cinecart/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository stores user profiles and their purchase history.
type ProfileRepository interface {
	// Get loads a profile with its purchase history, errs.ErrNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error)
	// Create inserts the profile document. Returns errs.ErrAlreadyExists on a second call.
	Create(ctx context.Context, p *model.UserProfile) error
	// Update applies a partial patch and returns the updated profile.
	Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error)
	// AddPurchases unions ids into the purchase history and returns the full history.
	AddPurchases(ctx context.Context, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error)
}
