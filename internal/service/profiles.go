package service

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/repository"
)

// ProfileService defines profile document operations. Callers may only touch their own profile.
type ProfileService interface {
	// Get returns the profile with its purchase history.
	Get(ctx context.Context, caller, id uuid.UUID) (*model.UserProfile, error)
	// Create writes the initial profile document.
	Create(ctx context.Context, caller uuid.UUID, p *model.UserProfile) error
	// Update applies a partial patch.
	Update(ctx context.Context, caller, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error)
	// AddPurchases unions ids into the purchase history.
	AddPurchases(ctx context.Context, caller, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error)
}

type ProfileServiceImpl struct {
	repo     repository.ProfileRepository
	maxBatch int
}

// DefaultMaxBatch caps the movie ids accepted by one AddPurchases call.
const DefaultMaxBatch = 500

// NewProfileService constructs ProfileService with a purchase batch limit.
func NewProfileService(repo repository.ProfileRepository, maxBatch int) *ProfileServiceImpl {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &ProfileServiceImpl{repo: repo, maxBatch: maxBatch}
}

// Get loads the caller's profile.
func (s *ProfileServiceImpl) Get(ctx context.Context, caller, id uuid.UUID) (*model.UserProfile, error) {
	if err := owner(caller, id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Create validates the document and stores it.
// Genre selection size is not enforced here: a first federated sign-in creates
// a profile with no genres selected yet.
func (s *ProfileServiceImpl) Create(ctx context.Context, caller uuid.UUID, p *model.UserProfile) error {
	if p == nil {
		return errs.Invalid("empty profile")
	}
	if err := owner(caller, p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Email) == "" {
		return errs.Invalid("email is required")
	}
	if err := genre.CheckKnown(p.SelectedGenres); err != nil {
		return err
	}
	if err := checkMovieIDs(p.PurchaseHistory); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// Update validates the non-nil patch fields and delegates to the repository.
func (s *ProfileServiceImpl) Update(
	ctx context.Context, caller, id uuid.UUID, patch model.ProfilePatch,
) (*model.UserProfile, error) {
	if err := owner(caller, id); err != nil {
		return nil, err
	}
	if patch.FirstName != nil && strings.TrimSpace(*patch.FirstName) == "" {
		return nil, errs.Invalid("first name must not be empty")
	}
	if patch.LastName != nil && strings.TrimSpace(*patch.LastName) == "" {
		return nil, errs.Invalid("last name must not be empty")
	}
	if patch.SelectedGenres != nil {
		if err := genre.ValidateSelection(patch.SelectedGenres); err != nil {
			return nil, err
		}
	}
	return s.repo.Update(ctx, id, patch)
}

// AddPurchases validates ids and unions them into the history.
func (s *ProfileServiceImpl) AddPurchases(
	ctx context.Context, caller, id uuid.UUID, ids []model.MovieID,
) ([]model.MovieID, error) {
	if err := owner(caller, id); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errs.Invalid("no movies to purchase")
	}
	if len(ids) > s.maxBatch {
		return nil, errs.Invalid("batch too large (%d > %d)", len(ids), s.maxBatch)
	}
	if err := checkMovieIDs(ids); err != nil {
		return nil, err
	}
	return s.repo.AddPurchases(ctx, id, ids)
}

func owner(caller, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.Invalid("empty profile id")
	}
	if caller != id {
		return errs.ErrForbidden
	}
	return nil
}

func checkMovieIDs(ids []model.MovieID) error {
	for i, m := range ids {
		if m <= 0 {
			return errs.Invalid("movie[%d]: bad id %d", i, m)
		}
	}
	return nil
}
