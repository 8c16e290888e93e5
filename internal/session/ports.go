// Package session is the client-side session and cart state manager.
//
// A Manager owns one state container, changes it only through reduce, and keeps
// the durable local cache in step with it. Identity, profile storage and the
// catalog are reached through the narrow interfaces below.
package session

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cinecart/internal/model"
)

// AuthCallback receives auth transitions. A nil identity means signed out.
type AuthCallback func(ctx context.Context, id *model.Identity)

// IdentityProvider authenticates users and reports auth transitions.
type IdentityProvider interface {
	// SignUp creates the account and holds its credential provisionally, so
	// the first profile can be written. Subscribers are not notified.
	SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error)
	// DropProvisional discards the credential SignUp installed and reinstates
	// whatever was active before it, without notifying subscribers.
	DropProvisional()
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignInFederated(ctx context.Context) (*model.Identity, error)
	SignOut(ctx context.Context) error
	ChangePassword(ctx context.Context, newPassword string) error
	// OnAuthChange registers fn and returns a func that removes it.
	OnAuthChange(fn AuthCallback) (unsubscribe func())
}

// ProfileStore persists user profiles keyed by user id.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error)
	Create(ctx context.Context, p *model.UserProfile) error
	Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error)
	// AddPurchases unions ids into the purchase history and returns the full history.
	AddPurchases(ctx context.Context, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error)
}

// Cache is the durable local key/value store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetMany(ctx context.Context, kv map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Catalog resolves movie ids to detail records.
type Catalog interface {
	Detail(ctx context.Context, id model.MovieID) (*model.MovieDetail, error)
}
