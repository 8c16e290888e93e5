// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service/session layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation on a non-account entity.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates bad user input (form fields, genre selection).
	ErrValidation = errors.New("validation")

	// ErrAuthentication indicates bad credentials or an unverifiable identity assertion.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDuplicateAccount indicates the email is already registered.
	ErrDuplicateAccount = errors.New("email already in use")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates an authenticated caller touching another user's data.
	ErrForbidden = errors.New("forbidden")

	// ErrNotAuthenticated guards session operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAlreadyPurchased rejects adding an owned movie to the cart.
	ErrAlreadyPurchased = errors.New("movie already purchased")

	// ErrEmptyCart rejects checkout of an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrRemote wraps transport/remote failures of the identity, profile or catalog services.
	ErrRemote = errors.New("remote service unavailable")
)

// Invalid builds an ErrValidation with a human-readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
