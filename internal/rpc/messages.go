package rpc

// Empty is the response of calls that return nothing.
type Empty struct{}

// SignUpRequest creates a password account.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// SignInRequest authenticates by email and password.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedSignInRequest carries a broker-issued identity assertion.
type FederatedSignInRequest struct {
	Assertion string `json:"assertion"`
}

// AuthResponse is returned by every sign-in flavor.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"` // unix seconds
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Provider    string `json:"provider"`
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// Profile is the wire form of a user profile document.
type Profile struct {
	ID              string  `json:"id"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Email           string  `json:"email"`
	SelectedGenres  []int32 `json:"selectedGenres"`
	PurchaseHistory []int64 `json:"purchaseHistory"`
}

// ProfileRequest addresses a profile by user id.
type ProfileRequest struct {
	ID string `json:"id"`
}

// UpdateProfileRequest is a partial update; null fields are left untouched.
type UpdateProfileRequest struct {
	ID             string  `json:"id"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	SelectedGenres []int32 `json:"selectedGenres"`
}

// AddPurchasesRequest unions movie ids into the purchase history.
type AddPurchasesRequest struct {
	ID       string  `json:"id"`
	MovieIDs []int64 `json:"movieIds"`
}

// PurchasesResponse is the full purchase history after an update.
type PurchasesResponse struct {
	MovieIDs []int64 `json:"movieIds"`
}
