// Package convert maps domain models to and from rpc wire messages.
package convert

import (
	"fmt"
	"time"

	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/rpc"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

func parseID(s string) (u.UUID, error) {
	id, err := u.FromString(s)
	if err != nil {
		return u.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

// ParseUserID parses a wire user id.
func ParseUserID(s string) (u.UUID, error) { return parseID(s) }

func genresToWire(in []model.GenreID) []int32 {
	if in == nil {
		return nil
	}
	out := make([]int32, 0, len(in))
	for _, g := range in {
		out = append(out, int32(g))
	}
	return out
}

func genresFromWire(in []int32) []model.GenreID {
	if in == nil {
		return nil
	}
	out := make([]model.GenreID, 0, len(in))
	for _, g := range in {
		out = append(out, model.GenreID(g))
	}
	return out
}

// MoviesToWire converts movie ids for the wire.
func MoviesToWire(in []model.MovieID) []int64 {
	out := make([]int64, 0, len(in))
	for _, m := range in {
		out = append(out, int64(m))
	}
	return out
}

// MoviesFromWire converts wire movie ids.
func MoviesFromWire(in []int64) []model.MovieID {
	out := make([]model.MovieID, 0, len(in))
	for _, m := range in {
		out = append(out, model.MovieID(m))
	}
	return out
}

// --- auth ---

// ToAuthResponse builds the sign-in response.
func ToAuthResponse(tok model.Tokens, id model.Identity) *rpc.AuthResponse {
	return &rpc.AuthResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt.Unix(),
		UserID:      id.UserID.String(),
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Provider:    id.Provider,
	}
}

// FromAuthResponse unpacks a sign-in response.
func FromAuthResponse(in *rpc.AuthResponse) (model.Tokens, model.Identity, error) {
	if in == nil || in.AccessToken == "" {
		return model.Tokens{}, model.Identity{}, fmt.Errorf("empty auth response")
	}
	id, err := parseID(in.UserID)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	return model.Tokens{AccessToken: in.AccessToken, ExpiresAt: time.Unix(in.ExpiresAt, 0)},
		model.Identity{UserID: id, Email: in.Email, DisplayName: in.DisplayName, Provider: in.Provider}, nil
}

// --- profiles ---

// ToProfile converts a domain profile to its wire form.
func ToProfile(p *model.UserProfile) *rpc.Profile {
	if p == nil {
		return nil
	}
	return &rpc.Profile{
		ID:              p.ID.String(),
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Email:           p.Email,
		SelectedGenres:  genresToWire(p.SelectedGenres),
		PurchaseHistory: MoviesToWire(p.PurchaseHistory),
	}
}

// FromProfile converts a wire profile to the domain model.
func FromProfile(in *rpc.Profile) (*model.UserProfile, error) {
	if in == nil {
		return nil, fmt.Errorf("nil profile")
	}
	id, err := parseID(in.ID)
	if err != nil {
		return nil, err
	}
	genres := genresFromWire(in.SelectedGenres)
	if genres == nil {
		genres = []model.GenreID{}
	}
	return &model.UserProfile{
		ID:              id,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		SelectedGenres:  genres,
		PurchaseHistory: MoviesFromWire(in.PurchaseHistory),
	}, nil
}

// ToUpdateRequest builds a partial update; nil patch fields stay null on the wire.
func ToUpdateRequest(id u.UUID, patch model.ProfilePatch) *rpc.UpdateProfileRequest {
	return &rpc.UpdateProfileRequest{
		ID:             id.String(),
		FirstName:      patch.FirstName,
		LastName:       patch.LastName,
		SelectedGenres: genresToWire(patch.SelectedGenres),
	}
}

// FromUpdateRequest unpacks a partial update.
func FromUpdateRequest(in *rpc.UpdateProfileRequest) (u.UUID, model.ProfilePatch, error) {
	if in == nil {
		return u.Nil, model.ProfilePatch{}, fmt.Errorf("nil update")
	}
	id, err := parseID(in.ID)
	if err != nil {
		return u.Nil, model.ProfilePatch{}, err
	}
	return id, model.ProfilePatch{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		SelectedGenres: genresFromWire(in.SelectedGenres),
	}, nil
}
