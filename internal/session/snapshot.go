package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

// Durable cache keys owned by the session.
const (
	KeyAuthState = "authState"
	KeyCart      = "cart"
	KeyPurchased = "purchasedMovies"
)

var sessionKeys = []string{KeyAuthState, KeyCart, KeyPurchased}

var errCorrupt = errors.New("corrupt session snapshot")

type authBlob struct {
	Authenticated  bool               `json:"isLoggedIn"`
	User           *model.UserProfile `json:"currentUser,omitempty"`
	Provider       string             `json:"provider,omitempty"`
	SelectedGenres []model.GenreID    `json:"selectedGenres"`
}

// encode renders every session key. An unauthenticated state encodes an
// empty cart and purchase set.
func encode(s state) (map[string][]byte, error) {
	auth, err := json.Marshal(authBlob{
		Authenticated:  s.authenticated,
		User:           s.user,
		Provider:       s.provider,
		SelectedGenres: s.genres.IDs(),
	})
	if err != nil {
		return nil, err
	}
	cart := s.cart
	if cart == nil {
		cart = []model.CartItem{}
	}
	cartRaw, err := json.Marshal(cart)
	if err != nil {
		return nil, err
	}
	purchasedRaw, err := json.Marshal(s.purchased.Sorted())
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		KeyAuthState: auth,
		KeyCart:      cartRaw,
		KeyPurchased: purchasedRaw,
	}, nil
}

func encodeCart(cart []model.CartItem) (map[string][]byte, error) {
	if cart == nil {
		cart = []model.CartItem{}
	}
	raw, err := json.Marshal(cart)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{KeyCart: raw}, nil
}

// load reads the snapshot. Missing keys yield the empty state; undecodable
// blobs yield errCorrupt.
func load(ctx context.Context, c Cache) (state, error) {
	st := emptyState()

	raw, err := c.Get(ctx, KeyAuthState)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", KeyAuthState, err)
	}
	if len(raw) == 0 {
		return st, nil
	}
	var auth authBlob
	if err := json.Unmarshal(raw, &auth); err != nil {
		return st, fmt.Errorf("%w: %s: %v", errCorrupt, KeyAuthState, err)
	}
	if !auth.Authenticated || auth.User == nil {
		return st, nil
	}
	if err := genre.CheckKnown(auth.SelectedGenres); err != nil {
		return st, fmt.Errorf("%w: %s: %v", errCorrupt, KeyAuthState, err)
	}

	var cart []model.CartItem
	if err := readJSON(ctx, c, KeyCart, &cart); err != nil {
		return st, err
	}
	var purchased []model.MovieID
	if err := readJSON(ctx, c, KeyPurchased, &purchased); err != nil {
		return st, err
	}

	st.authenticated = true
	st.user = auth.User
	st.provider = auth.Provider
	st.genres = genre.NewSet(auth.SelectedGenres...)
	st.purchased = model.NewMovieSet(purchased...)
	seen := model.MovieSet{}
	for _, it := range cart {
		if seen.Has(it.ID) || st.purchased.Has(it.ID) {
			continue
		}
		seen.Add(it.ID)
		st.cart = append(st.cart, it)
	}
	return st, nil
}

func readJSON(ctx context.Context, c Cache, key string, dst any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", errCorrupt, key, err)
	}
	return nil
}
