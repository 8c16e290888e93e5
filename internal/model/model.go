// Package model defines domain entities used by services, repositories and the session core.
package model

import (
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
)

// MovieID is a catalog movie identifier.
type MovieID int64

// GenreID is an identifier from the closed catalog genre enumeration.
type GenreID int

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry
}

// Account is an identity record stored on the server. Passwords are never stored in plaintext.
type Account struct {
	ID        uuid.UUID // PK, the stable user id
	Email     string    // unique, lower-cased
	Name      string    // display name, may be empty
	PwdHash   []byte    // Argon2id(password, PwdSalt); empty for federated accounts
	PwdSalt   []byte
	Provider  string // ProviderPassword or ProviderFederated
	CreatedAt time.Time
}

// Account providers.
const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
)

// Identity is what the identity provider reports for a signed-in user.
type Identity struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Provider    string // ProviderPassword or ProviderFederated
}

// Federated reports whether the identity came from the external broker.
func (i *Identity) Federated() bool { return i != nil && i.Provider == ProviderFederated }

// UserProfile is the profile document keyed by user id.
type UserProfile struct {
	ID              uuid.UUID `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	SelectedGenres  []GenreID `json:"selectedGenres"`
	PurchaseHistory []MovieID `json:"purchaseHistory"`
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.SelectedGenres = append([]GenreID(nil), p.SelectedGenres...)
	c.PurchaseHistory = append([]MovieID(nil), p.PurchaseHistory...)
	return &c
}

// ProfilePatch is a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	FirstName      *string
	LastName       *string
	SelectedGenres []GenreID // nil = unchanged
}

// CartItem is a snapshot of a catalog movie taken when it was added to the cart.
type CartItem struct {
	ID          MovieID   `json:"id"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"poster_path,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	VoteAverage float64   `json:"vote_average,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// Session is a rendering snapshot of the client-side session.
type Session struct {
	Authenticated  bool
	User           *UserProfile
	SelectedGenres []GenreID
	Cart           []CartItem
	Purchased      []MovieID
}

// MovieSummary is a catalog list entry.
type MovieSummary struct {
	ID          MovieID   `json:"id"`
	Title       string    `json:"title"`
	Overview    string    `json:"overview"`
	ReleaseDate string    `json:"release_date"`
	PosterPath  string    `json:"poster_path"`
	VoteAverage float64   `json:"vote_average"`
	GenreIDs    []GenreID `json:"genre_ids"`
}

// MoviePage is one page of catalog results.
type MoviePage struct {
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Results    []MovieSummary `json:"results"`
}

// MovieDetail is a catalog detail record.
type MovieDetail struct {
	MovieSummary
	Runtime    int       `json:"runtime"`
	Tagline    string    `json:"tagline"`
	Popularity float64   `json:"popularity"`
	Genres     []string  `json:"genres"`
	Trailers   []Trailer `json:"trailers,omitempty"`
}

// Trailer is a video attached to a catalog record.
type Trailer struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Site string `json:"site"`
}

// URL returns a watch link for YouTube-hosted trailers, empty otherwise.
func (t Trailer) URL() string {
	if t.Site != "YouTube" || t.Key == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + t.Key
}

// PosterURL builds an image link for a poster path, e.g. size "w500" or "original".
func PosterURL(path, size string) string {
	if path == "" {
		return ""
	}
	return "https://image.tmdb.org/t/p/" + size + path
}

// CartItemFrom snapshots a catalog record for the cart.
func CartItemFrom(m MovieSummary, at time.Time) CartItem {
	return CartItem{
		ID:          m.ID,
		Title:       m.Title,
		PosterPath:  m.PosterPath,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		VoteAverage: m.VoteAverage,
		AddedAt:     at,
	}
}

// MovieSet is a set of movie ids.
type MovieSet map[MovieID]struct{}

// NewMovieSet builds a set from ids.
func NewMovieSet(ids ...MovieID) MovieSet {
	s := make(MovieSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids into the set.
func (s MovieSet) Add(ids ...MovieID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s MovieSet) Has(id MovieID) bool {
	_, ok := s[id]
	return ok
}

// Clone copies the set.
func (s MovieSet) Clone() MovieSet {
	c := make(MovieSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sorted returns the ids in ascending order.
func (s MovieSet) Sorted() []MovieID {
	out := make([]MovieID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
