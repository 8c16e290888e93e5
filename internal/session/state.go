package session

import (
	"slices"

	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

// state is the session container. Values are treated as immutable: reduce
// always returns a fresh copy and never aliases the previous one.
type state struct {
	authenticated bool
	user          *model.UserProfile
	provider      string
	genres        genre.Set
	cart          []model.CartItem
	purchased     model.MovieSet
	// reconciled is false while the session runs on cached data only.
	reconciled bool
}

func emptyState() state {
	return state{genres: genre.Set{}, purchased: model.MovieSet{}}
}

func (s state) clone() state {
	c := s
	c.user = s.user.Clone()
	c.genres = s.genres.Clone()
	c.cart = slices.Clone(s.cart)
	c.purchased = s.purchased.Clone()
	return c
}

func (s state) cartIndex(id model.MovieID) int {
	return slices.IndexFunc(s.cart, func(it model.CartItem) bool { return it.ID == id })
}

func (s state) view() model.Session {
	out := model.Session{
		Authenticated:  s.authenticated,
		User:           s.user.Clone(),
		SelectedGenres: s.genres.IDs(),
		Cart:           slices.Clone(s.cart),
		Purchased:      s.purchased.Sorted(),
	}
	if out.Cart == nil {
		out.Cart = []model.CartItem{}
	}
	return out
}

type action interface{ isAction() }

// restored applies a cached snapshot at startup.
type restored struct{ snap state }

// signedIn replaces the session with a freshly fetched profile.
type signedIn struct {
	id      *model.Identity
	profile *model.UserProfile
}

type signedOut struct{}

type cartReplaced struct{ cart []model.CartItem }

// checkedOut empties the cart and installs the remote purchase history.
type checkedOut struct{ history []model.MovieID }

type profileSaved struct{ profile *model.UserProfile }

type genreToggled struct{ id model.GenreID }

func (restored) isAction()     {}
func (signedIn) isAction()     {}
func (signedOut) isAction()    {}
func (cartReplaced) isAction() {}
func (checkedOut) isAction()   {}
func (profileSaved) isAction() {}
func (genreToggled) isAction() {}

func reduce(s state, a action) state {
	next := s.clone()
	switch a := a.(type) {
	case restored:
		next = a.snap.clone()
		next.reconciled = false
		if !next.authenticated || next.user == nil {
			return emptyState()
		}

	case signedIn:
		sameUser := s.authenticated && s.user != nil && s.user.ID == a.profile.ID
		next = emptyState()
		next.authenticated = true
		next.reconciled = true
		next.user = a.profile.Clone()
		next.provider = a.id.Provider
		next.genres = genre.NewSet(a.profile.SelectedGenres...)
		next.purchased = model.NewMovieSet(a.profile.PurchaseHistory...)
		if sameUser {
			// keep what the user put in the cart before the profile arrived,
			// minus anything the store already reports as bought
			for _, it := range s.cart {
				if !next.purchased.Has(it.ID) {
					next.cart = append(next.cart, it)
				}
			}
		}

	case signedOut:
		return emptyState()

	case cartReplaced:
		next.cart = slices.Clone(a.cart)

	case checkedOut:
		next.cart = nil
		next.purchased.Add(a.history...)
		if next.user != nil {
			next.user.PurchaseHistory = next.purchased.Sorted()
		}

	case profileSaved:
		next.user = a.profile.Clone()
		next.genres = genre.NewSet(a.profile.SelectedGenres...)
		next.purchased.Add(a.profile.PurchaseHistory...)

	case genreToggled:
		next.genres.Toggle(a.id)
	}
	return next
}
