// Package genre holds the closed catalog genre enumeration and selection rules.
package genre

import (
	"sort"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
)

// MinSelected is the number of genres a registration or profile save must carry.
const MinSelected = 10

// Genre is one entry of the enumeration.
type Genre struct {
	ID   model.GenreID
	Name string
}

// All is the fixed catalog taxonomy, ordered by name.
var All = []Genre{
	{28, "Action"},
	{12, "Adventure"},
	{16, "Animation"},
	{35, "Comedy"},
	{80, "Crime"},
	{99, "Documentary"},
	{18, "Drama"},
	{10751, "Family"},
	{14, "Fantasy"},
	{36, "History"},
	{27, "Horror"},
	{10402, "Music"},
	{9648, "Mystery"},
	{10749, "Romance"},
	{878, "Science Fiction"},
	{53, "Thriller"},
	{10752, "War"},
	{37, "Western"},
}

var byID = func() map[model.GenreID]string {
	m := make(map[model.GenreID]string, len(All))
	for _, g := range All {
		m[g.ID] = g.Name
	}
	return m
}()

// Known reports whether id belongs to the enumeration.
func Known(id model.GenreID) bool {
	_, ok := byID[id]
	return ok
}

// Name returns the display name, or "" for unknown ids.
func Name(id model.GenreID) string { return byID[id] }

// Set is a genre selection.
type Set map[model.GenreID]struct{}

// NewSet builds a selection from ids (duplicates collapse).
func NewSet(ids ...model.GenreID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Toggle flips membership of id and reports whether it is now selected.
func (s Set) Toggle(id model.GenreID) bool {
	if _, ok := s[id]; ok {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports membership.
func (s Set) Has(id model.GenreID) bool {
	_, ok := s[id]
	return ok
}

// Clone copies the selection.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// IDs returns the selection in ascending order.
func (s Set) IDs() []model.GenreID {
	out := make([]model.GenreID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckKnown fails with ErrValidation on the first id outside the enumeration.
func CheckKnown(ids []model.GenreID) error {
	for _, id := range ids {
		if !Known(id) {
			return errs.Invalid("unknown genre %d", id)
		}
	}
	return nil
}

// ValidateSelection enforces the enumeration and the MinSelected rule.
func ValidateSelection(ids []model.GenreID) error {
	if err := CheckKnown(ids); err != nil {
		return err
	}
	if n := len(NewSet(ids...)); n < MinSelected {
		return errs.Invalid("select at least %d genres (got %d)", MinSelected, n)
	}
	return nil
}
