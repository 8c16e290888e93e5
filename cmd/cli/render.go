package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen)
	headColor = color.New(color.FgCyan, color.Bold)
	dimColor  = color.New(color.Faint)

	stdout io.Writer = os.Stdout
)

// marks reports per-movie ownership for listings.
type marks interface {
	IsPurchased(id model.MovieID) bool
	InCart(id model.MovieID) bool
}

// describe turns an error into a line for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, errNoCatalog):
		return errNoCatalog.Error()
	case errors.Is(err, errs.ErrAuthentication):
		return "invalid email or password"
	case errors.Is(err, errs.ErrRateLimited):
		return "too many failed attempts, try again later"
	case errors.Is(err, errs.ErrDuplicateAccount):
		return "an account with this email already exists"
	case errors.Is(err, errs.ErrNotAuthenticated):
		return "not signed in; run `cinecart login`"
	case errors.Is(err, errs.ErrAlreadyPurchased):
		return "you already own this movie"
	case errors.Is(err, errs.ErrEmptyCart):
		return "your cart is empty"
	case errors.Is(err, errs.ErrNotFound):
		return "not found"
	case errors.Is(err, errs.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), errs.ErrValidation.Error()+": ")
		return "invalid input: " + msg
	case errors.Is(err, errs.ErrRemote):
		return "service unavailable, try again later"
	}
	return err.Error()
}

func okf(format string, args ...any) {
	fmt.Fprintln(stdout, okColor.Sprintf(format, args...))
}

func headerf(format string, args ...any) {
	fmt.Fprintln(stdout, headColor.Sprintf(format, args...))
}

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fullName(p *model.UserProfile) string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func printWelcome(s model.Session) {
	if s.User == nil {
		okf("signed in")
		return
	}
	okf("welcome, %s", fullName(s.User))
}

func printProfile(s model.Session) {
	p := s.User
	headerf("%s", fullName(p))
	fmt.Fprintf(stdout, "email:     %s\n", p.Email)
	names := make([]string, 0, len(s.SelectedGenres))
	for _, id := range s.SelectedGenres {
		names = append(names, genre.Name(id))
	}
	fmt.Fprintf(stdout, "genres:    %s\n", strings.Join(names, ", "))
	fmt.Fprintf(stdout, "cart:      %d\n", len(s.Cart))
	fmt.Fprintf(stdout, "purchased: %d\n", len(s.Purchased))
}

func printGenres(s model.Session) {
	selected := genre.NewSet(s.SelectedGenres...)
	for _, g := range genre.All {
		mark := " "
		if selected.Has(g.ID) {
			mark = "*"
		}
		fmt.Fprintf(stdout, "[%s] %5d  %s\n", mark, g.ID, g.Name)
	}
	if s.Authenticated {
		fmt.Fprintln(stdout, dimColor.Sprintf("%d selected, at least %d required", len(selected), genre.MinSelected))
	}
}

func badge(m marks, id model.MovieID) string {
	switch {
	case m.IsPurchased(id):
		return okColor.Sprint("owned")
	case m.InCart(id):
		return headColor.Sprint("in cart")
	}
	return ""
}

func year(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return "----"
}

func printPage(m marks, p *model.MoviePage) {
	for _, mv := range p.Results {
		fmt.Fprintf(stdout, "%8d  %s  %-40s %4.1f  %s\n", mv.ID, year(mv.ReleaseDate), mv.Title, mv.VoteAverage, badge(m, mv.ID))
	}
	fmt.Fprintln(stdout, dimColor.Sprintf("page %d of %d", p.Page, p.TotalPages))
}

func printDetail(m marks, d *model.MovieDetail) {
	headerf("%s (%s)", d.Title, year(d.ReleaseDate))
	if d.Tagline != "" {
		fmt.Fprintln(stdout, dimColor.Sprint(d.Tagline))
	}
	if b := badge(m, d.ID); b != "" {
		fmt.Fprintln(stdout, b)
	}
	fmt.Fprintf(stdout, "rating:  %.1f\n", d.VoteAverage)
	if d.Runtime > 0 {
		fmt.Fprintf(stdout, "runtime: %d min\n", d.Runtime)
	}
	if len(d.Genres) > 0 {
		fmt.Fprintf(stdout, "genres:  %s\n", strings.Join(d.Genres, ", "))
	}
	if u := model.PosterURL(d.PosterPath, "w500"); u != "" {
		fmt.Fprintf(stdout, "poster:  %s\n", u)
	}
	fmt.Fprintf(stdout, "\n%s\n", d.Overview)
	for _, t := range d.Trailers {
		if u := t.URL(); u != "" {
			fmt.Fprintf(stdout, "trailer: %s  %s\n", t.Name, u)
		}
	}
}

func printCart(s model.Session) {
	if len(s.Cart) == 0 {
		fmt.Fprintln(stdout, "cart is empty")
		return
	}
	for _, it := range s.Cart {
		fmt.Fprintf(stdout, "%8d  %s  %s\n", it.ID, year(it.ReleaseDate), it.Title)
	}
	fmt.Fprintln(stdout, dimColor.Sprintf("%d item(s)", len(s.Cart)))
}

func printIDs(label string, ids []model.MovieID) {
	headerf("%s", label)
	for _, id := range ids {
		fmt.Fprintf(stdout, "%8d\n", id)
	}
}

func printPurchases(movies []model.MovieDetail) {
	if len(movies) == 0 {
		fmt.Fprintln(stdout, "no purchases yet")
		return
	}
	headerf("Purchased")
	for _, d := range movies {
		fmt.Fprintf(stdout, "%8d  %s  %s\n", d.ID, year(d.ReleaseDate), d.Title)
	}
}
