package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/and161185/cinecart/internal/client"
	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/session"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"register":        cmdRegister,
	"login":           cmdLogin,
	"login-federated": cmdLoginFederated,
	"logout":          cmdLogout,
	"whoami":          cmdWhoami,
	"settings":        cmdSettings,
	"genres":          cmdGenres,
	"now-playing":     cmdNowPlaying,
	"discover":        cmdDiscover,
	"movie":           cmdMovie,
	"cart":            cmdCart,
	"cart-add":        cmdCartAdd,
	"cart-rm":         cmdCartRemove,
	"checkout":        cmdCheckout,
	"purchases":       cmdPurchases,
	"ping":            cmdPing,
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// readSecret prompts on the terminal without echo, or reads a line from
// stdin when it is not a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseGenres accepts comma-separated ids or names ("28,Comedy,science fiction").
func parseGenres(s string) ([]model.GenreID, error) {
	var out []model.GenreID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseGenre(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseGenre(s string) (model.GenreID, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if !genre.Known(model.GenreID(n)) {
			return 0, errs.Invalid("unknown genre %d", n)
		}
		return model.GenreID(n), nil
	}
	for _, g := range genre.All {
		if strings.EqualFold(g.Name, s) {
			return g.ID, nil
		}
	}
	return 0, errs.Invalid("unknown genre %q", s)
}

func parseMovieID(s string) (model.MovieID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, errs.Invalid("movie id must be a positive integer")
	}
	return model.MovieID(n), nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags("register")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email")
	genres := fs.String("genres", "", "at least 10 genres, comma-separated ids or names")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseGenres(*genres)
	if err != nil {
		return err
	}
	pw, err := readSecret("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		return err
	}
	err = a.session.RegisterUser(ctx, session.Registration{
		FirstName:       *first,
		LastName:        *last,
		Email:           *email,
		Password:        pw,
		ConfirmPassword: confirm,
		SelectedGenres:  ids,
	})
	if err != nil {
		return err
	}
	if a.session.Snapshot().Authenticated {
		okf("registered and signed in as %s", *email)
	} else {
		okf("registered %s; run `cinecart login -email %s`", *email, *email)
	}
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := readSecret("Password: ")
	if err != nil {
		return err
	}
	if err := a.session.LoginWithCredentials(ctx, *email, pw); err != nil {
		return err
	}
	printWelcome(a.session.Snapshot())
	return nil
}

func cmdLoginFederated(ctx context.Context, a *app, _ []string) error {
	if err := a.session.LoginWithFederatedProvider(ctx); err != nil {
		return err
	}
	printWelcome(a.session.Snapshot())
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	okf("signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, args []string) error {
	fs := newFlags("whoami")
	asJSON := fs.Bool("json", false, "print the profile as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s := a.session.Snapshot()
	if !s.Authenticated {
		return errs.ErrNotAuthenticated
	}
	if *asJSON {
		printJSON(s.User)
		return nil
	}
	printProfile(s)
	return nil
}

func cmdSettings(ctx context.Context, a *app, args []string) error {
	s := a.session.Snapshot()
	if !s.Authenticated {
		return errs.ErrNotAuthenticated
	}
	fs := newFlags("settings")
	first := fs.String("first", s.User.FirstName, "first name")
	last := fs.String("last", s.User.LastName, "last name")
	genres := fs.String("genres", "", "replace the genre selection")
	toggle := fs.String("toggle", "", "toggle genres in the current selection")
	changePw := fs.Bool("password", false, "prompt for a new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	u := session.ProfileUpdate{FirstName: *first, LastName: *last}
	if *genres != "" {
		if u.SelectedGenres, err = parseGenres(*genres); err != nil {
			return err
		}
	}
	if *toggle != "" {
		ids, err := parseGenres(*toggle)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := a.session.ToggleGenre(id); err != nil {
				return err
			}
		}
	}
	if *changePw {
		if u.Password, err = readSecret("New password: "); err != nil {
			return err
		}
		if u.ConfirmPassword, err = readSecret("Confirm password: "); err != nil {
			return err
		}
	}
	if err := a.session.UpdateProfile(ctx, u); err != nil {
		return err
	}
	okf("profile saved")
	printProfile(a.session.Snapshot())
	return nil
}

func cmdGenres(_ context.Context, a *app, _ []string) error {
	printGenres(a.session.Snapshot())
	return nil
}

func cmdNowPlaying(ctx context.Context, a *app, args []string) error {
	fs := newFlags("now-playing")
	page := fs.Int("page", 1, "page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cat, err := a.needCatalog()
	if err != nil {
		return err
	}
	p, err := cat.NowPlaying(ctx, *page)
	if err != nil {
		return err
	}
	printPage(a.session, p)
	return nil
}

func cmdDiscover(ctx context.Context, a *app, args []string) error {
	fs := newFlags("discover")
	g := fs.String("genre", "", "genre id or name")
	page := fs.Int("page", 1, "page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseGenre(*g)
	if err != nil {
		return err
	}
	cat, err := a.needCatalog()
	if err != nil {
		return err
	}
	p, err := cat.DiscoverByGenre(ctx, id, *page)
	if err != nil {
		return err
	}
	headerf("%s", genre.Name(id))
	printPage(a.session, p)
	return nil
}

func cmdMovie(ctx context.Context, a *app, args []string) error {
	fs := newFlags("movie")
	raw := fs.String("id", "", "movie id")
	asJSON := fs.Bool("json", false, "print the record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseMovieID(*raw)
	if err != nil {
		return err
	}
	cat, err := a.needCatalog()
	if err != nil {
		return err
	}
	d, err := cat.Detail(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		printJSON(d)
		return nil
	}
	printDetail(a.session, d)
	return nil
}

func movieFlag(name string, args []string) (model.MovieID, error) {
	fs := newFlags(name)
	raw := fs.String("id", "", "movie id")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	return parseMovieID(*raw)
}

func cmdCart(_ context.Context, a *app, _ []string) error {
	s := a.session.Snapshot()
	if !s.Authenticated {
		return errs.ErrNotAuthenticated
	}
	printCart(s)
	return nil
}

func cmdCartAdd(ctx context.Context, a *app, args []string) error {
	id, err := movieFlag("cart-add", args)
	if err != nil {
		return err
	}
	cat, err := a.needCatalog()
	if err != nil {
		return err
	}
	d, err := cat.Detail(ctx, id)
	if err != nil {
		return err
	}
	if err := a.session.AddToCart(ctx, d.MovieSummary); err != nil {
		return err
	}
	okf("in cart: %s", d.Title)
	return nil
}

func cmdCartRemove(ctx context.Context, a *app, args []string) error {
	id, err := movieFlag("cart-rm", args)
	if err != nil {
		return err
	}
	if err := a.session.RemoveFromCart(ctx, id); err != nil {
		return err
	}
	okf("removed %d", id)
	return nil
}

func cmdCheckout(ctx context.Context, a *app, _ []string) error {
	ids, err := a.session.Checkout(ctx)
	if err != nil {
		return err
	}
	okf("purchased %d movie(s)", len(ids))
	return nil
}

func cmdPurchases(ctx context.Context, a *app, _ []string) error {
	s := a.session.Snapshot()
	if !s.Authenticated {
		return errs.ErrNotAuthenticated
	}
	if a.catalog == nil {
		printIDs("Purchased", s.Purchased)
		return nil
	}
	movies, err := a.session.PurchasedMovies(ctx)
	if err != nil {
		return err
	}
	printPurchases(movies)
	return nil
}

func cmdPing(ctx context.Context, a *app, _ []string) error {
	st, err := client.Ping(ctx, a.cc)
	if err != nil {
		return err
	}
	okf("%s: %s", a.cfg.Server, st)
	return nil
}
