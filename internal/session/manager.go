package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

const defaultWorkers = 4

// DefaultPurchaseBatch is how many movie ids Checkout records per store call.
const DefaultPurchaseBatch = 100

// Registration is the sign-up form.
type Registration struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	SelectedGenres  []model.GenreID
}

// ProfileUpdate is the settings form. A nil SelectedGenres saves the session's
// current selection. An empty Password leaves the password unchanged.
type ProfileUpdate struct {
	FirstName       string
	LastName        string
	SelectedGenres  []model.GenreID
	Password        string
	ConfirmPassword string
}

// Option configures a Manager.
type Option func(*Manager)

// WithAutoLogin makes RegisterUser sign the new user in.
func WithAutoLogin(on bool) Option { return func(m *Manager) { m.autoLogin = on } }

// WithWorkers bounds PurchasedMovies fan-out.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithPurchaseBatch bounds the ids sent per AddPurchases call. It must not
// exceed the profile store's batch limit.
func WithPurchaseBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.purchaseBatch = n
		}
	}
}

// WithClock overrides time.Now for cart timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// Manager owns the session. It is safe for concurrent use.
type Manager struct {
	idp      IdentityProvider
	profiles ProfileStore
	cache    Cache
	catalog  Catalog

	log           *zap.Logger
	autoLogin     bool
	workers       int
	purchaseBatch int
	now           func() time.Time

	// ops serializes cart, checkout and profile operations end to end.
	ops sync.Mutex

	// mu guards everything below. Durable writes that mirror a state change
	// happen under mu so the cache never runs ahead of or behind memory.
	mu          sync.Mutex
	st          state
	epoch       uint64
	initialized bool
}

// New builds a Manager. catalog may be nil when PurchasedMovies is not used.
func New(idp IdentityProvider, profiles ProfileStore, cache Cache, catalog Catalog, opts ...Option) *Manager {
	m := &Manager{
		idp:           idp,
		profiles:      profiles,
		cache:         cache,
		catalog:       catalog,
		log:           zap.NewNop(),
		workers:       defaultWorkers,
		purchaseBatch: DefaultPurchaseBatch,
		now:           time.Now,
		st:            emptyState(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize restores the cached session. Only the first call does anything.
// An unreadable or corrupt cache is logged and the session starts empty.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	ep := m.epoch
	m.mu.Unlock()

	snap, err := load(ctx, m.cache)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			m.log.Warn("discarding corrupt session cache", zap.Error(err))
			if derr := m.cache.Delete(ctx, sessionKeys...); derr != nil {
				m.log.Warn("purge session cache", zap.Error(derr))
			}
		} else {
			m.log.Warn("session cache unreadable", zap.Error(err))
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != ep {
		// an auth transition won the race; its state is newer
		return nil
	}
	m.st = reduce(m.st, restored{snap: snap})
	if m.st.authenticated {
		m.log.Debug("session restored",
			zap.String("user_id", m.st.user.ID.String()),
			zap.Int("cart", len(m.st.cart)),
			zap.Int("purchased", len(m.st.purchased)))
	}
	return nil
}

// ObserveAuthChanges subscribes the manager to identity transitions.
func (m *Manager) ObserveAuthChanges() (unsubscribe func()) {
	return m.idp.OnAuthChange(m.onAuthChange)
}

func (m *Manager) onAuthChange(ctx context.Context, id *model.Identity) {
	if id == nil {
		m.signOutLocal(ctx)
		return
	}
	if err := m.signInLocal(ctx, id); err != nil {
		m.log.Warn("auth change: profile sync failed", zap.String("user_id", id.UserID.String()), zap.Error(err))
	}
}

// RegisterUser creates the account and its initial profile. Unless auto-login
// is on, the auth state is left as it was.
func (m *Manager) RegisterUser(ctx context.Context, r Registration) error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	switch {
	case r.FirstName == "":
		return errs.Invalid("first name is required")
	case r.LastName == "":
		return errs.Invalid("last name is required")
	case r.Email == "":
		return errs.Invalid("email is required")
	case r.Password == "":
		return errs.Invalid("password is required")
	case r.Password != r.ConfirmPassword:
		return errs.Invalid("passwords do not match")
	}
	if err := genre.ValidateSelection(r.SelectedGenres); err != nil {
		return err
	}

	id, err := m.idp.SignUp(ctx, r.Email, r.Password, r.FirstName+" "+r.LastName)
	if err != nil {
		return err
	}
	profile := &model.UserProfile{
		ID:              id.UserID,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           id.Email,
		SelectedGenres:  genre.NewSet(r.SelectedGenres...).IDs(),
		PurchaseHistory: []model.MovieID{},
	}
	err = m.profiles.Create(ctx, profile)
	// whoever was signed in before stays signed in
	m.idp.DropProvisional()
	if err != nil {
		// the account exists; a later sign-in creates a default profile
		return fmt.Errorf("create profile: %w", err)
	}
	m.log.Info("user registered", zap.String("user_id", id.UserID.String()))

	if m.autoLogin {
		return m.LoginWithCredentials(ctx, r.Email, r.Password)
	}
	return nil
}

// LoginWithCredentials signs in with email and password and syncs the profile.
func (m *Manager) LoginWithCredentials(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errs.Invalid("email and password are required")
	}
	id, err := m.idp.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	return m.signInLocal(ctx, id)
}

// LoginWithFederatedProvider signs in through the external broker.
func (m *Manager) LoginWithFederatedProvider(ctx context.Context) error {
	id, err := m.idp.SignInFederated(ctx)
	if err != nil {
		return err
	}
	return m.signInLocal(ctx, id)
}

// Logout signs out and purges the durable session. The local session is
// reset even if the identity provider reports an error.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.idp.SignOut(ctx)
	m.signOutLocal(ctx)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (m *Manager) signInLocal(ctx context.Context, id *model.Identity) error {
	m.mu.Lock()
	if m.st.reconciled && m.st.authenticated && m.st.user.ID == id.UserID {
		m.mu.Unlock()
		return nil
	}
	m.epoch++
	ep := m.epoch
	m.mu.Unlock()

	profile, err := m.fetchOrCreateProfile(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != ep {
		m.log.Debug("dropping stale profile fetch", zap.String("user_id", id.UserID.String()))
		return nil
	}
	m.st = reduce(m.st, signedIn{id: id, profile: profile})
	m.persistLocked(ctx)
	m.log.Info("signed in", zap.String("user_id", id.UserID.String()), zap.String("provider", id.Provider))
	return nil
}

func (m *Manager) signOutLocal(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	wasAuth := m.st.authenticated
	m.st = reduce(m.st, signedOut{})
	if err := m.cache.Delete(ctx, sessionKeys...); err != nil {
		m.log.Warn("purge session cache", zap.Error(err))
	}
	if wasAuth {
		m.log.Info("signed out")
	}
}

// persistLocked mirrors the whole state to the cache. Failures are logged:
// the remote store stays authoritative and the next sign-in heals the cache.
func (m *Manager) persistLocked(ctx context.Context) {
	kv, err := encode(m.st)
	if err == nil {
		err = m.cache.SetMany(ctx, kv)
	}
	if err != nil {
		m.log.Warn("persist session", zap.Error(err))
	}
}

func (m *Manager) fetchOrCreateProfile(ctx context.Context, id *model.Identity) (*model.UserProfile, error) {
	p, err := m.profiles.Get(ctx, id.UserID)
	if err == nil {
		return normalizeProfile(p), nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	p = defaultProfile(id)
	if err := m.profiles.Create(ctx, p); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		// created concurrently by another client
		if p, err = m.profiles.Get(ctx, id.UserID); err != nil {
			return nil, fmt.Errorf("fetch profile: %w", err)
		}
	}
	return normalizeProfile(p), nil
}

func defaultProfile(id *model.Identity) *model.UserProfile {
	var first, last string
	if f := strings.Fields(id.DisplayName); len(f) > 0 {
		first = f[0]
		last = strings.Join(f[1:], " ")
	}
	return &model.UserProfile{
		ID:              id.UserID,
		FirstName:       first,
		LastName:        last,
		Email:           id.Email,
		SelectedGenres:  []model.GenreID{},
		PurchaseHistory: []model.MovieID{},
	}
}

// normalizeProfile drops ids outside the genre enumeration and duplicates.
func normalizeProfile(p *model.UserProfile) *model.UserProfile {
	c := p.Clone()
	gs := genre.Set{}
	for _, g := range c.SelectedGenres {
		if genre.Known(g) {
			gs[g] = struct{}{}
		}
	}
	c.SelectedGenres = gs.IDs()
	c.PurchaseHistory = model.NewMovieSet(c.PurchaseHistory...).Sorted()
	return c
}

// AddToCart appends movie to the cart. Adding a movie that is already in the
// cart is a no-op.
func (m *Manager) AddToCart(ctx context.Context, movie model.MovieSummary) error {
	if movie.ID <= 0 {
		return errs.Invalid("movie id must be positive, got %d", movie.ID)
	}
	m.ops.Lock()
	defer m.ops.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.st.authenticated:
		return errs.ErrNotAuthenticated
	case m.st.purchased.Has(movie.ID):
		return fmt.Errorf("movie %d: %w", movie.ID, errs.ErrAlreadyPurchased)
	case m.st.cartIndex(movie.ID) >= 0:
		return nil
	}
	cart := append(slices.Clone(m.st.cart), model.CartItemFrom(movie, m.now().UTC()))
	return m.replaceCartLocked(ctx, cart)
}

// RemoveFromCart drops id from the cart if present.
func (m *Manager) RemoveFromCart(ctx context.Context, id model.MovieID) error {
	m.ops.Lock()
	defer m.ops.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.st.authenticated {
		return errs.ErrNotAuthenticated
	}
	i := m.st.cartIndex(id)
	if i < 0 {
		return nil
	}
	return m.replaceCartLocked(ctx, slices.Delete(slices.Clone(m.st.cart), i, i+1))
}

func (m *Manager) replaceCartLocked(ctx context.Context, cart []model.CartItem) error {
	kv, err := encodeCart(cart)
	if err != nil {
		return err
	}
	if err := m.cache.SetMany(ctx, kv); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	m.st = reduce(m.st, cartReplaced{cart: cart})
	return nil
}

// Checkout records every cart item as purchased and empties the cart. It
// returns the ids that were checked out.
func (m *Manager) Checkout(ctx context.Context) ([]model.MovieID, error) {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if !m.st.authenticated {
		m.mu.Unlock()
		return nil, errs.ErrNotAuthenticated
	}
	if len(m.st.cart) == 0 {
		m.mu.Unlock()
		return nil, errs.ErrEmptyCart
	}
	uid := m.st.user.ID
	ids := make([]model.MovieID, 0, len(m.st.cart))
	for _, it := range m.st.cart {
		ids = append(ids, it.ID)
	}
	ep := m.epoch
	m.mu.Unlock()

	// the store unions each chunk into a set, so a retry after a partial
	// failure resends the recorded ids harmlessly
	var history []model.MovieID
	for chunk := range slices.Chunk(ids, m.purchaseBatch) {
		h, err := m.profiles.AddPurchases(ctx, uid, chunk)
		if err != nil {
			return nil, fmt.Errorf("record purchases: %w", err)
		}
		history = h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != ep {
		// signed out or switched user while the store write was in flight;
		// the purchase is recorded remotely and shows up on next sign-in
		return nil, fmt.Errorf("session changed during checkout: %w", errs.ErrNotAuthenticated)
	}
	next := reduce(m.st, checkedOut{history: append(history, ids...)})
	kv, err := encode(next)
	if err == nil {
		err = m.cache.SetMany(ctx, kv)
	}
	if err != nil {
		return nil, fmt.Errorf("persist checkout: %w", err)
	}
	m.st = next
	m.log.Info("checkout", zap.String("user_id", uid.String()), zap.Int("items", len(ids)))
	return ids, nil
}

// UpdateProfile saves the settings form.
func (m *Manager) UpdateProfile(ctx context.Context, u ProfileUpdate) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if !m.st.authenticated {
		m.mu.Unlock()
		return errs.ErrNotAuthenticated
	}
	uid := m.st.user.ID
	cur := m.st.user.Clone()
	federated := m.st.provider == model.ProviderFederated
	if u.SelectedGenres == nil {
		u.SelectedGenres = m.st.genres.IDs()
	}
	ep := m.epoch
	m.mu.Unlock()

	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	switch {
	case u.FirstName == "" || u.LastName == "":
		return errs.Invalid("first and last name are required")
	case u.Password != u.ConfirmPassword:
		return errs.Invalid("passwords do not match")
	case federated && u.Password != "":
		return errs.Invalid("federated accounts have no password to change")
	case federated && (u.FirstName != cur.FirstName || u.LastName != cur.LastName):
		return errs.Invalid("federated account names are managed by the provider")
	}
	if err := genre.ValidateSelection(u.SelectedGenres); err != nil {
		return err
	}

	saved, err := m.profiles.Update(ctx, uid, model.ProfilePatch{
		FirstName:      &u.FirstName,
		LastName:       &u.LastName,
		SelectedGenres: genre.NewSet(u.SelectedGenres...).IDs(),
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	// password last: a failed profile write must not leave a changed password
	var pwErr error
	if u.Password != "" {
		if err := m.idp.ChangePassword(ctx, u.Password); err != nil {
			pwErr = fmt.Errorf("profile saved, password unchanged: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != ep {
		return pwErr
	}
	m.st = reduce(m.st, profileSaved{profile: normalizeProfile(saved)})
	m.persistLocked(ctx)
	return pwErr
}

// ToggleGenre flips id in the in-memory selection and reports whether it is
// now selected. Nothing is persisted until UpdateProfile.
func (m *Manager) ToggleGenre(id model.GenreID) (bool, error) {
	if !genre.Known(id) {
		return false, errs.Invalid("unknown genre %d", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = reduce(m.st, genreToggled{id: id})
	return m.st.genres.Has(id), nil
}

// Snapshot returns a deep copy of the session.
func (m *Manager) Snapshot() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.view()
}

// IsPurchased reports whether id is in the purchased set.
func (m *Manager) IsPurchased(id model.MovieID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.purchased.Has(id)
}

// InCart reports whether id is in the cart.
func (m *Manager) InCart(id model.MovieID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.cartIndex(id) >= 0
}

// PurchasedMovies resolves the purchased set to catalog records, ordered by id.
func (m *Manager) PurchasedMovies(ctx context.Context) ([]model.MovieDetail, error) {
	if m.catalog == nil {
		return nil, errors.New("session: no catalog configured")
	}
	m.mu.Lock()
	if !m.st.authenticated {
		m.mu.Unlock()
		return nil, errs.ErrNotAuthenticated
	}
	ids := m.st.purchased.Sorted()
	m.mu.Unlock()

	out := make([]model.MovieDetail, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, id := range ids {
		g.Go(func() error {
			d, err := m.catalog.Detail(gctx, id)
			if err != nil {
				return fmt.Errorf("movie %d: %w", id, err)
			}
			out[i] = *d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
