package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/localcache"
	"github.com/and161185/cinecart/internal/model"
	grpcserver "github.com/and161185/cinecart/internal/server/grpc"
	"github.com/and161185/cinecart/internal/service"
	"github.com/and161185/cinecart/internal/session"
)

var (
	signKey = []byte("test-sign-key-0123456789abcdef")
	fedKey  = []byte("test-broker-key-0123456789abcdef")
)

// memAccounts is an in-memory repository.AccountRepository.
type memAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Account
}

func (m *memAccounts) Create(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == a.Email {
			return errs.ErrDuplicateAccount
		}
	}
	c := *a
	m.byID[a.ID] = &c
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memAccounts) SetPassword(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.PwdHash, a.PwdSalt = hash, salt
	return nil
}

// memProfiles is an in-memory repository.ProfileRepository.
type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.UserProfile
}

func (m *memProfiles) Get(_ context.Context, id uuid.UUID) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *memProfiles) Create(_ context.Context, p *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return errs.ErrAlreadyExists
	}
	m.byID[p.ID] = p.Clone()
	return nil
}

func (m *memProfiles) Update(_ context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.SelectedGenres != nil {
		p.SelectedGenres = append([]model.GenreID(nil), patch.SelectedGenres...)
	}
	return p.Clone(), nil
}

func (m *memProfiles) AddPurchases(_ context.Context, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	set := model.NewMovieSet(p.PurchaseHistory...)
	set.Add(ids...)
	p.PurchaseHistory = set.Sorted()
	return append([]model.MovieID(nil), p.PurchaseHistory...), nil
}

type stack struct {
	cc       *grpc.ClientConn
	profiles *memProfiles
}

func startStack(t *testing.T, accessTTL time.Duration) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)
	profiles := &memProfiles{byID: map[uuid.UUID]*model.UserProfile{}}
	idSvc := service.NewIdentityService(&memAccounts{byID: map[uuid.UUID]*model.Account{}}, signKey, accessTTL, nil,
		service.FederationConfig{Key: fedKey, Issuer: "broker"})
	srv := grpcserver.New(idSvc, service.NewProfileService(profiles, 0), signKey)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(log),
		grpcserver.LoggingUnary(log),
		srv.AuthUnary(),
	))
	srv.Register(gs)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	cc, err := Dial("passthrough:///bufnet", TLSConfig{Plaintext: true},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return &stack{cc: cc, profiles: profiles}
}

func openCache(t *testing.T) *localcache.Store {
	t.Helper()
	store, err := localcache.Open(context.Background(), localcache.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func brokerAssertion(email, name string) AssertionSource {
	return func(context.Context) (string, error) {
		return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"email": email,
			"name":  name,
			"iss":   "broker",
			"exp":   time.Now().Add(time.Minute).Unix(),
		}).SignedString(fedKey)
	}
}

func firstGenres(n int) []model.GenreID {
	out := make([]model.GenreID, 0, n)
	for _, g := range genre.All[:n] {
		out = append(out, g.ID)
	}
	return out
}

func newManager(t *testing.T, st *stack, store *localcache.Store, opts ...IdentityOption) (*Identity, *session.Manager) {
	t.Helper()
	opts = append([]IdentityOption{WithPlaintextBearer(), WithIdentityLogger(zaptest.NewLogger(t))}, opts...)
	idp := NewIdentity(st.cc, store, opts...)
	t.Cleanup(idp.Close)
	m := session.New(idp, NewProfiles(st.cc, idp), store, nil, session.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, m.Initialize(context.Background()))
	m.ObserveAuthChanges()
	return idp, m
}

func TestEndToEnd_RegisterBuyCheckout(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	store := openCache(t)
	idp, m := newManager(t, st, store)

	reg := session.Registration{
		FirstName: "Ann", LastName: "Lee", Email: "Ann@Example.com",
		Password: "secret-pw", ConfirmPassword: "secret-pw",
		SelectedGenres: firstGenres(10),
	}
	require.NoError(t, m.RegisterUser(ctx, reg))
	require.Nil(t, idp.Current())
	require.ErrorIs(t, m.RegisterUser(ctx, reg), errs.ErrDuplicateAccount)

	require.ErrorIs(t, m.LoginWithCredentials(ctx, "ann@example.com", "wrong-pw"), errs.ErrAuthentication)
	require.NoError(t, m.LoginWithCredentials(ctx, "ann@example.com", "secret-pw"))
	s := m.Snapshot()
	require.True(t, s.Authenticated)
	require.Equal(t, "ann@example.com", s.User.Email)
	require.Empty(t, s.Purchased)

	require.NoError(t, m.AddToCart(ctx, model.MovieSummary{ID: 550, Title: "Fight Club"}))
	_, err := m.Checkout(ctx)
	require.NoError(t, err)

	s = m.Snapshot()
	require.Equal(t, []model.MovieID{550}, s.Purchased)
	require.Empty(t, s.Cart)
	stored, err := st.profiles.Get(ctx, s.User.ID)
	require.NoError(t, err)
	require.Equal(t, []model.MovieID{550}, stored.PurchaseHistory)

	require.NoError(t, m.UpdateProfile(ctx, session.ProfileUpdate{
		FirstName: "Annie", LastName: "Lee", Password: "new-secret", ConfirmPassword: "new-secret",
	}))
	require.Equal(t, "Annie", m.Snapshot().User.FirstName)

	require.NoError(t, m.Logout(ctx))
	require.ErrorIs(t, m.LoginWithCredentials(ctx, "ann@example.com", "secret-pw"), errs.ErrAuthentication)
	require.NoError(t, m.LoginWithCredentials(ctx, "ann@example.com", "new-secret"))
}

func TestRegister_WhileSignedInKeepsCredential(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	store := openCache(t)
	idp, m := newManager(t, st, store)

	reg := session.Registration{
		FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
		Password: "secret-pw", ConfirmPassword: "secret-pw", SelectedGenres: firstGenres(10),
	}
	require.NoError(t, m.RegisterUser(ctx, reg))
	require.NoError(t, m.LoginWithCredentials(ctx, "ann@example.com", "secret-pw"))
	require.NoError(t, m.AddToCart(ctx, model.MovieSummary{ID: 550, Title: "Fight Club"}))

	var events []*model.Identity
	idp.OnAuthChange(func(_ context.Context, id *model.Identity) { events = append(events, id) })

	reg.FirstName, reg.Email = "Bob", "bob@example.com"
	require.NoError(t, m.RegisterUser(ctx, reg))
	require.Empty(t, events)
	require.Equal(t, "ann@example.com", idp.Current().Email)

	s := m.Snapshot()
	require.True(t, s.Authenticated)
	require.Equal(t, "ann@example.com", s.User.Email)
	require.Len(t, s.Cart, 1)

	// the restored credential still authorizes calls for ann
	_, err := m.Checkout(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.MovieID{550}, m.Snapshot().Purchased)
}

func TestSignUp_DropProvisionalWithoutPriorCredential(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	idp := NewIdentity(st.cc, openCache(t), WithPlaintextBearer())
	t.Cleanup(idp.Close)

	_, err := idp.SignUp(ctx, "dee@example.com", "secret-pw", "Dee Dee")
	require.NoError(t, err)
	require.NotNil(t, idp.Current())

	idp.DropProvisional()
	require.Nil(t, idp.Current())
	_, err = idp.CallCredentials()
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestCheckout_CartLargerThanServerBatch(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	_, m := newManager(t, st, openCache(t))

	require.NoError(t, m.RegisterUser(ctx, session.Registration{
		FirstName: "Eve", LastName: "Ma", Email: "eve@example.com",
		Password: "secret-pw", ConfirmPassword: "secret-pw", SelectedGenres: firstGenres(10),
	}))
	require.NoError(t, m.LoginWithCredentials(ctx, "eve@example.com", "secret-pw"))

	n := service.DefaultMaxBatch + 1
	for id := 1; id <= n; id++ {
		require.NoError(t, m.AddToCart(ctx, model.MovieSummary{ID: model.MovieID(id), Title: "Movie"}))
	}
	ids, err := m.Checkout(ctx)
	require.NoError(t, err)
	require.Len(t, ids, n)

	s := m.Snapshot()
	require.Empty(t, s.Cart)
	require.Len(t, s.Purchased, n)
	stored, err := st.profiles.Get(ctx, s.User.ID)
	require.NoError(t, err)
	require.Len(t, stored.PurchaseHistory, n)
}

func TestRestore_AcrossRestart(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	store := openCache(t)
	_, m := newManager(t, st, store)

	require.NoError(t, m.RegisterUser(ctx, session.Registration{
		FirstName: "Bo", LastName: "Ng", Email: "bo@example.com",
		Password: "secret-pw", ConfirmPassword: "secret-pw", SelectedGenres: firstGenres(10),
	}))
	require.NoError(t, m.LoginWithCredentials(ctx, "bo@example.com", "secret-pw"))
	require.NoError(t, m.AddToCart(ctx, model.MovieSummary{ID: 13, Title: "Forrest Gump"}))

	// a new process on the same cache
	idp2, m2 := newManager(t, st, store)
	require.True(t, m2.Snapshot().Authenticated, "optimistic restore before the provider reports")

	id, err := idp2.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	require.Equal(t, "bo@example.com", id.Email)

	s := m2.Snapshot()
	require.True(t, s.Authenticated)
	require.Len(t, s.Cart, 1)
	require.Len(t, s.SelectedGenres, 10)
}

func TestRestore_NoTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	store := openCache(t)
	idp, _ := newManager(t, st, store)

	var got []*model.Identity
	idp.OnAuthChange(func(_ context.Context, id *model.Identity) { got = append(got, id) })

	id, err := idp.Restore(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
	require.Len(t, got, 1)
	require.Nil(t, got[0])

	require.NoError(t, store.SetMany(ctx, map[string][]byte{KeyAuthToken: []byte("{garbage")}))
	id, err = idp.Restore(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
	raw, err := store.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestFederatedSignIn(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, time.Hour)
	store := openCache(t)
	_, m := newManager(t, st, store, WithAssertionSource(brokerAssertion("grace@example.com", "Grace Hopper")))

	require.NoError(t, m.LoginWithFederatedProvider(ctx))
	s := m.Snapshot()
	require.True(t, s.Authenticated)
	require.Equal(t, "Grace", s.User.FirstName)
	require.Equal(t, "Hopper", s.User.LastName)

	err := m.UpdateProfile(ctx, session.ProfileUpdate{
		FirstName: "Grace", LastName: "Hopper", SelectedGenres: firstGenres(10),
		Password: "pw-123456", ConfirmPassword: "pw-123456",
	})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestFederatedSignIn_NotConfigured(t *testing.T) {
	st := startStack(t, time.Hour)
	_, m := newManager(t, st, openCache(t))
	require.ErrorIs(t, m.LoginWithFederatedProvider(context.Background()), errs.ErrValidation)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	st := startStack(t, 3*time.Second)
	store := openCache(t)
	idp, m := newManager(t, st, store)

	expired := make(chan struct{}, 1)
	idp.OnAuthChange(func(_ context.Context, id *model.Identity) {
		if id == nil {
			expired <- struct{}{}
		}
	})

	require.NoError(t, m.RegisterUser(ctx, session.Registration{
		FirstName: "Cy", LastName: "Do", Email: "cy@example.com",
		Password: "secret-pw", ConfirmPassword: "secret-pw", SelectedGenres: firstGenres(10),
	}))
	require.NoError(t, m.LoginWithCredentials(ctx, "cy@example.com", "secret-pw"))
	require.True(t, m.Snapshot().Authenticated)

	select {
	case <-expired:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not expire")
	}
	require.False(t, m.Snapshot().Authenticated)
	raw, err := store.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestProfiles_RequireCredential(t *testing.T) {
	st := startStack(t, time.Hour)
	idp := NewIdentity(st.cc, openCache(t), WithPlaintextBearer())
	p := NewProfiles(st.cc, idp)

	_, err := p.Get(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
	require.ErrorIs(t, idp.ChangePassword(context.Background(), "whatever"), errs.ErrNotAuthenticated)
}

func TestPing(t *testing.T) {
	st := startStack(t, time.Hour)
	got, err := Ping(context.Background(), st.cc)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING.String(), got)
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.InvalidArgument, "validation: bad"), errs.ErrValidation},
		{status.Error(codes.AlreadyExists, errs.ErrDuplicateAccount.Error()), errs.ErrDuplicateAccount},
		{status.Error(codes.AlreadyExists, "already exists"), errs.ErrAlreadyExists},
		{status.Error(codes.Unauthenticated, "bad credentials"), errs.ErrAuthentication},
		{status.Error(codes.ResourceExhausted, "rate limited"), errs.ErrRateLimited},
		{status.Error(codes.NotFound, "not found"), errs.ErrNotFound},
		{status.Error(codes.PermissionDenied, "forbidden"), errs.ErrForbidden},
		{status.Error(codes.Canceled, "x"), context.Canceled},
		{status.Error(codes.DeadlineExceeded, "x"), context.DeadlineExceeded},
		{status.Error(codes.Unavailable, "conn refused"), errs.ErrRemote},
		{status.Error(codes.Internal, "boom"), errs.ErrRemote},
	}
	for _, tt := range tests {
		t.Run(status.Code(tt.err).String(), func(t *testing.T) {
			require.ErrorIs(t, fromStatus(tt.err), tt.want)
		})
	}
	require.NoError(t, fromStatus(nil))

	err := fromStatus(status.Error(codes.InvalidArgument, "validation: select at least 10 genres"))
	require.Equal(t, "validation: select at least 10 genres", err.Error())
}

func TestDial_BadCA(t *testing.T) {
	_, err := Dial("localhost:1", TLSConfig{CAPath: "/nonexistent/ca.pem"})
	require.Error(t, err)
}
