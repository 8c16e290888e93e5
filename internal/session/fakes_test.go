package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
)

type fakeAccount struct {
	password string
	id       model.Identity
}

type fakeIdP struct {
	mu        sync.Mutex
	accounts  map[string]fakeAccount
	current   *model.Identity
	subs      map[int]AuthCallback
	nextSub   int
	federated *model.Identity
	changedPw string
	changeErr error
	signOuts  int

	// set between SignUp and DropProvisional
	provisional bool
	displaced   *model.Identity
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{accounts: map[string]fakeAccount{}, subs: map[int]AuthCallback{}}
}

func (f *fakeIdP) SignUp(_ context.Context, email, password, name string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return nil, errs.ErrDuplicateAccount
	}
	id := model.Identity{UserID: uuid.Must(uuid.NewV4()), Email: email, DisplayName: name, Provider: model.ProviderPassword}
	f.accounts[email] = fakeAccount{password: password, id: id}
	if !f.provisional {
		f.provisional, f.displaced = true, f.current
	}
	f.current = &id
	out := id
	return &out, nil
}

func (f *fakeIdP) DropProvisional() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.provisional {
		return
	}
	f.current, f.displaced, f.provisional = f.displaced, nil, false
}

func (f *fakeIdP) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	f.mu.Lock()
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		f.mu.Unlock()
		return nil, errs.ErrAuthentication
	}
	id := acc.id
	f.current, f.provisional, f.displaced = &id, false, nil
	f.mu.Unlock()

	f.notify(ctx, &id)
	out := id
	return &out, nil
}

func (f *fakeIdP) SignInFederated(ctx context.Context) (*model.Identity, error) {
	f.mu.Lock()
	if f.federated == nil {
		f.mu.Unlock()
		return nil, errs.ErrAuthentication
	}
	id := *f.federated
	f.current, f.provisional, f.displaced = &id, false, nil
	f.mu.Unlock()

	f.notify(ctx, &id)
	out := id
	return &out, nil
}

func (f *fakeIdP) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.current, f.provisional, f.displaced = nil, false, nil
	f.signOuts++
	f.mu.Unlock()
	f.notify(ctx, nil)
	return nil
}

func (f *fakeIdP) ChangePassword(_ context.Context, pw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return errs.ErrAuthentication
	}
	if f.changeErr != nil {
		return f.changeErr
	}
	f.changedPw = pw
	return nil
}

func (f *fakeIdP) OnAuthChange(fn AuthCallback) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nextSub
	f.nextSub++
	f.subs[n] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, n)
		f.mu.Unlock()
	}
}

// expire simulates the provider dropping an expired session.
func (f *fakeIdP) expire(ctx context.Context) {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	f.notify(ctx, nil)
}

func (f *fakeIdP) notify(ctx context.Context, id *model.Identity) {
	f.mu.Lock()
	subs := make([]AuthCallback, 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, id)
	}
}

type fakeProfiles struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*model.UserProfile
	createErr error
	updateErr error
	addErr    error
	creates   int
	maxBatch  int // AddPurchases rejects larger batches when set
	addCalls  int

	// when set, Get signals started and then waits on gate
	started chan struct{}
	gate    chan struct{}
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{docs: map[uuid.UUID]*model.UserProfile{}}
}

func (f *fakeProfiles) Get(_ context.Context, id uuid.UUID) (*model.UserProfile, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.docs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeProfiles) Create(_ context.Context, p *model.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.docs[p.ID]; ok {
		return errs.ErrAlreadyExists
	}
	f.creates++
	f.docs[p.ID] = p.Clone()
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.docs[id]
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

func (f *fakeProfiles) AddPurchases(_ context.Context, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.maxBatch > 0 && len(ids) > f.maxBatch {
		return nil, errs.Invalid("batch too large (%d > %d)", len(ids), f.maxBatch)
	}
	p, ok := f.docs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	set := model.NewMovieSet(p.PurchaseHistory...)
	set.Add(ids...)
	p.PurchaseHistory = set.Sorted()
	return append([]model.MovieID(nil), p.PurchaseHistory...), nil
}

func (f *fakeProfiles) history(id uuid.UUID) []model.MovieID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.docs[id]; ok {
		return append([]model.MovieID(nil), p.PurchaseHistory...)
	}
	return nil
}

var errDiskFull = errors.New("disk full")

// flakyCache fails writes on demand.
type flakyCache struct {
	Cache
	failWrites atomic.Bool
}

func (c *flakyCache) SetMany(ctx context.Context, kv map[string][]byte) error {
	if c.failWrites.Load() {
		return errDiskFull
	}
	return c.Cache.SetMany(ctx, kv)
}

type fakeCatalog struct {
	calls atomic.Int32
	fail  model.MovieID
}

func (c *fakeCatalog) Detail(_ context.Context, id model.MovieID) (*model.MovieDetail, error) {
	c.calls.Add(1)
	if id == c.fail {
		return nil, errs.ErrRemote
	}
	return &model.MovieDetail{MovieSummary: model.MovieSummary{ID: id, Title: "movie"}}, nil
}
