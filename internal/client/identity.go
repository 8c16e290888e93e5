package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/cinecart/internal/convert"
	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/rpc"
	"github.com/and161185/cinecart/internal/service"
	"github.com/and161185/cinecart/internal/session"
)

// KeyAuthToken is the durable cache key of the persisted access token.
const KeyAuthToken = "authToken"

// TokenStore persists the access token between runs.
type TokenStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetMany(ctx context.Context, kv map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// AssertionSource yields a signed identity assertion from the federation broker.
type AssertionSource func(ctx context.Context) (string, error)

// credential is an access token with the identity it was issued to.
type credential struct {
	token   string
	expires time.Time
	id      *model.Identity
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IdentityOption configures Identity.
type IdentityOption func(*Identity)

// WithAssertionSource enables SignInFederated.
func WithAssertionSource(src AssertionSource) IdentityOption {
	return func(i *Identity) { i.assertion = src }
}

// WithPlaintextBearer allows sending the token over a connection without TLS.
func WithPlaintextBearer() IdentityOption { return func(i *Identity) { i.secure = false } }

// WithIdentityLogger sets the logger.
func WithIdentityLogger(log *zap.Logger) IdentityOption {
	return func(i *Identity) {
		if log != nil {
			i.log = log
		}
	}
}

// Identity is the client side of the identity service. It holds the current
// credential, persists it, and notifies subscribers on sign-in, sign-out and
// expiry.
type Identity struct {
	rpc       *rpc.IdentityClient
	store     TokenStore
	assertion AssertionSource
	secure    bool
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
	current *model.Identity
	gen     uint64 // bumps on every credential change; guards the expiry timer
	timer   *time.Timer
	// displaced is what SignUp replaced; non-nil until DropProvisional or a
	// real sign-in/out
	displaced *credential
	subs    map[int]session.AuthCallback
	nextSub int
}

var _ session.IdentityProvider = (*Identity)(nil)

// NewIdentity builds the provider on cc with token persistence in store.
func NewIdentity(cc grpc.ClientConnInterface, store TokenStore, opts ...IdentityOption) *Identity {
	i := &Identity{
		rpc:    rpc.NewIdentityClient(cc),
		store:  store,
		secure: true,
		log:    zap.NewNop(),
		now:    time.Now,
		subs:   map[int]session.AuthCallback{},
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Restore loads a persisted, unexpired token and announces the signed-in user.
// Without a usable token it announces a signed-out state and returns nil, so
// subscribers always learn the startup state.
func (i *Identity) Restore(ctx context.Context) (*model.Identity, error) {
	raw, err := i.store.Get(ctx, KeyAuthToken)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	id, tf, ok := i.parseStored(raw)
	if !ok {
		var derr error
		if len(raw) > 0 {
			derr = i.store.Delete(ctx, KeyAuthToken)
		}
		i.notify(ctx, nil)
		return nil, derr
	}

	i.setCredential(tf.AccessToken, tf.ExpiresAt, id)
	i.notify(ctx, id)
	return cloneIdentity(id), nil
}

func (i *Identity) parseStored(raw []byte) (*model.Identity, tokenFile, bool) {
	var tf tokenFile
	if len(raw) == 0 {
		return nil, tf, false
	}
	if err := json.Unmarshal(raw, &tf); err != nil || tf.AccessToken == "" || !i.now().Before(tf.ExpiresAt) {
		i.log.Debug("dropping unusable stored token")
		return nil, tf, false
	}
	id, err := identityFromToken(tf.AccessToken)
	if err != nil {
		i.log.Warn("stored token unreadable", zap.Error(err))
		return nil, tf, false
	}
	return id, tf, true
}

// identityFromToken reads claims without verifying the signature. The server
// verifies the token on every call; this only recovers who we were.
func identityFromToken(token string) (*model.Identity, error) {
	var c service.AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, err
	}
	uid, err := convert.ParseUserID(c.Subject)
	if err != nil {
		return nil, err
	}
	prov := c.Prov
	if prov == "" {
		prov = model.ProviderPassword
	}
	return &model.Identity{UserID: uid, Email: c.Email, DisplayName: c.Name, Provider: prov}, nil
}

// SignUp creates the account. Its credential is held in memory only, the
// previous one is kept aside, and subscribers are not notified. Callers must
// follow with DropProvisional.
func (i *Identity) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	resp, err := i.rpc.SignUp(ctx, &rpc.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return nil, fromStatus(err)
	}
	id, exp, err := fromAuth(resp)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.displaced == nil {
		i.displaced = &credential{token: i.token, expires: i.expires, id: cloneIdentity(i.current)}
	}
	i.installLocked(credential{token: resp.AccessToken, expires: exp, id: id})
	return cloneIdentity(id), nil
}

// DropProvisional reinstates the credential that SignUp displaced.
func (i *Identity) DropProvisional() {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev := i.displaced
	if prev == nil {
		return
	}
	i.displaced = nil
	if prev.token == "" {
		i.clearLocked()
		return
	}
	// an already expired credential fires the timer at once and signs out
	i.installLocked(*prev)
}

// SignIn authenticates with email and password.
func (i *Identity) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	resp, err := i.rpc.SignIn(ctx, &rpc.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, fromStatus(err)
	}
	return i.signedIn(ctx, resp)
}

// SignInFederated exchanges a broker assertion for an access token.
func (i *Identity) SignInFederated(ctx context.Context) (*model.Identity, error) {
	if i.assertion == nil {
		return nil, errs.Invalid("federated sign-in is not configured")
	}
	a, err := i.assertion(ctx)
	if err != nil {
		return nil, fmt.Errorf("federated assertion: %w", err)
	}
	resp, err := i.rpc.SignInFederated(ctx, &rpc.FederatedSignInRequest{Assertion: a})
	if err != nil {
		return nil, fromStatus(err)
	}
	return i.signedIn(ctx, resp)
}

func (i *Identity) signedIn(ctx context.Context, resp *rpc.AuthResponse) (*model.Identity, error) {
	id, exp, err := fromAuth(resp)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(tokenFile{AccessToken: resp.AccessToken, ExpiresAt: exp})
	if err != nil {
		return nil, err
	}
	if err := i.store.SetMany(ctx, map[string][]byte{KeyAuthToken: raw}); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	i.setCredential(resp.AccessToken, exp, id)
	i.notify(ctx, id)
	return cloneIdentity(id), nil
}

// SignOut drops the credential locally and notifies subscribers.
func (i *Identity) SignOut(ctx context.Context) error {
	i.clearCredential()
	err := i.store.Delete(ctx, KeyAuthToken)
	i.notify(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// ChangePassword sets a new password for the signed-in account.
func (i *Identity) ChangePassword(ctx context.Context, newPassword string) error {
	creds, err := i.CallCredentials()
	if err != nil {
		return err
	}
	_, err = i.rpc.ChangePassword(ctx, &rpc.ChangePasswordRequest{NewPassword: newPassword}, creds)
	return fromStatus(err)
}

// OnAuthChange registers fn for auth transitions.
func (i *Identity) OnAuthChange(fn session.AuthCallback) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := i.nextSub
	i.nextSub++
	i.subs[n] = fn
	return func() {
		i.mu.Lock()
		delete(i.subs, n)
		i.mu.Unlock()
	}
}

// Current returns the signed-in identity, or nil.
func (i *Identity) Current() *model.Identity {
	i.mu.Lock()
	defer i.mu.Unlock()
	return cloneIdentity(i.current)
}

// CallCredentials returns a per-call bearer credential for the current token.
func (i *Identity) CallCredentials() (grpc.CallOption, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.token == "" {
		return nil, errs.ErrNotAuthenticated
	}
	return grpc.PerRPCCredentials(bearerCreds{token: i.token, secure: i.secure}), nil
}

// Close stops the expiry timer.
func (i *Identity) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

func (i *Identity) setCredential(token string, exp time.Time, id *model.Identity) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.displaced = nil
	i.installLocked(credential{token: token, expires: exp, id: id})
}

func (i *Identity) clearCredential() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.displaced = nil
	i.clearLocked()
}

func (i *Identity) installLocked(c credential) {
	i.gen++
	i.token, i.expires, i.current = c.token, c.expires, cloneIdentity(c.id)
	if i.timer != nil {
		i.timer.Stop()
	}
	gen := i.gen
	i.timer = time.AfterFunc(c.expires.Sub(i.now()), func() { i.expire(gen) })
}

func (i *Identity) clearLocked() {
	i.gen++
	i.token, i.expires, i.current = "", time.Time{}, nil
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

// expire fires when the access token runs out.
func (i *Identity) expire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.token == "" {
		i.mu.Unlock()
		return
	}
	if i.displaced != nil {
		// a sign-up credential ran out; it was never announced
		i.clearLocked()
		i.mu.Unlock()
		return
	}
	i.gen++
	i.token, i.expires, i.current = "", time.Time{}, nil
	i.timer = nil
	i.mu.Unlock()

	ctx := context.Background()
	i.log.Info("session expired")
	if err := i.store.Delete(ctx, KeyAuthToken); err != nil {
		i.log.Warn("delete expired token", zap.Error(err))
	}
	i.notify(ctx, nil)
}

func (i *Identity) notify(ctx context.Context, id *model.Identity) {
	i.mu.Lock()
	subs := make([]session.AuthCallback, 0, len(i.subs))
	for _, fn := range i.subs {
		subs = append(subs, fn)
	}
	i.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, cloneIdentity(id))
	}
}

func fromAuth(resp *rpc.AuthResponse) (*model.Identity, time.Time, error) {
	tok, id, err := convert.FromAuthResponse(resp)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: bad auth response: %v", errs.ErrRemote, err)
	}
	if id.Provider == "" {
		id.Provider = model.ProviderPassword
	}
	return &id, tok.ExpiresAt, nil
}

func cloneIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
