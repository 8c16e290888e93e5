// Package service contains application services for identities and profiles.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/cinecart/internal/crypto"
	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/limiter"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityService defines account and token operations.
type IdentityService interface {
	// SignUp creates a password account and returns a token for it.
	SignUp(ctx context.Context, email, password, name string) (model.Tokens, model.Identity, error)
	// SignIn applies rate-limiting and authenticates by email and password.
	SignIn(ctx context.Context, email, password, ip string) (model.Tokens, model.Identity, error)
	// SignInFederated verifies a broker-issued assertion, creating the account on first use.
	SignInFederated(ctx context.Context, assertion string) (model.Tokens, model.Identity, error)
	// ChangePassword replaces the password of an existing account.
	ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error
}

// AccessClaims are carried by issued access tokens. Email and Name let clients
// restore an identity from a stored token without a round trip.
type AccessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Prov  string `json:"prov,omitempty"`
	jwt.RegisteredClaims
}

// FederationConfig describes the trusted identity broker.
type FederationConfig struct {
	Key    []byte // HS256 key shared with the broker; empty disables federated sign-in
	Issuer string // expected iss claim
}

type IdentityServiceImpl struct {
	accounts  repository.AccountRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	fed       FederationConfig
}

// NewIdentityService constructs IdentityService with required dependencies.
func NewIdentityService(
	accounts repository.AccountRepository, signKey []byte, accessTTL time.Duration,
	lim limiter.Limiter, fed FederationConfig,
) *IdentityServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &IdentityServiceImpl{accounts: accounts, signKey: signKey, accessTTL: accessTTL, lim: lim, fed: fed}
}

// SignUp creates a password account with a per-account salt.
func (s *IdentityServiceImpl) SignUp(ctx context.Context, email, password, name string) (model.Tokens, model.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	hash, salt, err := pkgcrypto.NewPasswordHash(password)
	if err != nil {
		if errors.Is(err, pkgcrypto.ErrWeakPassword) {
			return model.Tokens{}, model.Identity{}, errs.Invalid("password must be at least %d characters", pkgcrypto.MinPasswordLen)
		}
		return model.Tokens{}, model.Identity{}, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}

	a := &model.Account{
		ID:       uid,
		Email:    email,
		Name:     strings.TrimSpace(name),
		PwdHash:  hash,
		PwdSalt:  salt,
		Provider: model.ProviderPassword,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	return s.issue(a)
}

// SignIn authenticates with rate limiting by (email, ip).
func (s *IdentityServiceImpl) SignIn(ctx context.Context, email, password, ip string) (model.Tokens, model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.Tokens{}, model.Identity{}, errs.Invalid("email and password are required")
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Identity{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.Identity{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), a.PwdSalt, a.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Identity{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.Identity{}, errs.ErrAuthentication
	}

	_ = s.lim.Success(ctx, email, ipHash)
	return s.issue(a)
}

type assertionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// SignInFederated verifies the broker assertion and finds or creates the account for its email.
func (s *IdentityServiceImpl) SignInFederated(ctx context.Context, assertion string) (model.Tokens, model.Identity, error) {
	if len(s.fed.Key) == 0 {
		return model.Tokens{}, model.Identity{}, fmt.Errorf("%w: federated sign-in is not configured", errs.ErrAuthentication)
	}
	if assertion == "" {
		return model.Tokens{}, model.Identity{}, errs.Invalid("empty identity assertion")
	}

	var claims assertionClaims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if s.fed.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.fed.Issuer))
	}
	_, err := jwt.ParseWithClaims(assertion, &claims, func(*jwt.Token) (any, error) { return s.fed.Key, nil }, opts...)
	if err != nil {
		return model.Tokens{}, model.Identity{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}
	email, err := normalizeEmail(claims.Email)
	if err != nil {
		return model.Tokens{}, model.Identity{}, fmt.Errorf("%w: assertion has no usable email", errs.ErrAuthentication)
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.issue(a)
	case !errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, model.Identity{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	a = &model.Account{ID: uid, Email: email, Name: strings.TrimSpace(claims.Name), Provider: model.ProviderFederated}
	if err := s.accounts.Create(ctx, a); err != nil {
		if !errors.Is(err, errs.ErrDuplicateAccount) {
			return model.Tokens{}, model.Identity{}, err
		}
		// concurrent first sign-in won the race
		if a, err = s.accounts.GetByEmail(ctx, email); err != nil {
			return model.Tokens{}, model.Identity{}, err
		}
	}
	return s.issue(a)
}

// ChangePassword hashes newPassword with a fresh salt.
func (s *IdentityServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if userID == uuid.Nil {
		return errs.Invalid("user id is required")
	}
	hash, salt, err := pkgcrypto.NewPasswordHash(newPassword)
	if err != nil {
		if errors.Is(err, pkgcrypto.ErrWeakPassword) {
			return errs.Invalid("password must be at least %d characters", pkgcrypto.MinPasswordLen)
		}
		return err
	}
	return s.accounts.SetPassword(ctx, userID, hash, salt)
}

func (s *IdentityServiceImpl) issue(a *model.Account) (model.Tokens, model.Identity, error) {
	access, exp, err := s.issueAccessToken(a)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp},
		model.Identity{UserID: a.ID, Email: a.Email, DisplayName: a.Name, Provider: a.Provider}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given account.
func (s *IdentityServiceImpl) issueAccessToken(a *model.Account) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		Email: a.Email,
		Name:  a.Name,
		Prov:  a.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errs.Invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errs.Invalid("malformed email %q", email)
	}
	return email, nil
}
