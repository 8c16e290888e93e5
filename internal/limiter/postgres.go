package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Policy is the lockout rule: MaxFails failed sign-ins within Window block the
// (email, client address) pair for Block.
type Policy struct {
	Window   time.Duration
	MaxFails int
	Block    time.Duration
}

// DefaultPolicy matches the server's built-in configuration.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, Block: 15 * time.Minute}

// Querier is the part of *pgxpool.Pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	qBlockedUntil = `SELECT blocked_until FROM auth_limiter WHERE email=$1 AND ip_hash=$2`

	qReset = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', $3)
ON CONFLICT (email, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`

	// a failure outside the window starts a new count
	qCountFailure = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', $3)
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN $3::timestamptz - auth_limiter.updated_at > $4::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = $3
RETURNING fail_count`

	// the count restarts so the pair gets a fresh window once the block ends
	qBlock = `UPDATE auth_limiter SET blocked_until=$3, fail_count=0 WHERE email=$1 AND ip_hash=$2`
)

var _ Limiter = (*PG)(nil)

// PG keeps sign-in failures in PostgreSQL so every server replica sees the same lockouts.
type PG struct {
	db     Querier
	policy Policy
	now    func() time.Time
}

// PGOption configures PG.
type PGOption func(*PG)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) PGOption { return func(l *PG) { l.now = now } }

// NewPG builds the limiter. Zero policy fields fall back to DefaultPolicy.
func NewPG(db Querier, p Policy, opts ...PGOption) *PG {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.Block <= 0 {
		p.Block = DefaultPolicy.Block
	}
	l := &PG{db: db, policy: p, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// HashIP returns a stable hash of the peer address so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// accounts are keyed by lowercased email
func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Allow reports whether a sign-in may be attempted, and otherwise how long to wait.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, qBlockedUntil, key(email), ipHash).Scan(&blockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if wait := blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success clears the failure count after a good sign-in.
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	_, err := l.db.Exec(ctx, qReset, key(email), ipHash, l.now())
	return err
}

// Failure counts a failed sign-in and blocks the pair once the policy limit is hit.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	var fails int
	if err := l.db.QueryRow(ctx, qCountFailure, key(email), ipHash, now, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}
	if _, err := l.db.Exec(ctx, qBlock, key(email), ipHash, now.Add(l.policy.Block)); err != nil {
		return false, 0, err
	}
	return true, l.policy.Block, nil
}
