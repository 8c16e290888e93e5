package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cinecart/internal/model"
)

// Caller is the authenticated principal of a request, taken from its access token.
type Caller struct {
	UserID   uuid.UUID
	Provider string // model.ProviderPassword or model.ProviderFederated
}

// Federated reports whether the caller signed in through the identity broker.
func (c Caller) Federated() bool { return c.Provider == model.ProviderFederated }

type (
	callerKey  struct{}
	callLogKey struct{}
)

// callLog lets the outer interceptors, which run before AuthUnary, see the caller.
type callLog struct {
	caller Caller
	known  bool
}

// withCallLog reuses a callLog already in ctx.
func withCallLog(ctx context.Context) (context.Context, *callLog) {
	if l, ok := ctx.Value(callLogKey{}).(*callLog); ok {
		return ctx, l
	}
	l := &callLog{}
	return context.WithValue(ctx, callLogKey{}, l), l
}

// WithCaller stores the authenticated caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	if l, ok := ctx.Value(callLogKey{}).(*callLog); ok {
		l.caller, l.known = c, true
	}
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromCtx returns the caller stored by WithCaller.
func CallerFromCtx(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// UserIDFromCtx returns the caller's user id.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	c, ok := CallerFromCtx(ctx)
	return c.UserID, ok
}
