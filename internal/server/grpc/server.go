// Package grpcserver exposes the cinecart Identity and Profiles gRPC handlers.
package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/and161185/cinecart/internal/convert"
	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/rpc"
	"github.com/and161185/cinecart/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Server wires services into gRPC handlers.
type Server struct {
	identity service.IdentityService
	profiles service.ProfileService
	signKey  []byte
}

var (
	_ rpc.IdentityServer = (*Server)(nil)
	_ rpc.ProfilesServer = (*Server)(nil)
)

// New constructs a gRPC server with injected services.
func New(identity service.IdentityService, profiles service.ProfileService, signKey []byte) *Server {
	return &Server{identity: identity, profiles: profiles, signKey: signKey}
}

// Register attaches both services to gs.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	rpc.RegisterIdentityServer(gs, s)
	rpc.RegisterProfilesServer(gs, s)
}

// publicMethods need no bearer token.
var publicMethods = map[string]bool{
	rpc.IdentitySignUp:          true,
	rpc.IdentitySignIn:          true,
	rpc.IdentitySignInFederated: true,
}

// AuthUnary verifies the bearer token of protected methods and stores the caller in ctx.
func (s *Server) AuthUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] || !strings.HasPrefix(info.FullMethod, "/cinecart.") {
			return next(ctx, req)
		}
		c, err := s.callerFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(WithCaller(ctx, c), req)
	}
}

// --- Identity ---

// SignUp creates a password account.
func (s *Server) SignUp(ctx context.Context, req *rpc.SignUpRequest) (*rpc.AuthResponse, error) {
	tok, id, err := s.identity.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, toStatus("sign up", err)
	}
	return convert.ToAuthResponse(tok, id), nil
}

func remoteIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if i := strings.LastIndexByte(addr, ':'); i > 0 {
			return addr[:i]
		}
		return addr
	}
	return ""
}

// SignIn authenticates by email and password.
func (s *Server) SignIn(ctx context.Context, req *rpc.SignInRequest) (*rpc.AuthResponse, error) {
	tok, id, err := s.identity.SignIn(ctx, req.Email, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus("sign in", err)
	}
	return convert.ToAuthResponse(tok, id), nil
}

// SignInFederated exchanges a broker assertion for an access token.
func (s *Server) SignInFederated(ctx context.Context, req *rpc.FederatedSignInRequest) (*rpc.AuthResponse, error) {
	tok, id, err := s.identity.SignInFederated(ctx, req.Assertion)
	if err != nil {
		return nil, toStatus("federated sign in", err)
	}
	return convert.ToAuthResponse(tok, id), nil
}

// ChangePassword replaces the caller's password.
func (s *Server) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*rpc.Empty, error) {
	caller, ok := CallerFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if caller.Federated() {
		return nil, toStatus("change password", errs.Invalid("federated accounts have no password"))
	}
	if err := s.identity.ChangePassword(ctx, caller.UserID, req.NewPassword); err != nil {
		return nil, toStatus("change password", err)
	}
	return &rpc.Empty{}, nil
}

// --- Profiles ---

// Get returns the caller's profile.
func (s *Server) Get(ctx context.Context, req *rpc.ProfileRequest) (*rpc.Profile, error) {
	caller, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := convert.ParseUserID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	p, err := s.profiles.Get(ctx, caller, id)
	if err != nil {
		return nil, toStatus("get profile", err)
	}
	return convert.ToProfile(p), nil
}

// Create writes the initial profile document.
func (s *Server) Create(ctx context.Context, req *rpc.Profile) (*rpc.Empty, error) {
	caller, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	p, err := convert.FromProfile(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad profile: %v", err)
	}
	if err := s.profiles.Create(ctx, caller, p); err != nil {
		return nil, toStatus("create profile", err)
	}
	return &rpc.Empty{}, nil
}

// Update applies a partial profile update.
func (s *Server) Update(ctx context.Context, req *rpc.UpdateProfileRequest) (*rpc.Profile, error) {
	caller, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, patch, err := convert.FromUpdateRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad update: %v", err)
	}
	p, err := s.profiles.Update(ctx, caller, id, patch)
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return convert.ToProfile(p), nil
}

// AddPurchases unions movie ids into the caller's purchase history.
func (s *Server) AddPurchases(ctx context.Context, req *rpc.AddPurchasesRequest) (*rpc.PurchasesResponse, error) {
	caller, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := convert.ParseUserID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	history, err := s.profiles.AddPurchases(ctx, caller, id, convert.MoviesFromWire(req.MovieIDs))
	if err != nil {
		return nil, toStatus("add purchases", err)
	}
	return &rpc.PurchasesResponse{MovieIDs: convert.MoviesToWire(history)}, nil
}

// toStatus maps service sentinels to gRPC codes. Validation messages are passed through.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrDuplicateAccount):
		return status.Error(codes.AlreadyExists, errs.ErrDuplicateAccount.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrAuthentication):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// callerFromMD extracts "authorization: Bearer <JWT>", verifies HS256 and
// returns the subject. Tokens without a provider claim are password sessions.
func (s *Server) callerFromMD(ctx context.Context) (Caller, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return Caller{}, err
	}

	var claims service.AccessClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return Caller{}, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30*time.Second), jwt.WithExpirationRequired())
	if err := v.Validate(&claims); err != nil {
		return Caller{}, errors.New("token expired or not valid yet")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Caller{}, errors.New("bad subject")
	}
	c := Caller{UserID: id, Provider: claims.Prov}
	if c.Provider == "" {
		c.Provider = model.ProviderPassword
	}
	return c, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
