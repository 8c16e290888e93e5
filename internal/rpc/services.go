package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names.
const (
	IdentitySignUp          = "/cinecart.v1.Identity/SignUp"
	IdentitySignIn          = "/cinecart.v1.Identity/SignIn"
	IdentitySignInFederated = "/cinecart.v1.Identity/SignInFederated"
	IdentityChangePassword  = "/cinecart.v1.Identity/ChangePassword"

	ProfilesGet          = "/cinecart.v1.Profiles/Get"
	ProfilesCreate       = "/cinecart.v1.Profiles/Create"
	ProfilesUpdate       = "/cinecart.v1.Profiles/Update"
	ProfilesAddPurchases = "/cinecart.v1.Profiles/AddPurchases"
)

// IdentityServer is the server API for the cinecart.v1.Identity service.
type IdentityServer interface {
	SignUp(context.Context, *SignUpRequest) (*AuthResponse, error)
	SignIn(context.Context, *SignInRequest) (*AuthResponse, error)
	SignInFederated(context.Context, *FederatedSignInRequest) (*AuthResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
}

// ProfilesServer is the server API for the cinecart.v1.Profiles service.
type ProfilesServer interface {
	Get(context.Context, *ProfileRequest) (*Profile, error)
	Create(context.Context, *Profile) (*Empty, error)
	Update(context.Context, *UpdateProfileRequest) (*Profile, error)
	AddPurchases(context.Context, *AddPurchasesRequest) (*PurchasesResponse, error)
}

// RegisterIdentityServer registers srv on s.
func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&identityServiceDesc, srv)
}

// RegisterProfilesServer registers srv on s.
func RegisterProfilesServer(s grpc.ServiceRegistrar, srv ProfilesServer) {
	s.RegisterService(&profilesServiceDesc, srv)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: "cinecart.v1.Identity",
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignUp", Handler: unary(IdentitySignUp, IdentityServer.SignUp)},
		{MethodName: "SignIn", Handler: unary(IdentitySignIn, IdentityServer.SignIn)},
		{MethodName: "SignInFederated", Handler: unary(IdentitySignInFederated, IdentityServer.SignInFederated)},
		{MethodName: "ChangePassword", Handler: unary(IdentityChangePassword, IdentityServer.ChangePassword)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cinecart/v1/identity",
}

var profilesServiceDesc = grpc.ServiceDesc{
	ServiceName: "cinecart.v1.Profiles",
	HandlerType: (*ProfilesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unary(ProfilesGet, ProfilesServer.Get)},
		{MethodName: "Create", Handler: unary(ProfilesCreate, ProfilesServer.Create)},
		{MethodName: "Update", Handler: unary(ProfilesUpdate, ProfilesServer.Update)},
		{MethodName: "AddPurchases", Handler: unary(ProfilesAddPurchases, ProfilesServer.AddPurchases)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cinecart/v1/profiles",
}

// unary adapts a typed method expression to grpc.MethodHandler, running the interceptor chain.
func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
