package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// IdentityClient is the client API for the cinecart.v1.Identity service.
type IdentityClient struct{ cc grpc.ClientConnInterface }

// NewIdentityClient wraps a client connection.
func NewIdentityClient(cc grpc.ClientConnInterface) *IdentityClient { return &IdentityClient{cc: cc} }

func (c *IdentityClient) SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, IdentitySignUp, in, opts)
}

func (c *IdentityClient) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, IdentitySignIn, in, opts)
}

func (c *IdentityClient) SignInFederated(ctx context.Context, in *FederatedSignInRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, IdentitySignInFederated, in, opts)
}

func (c *IdentityClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, IdentityChangePassword, in, opts)
}

// ProfilesClient is the client API for the cinecart.v1.Profiles service.
type ProfilesClient struct{ cc grpc.ClientConnInterface }

// NewProfilesClient wraps a client connection.
func NewProfilesClient(cc grpc.ClientConnInterface) *ProfilesClient { return &ProfilesClient{cc: cc} }

func (c *ProfilesClient) Get(ctx context.Context, in *ProfileRequest, opts ...grpc.CallOption) (*Profile, error) {
	return invoke[Profile](ctx, c.cc, ProfilesGet, in, opts)
}

func (c *ProfilesClient) Create(ctx context.Context, in *Profile, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, ProfilesCreate, in, opts)
}

func (c *ProfilesClient) Update(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*Profile, error) {
	return invoke[Profile](ctx, c.cc, ProfilesUpdate, in, opts)
}

func (c *ProfilesClient) AddPurchases(ctx context.Context, in *AddPurchasesRequest, opts ...grpc.CallOption) (*PurchasesResponse, error) {
	return invoke[PurchasesResponse](ctx, c.cc, ProfilesAddPurchases, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
