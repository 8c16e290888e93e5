package client

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"

	"github.com/and161185/cinecart/internal/convert"
	"github.com/and161185/cinecart/internal/model"
	"github.com/and161185/cinecart/internal/rpc"
	"github.com/and161185/cinecart/internal/session"
)

// CallCredentials supplies the bearer credential attached to each call.
type CallCredentials interface {
	CallCredentials() (grpc.CallOption, error)
}

// Profiles is the gRPC-backed profile store.
type Profiles struct {
	rpc   *rpc.ProfilesClient
	creds CallCredentials
}

var _ session.ProfileStore = (*Profiles)(nil)

// NewProfiles builds the store on cc; creds is usually the Identity.
func NewProfiles(cc grpc.ClientConnInterface, creds CallCredentials) *Profiles {
	return &Profiles{rpc: rpc.NewProfilesClient(cc), creds: creds}
}

func (p *Profiles) Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	c, err := p.creds.CallCredentials()
	if err != nil {
		return nil, err
	}
	resp, err := p.rpc.Get(ctx, &rpc.ProfileRequest{ID: id.String()}, c)
	if err != nil {
		return nil, fromStatus(err)
	}
	return convert.FromProfile(resp)
}

func (p *Profiles) Create(ctx context.Context, doc *model.UserProfile) error {
	c, err := p.creds.CallCredentials()
	if err != nil {
		return err
	}
	_, err = p.rpc.Create(ctx, convert.ToProfile(doc), c)
	return fromStatus(err)
}

func (p *Profiles) Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error) {
	c, err := p.creds.CallCredentials()
	if err != nil {
		return nil, err
	}
	resp, err := p.rpc.Update(ctx, convert.ToUpdateRequest(id, patch), c)
	if err != nil {
		return nil, fromStatus(err)
	}
	return convert.FromProfile(resp)
}

func (p *Profiles) AddPurchases(ctx context.Context, id uuid.UUID, ids []model.MovieID) ([]model.MovieID, error) {
	c, err := p.creds.CallCredentials()
	if err != nil {
		return nil, err
	}
	resp, err := p.rpc.AddPurchases(ctx, &rpc.AddPurchasesRequest{ID: id.String(), MovieIDs: convert.MoviesToWire(ids)}, c)
	if err != nil {
		return nil, fromStatus(err)
	}
	return convert.MoviesFromWire(resp.MovieIDs), nil
}
