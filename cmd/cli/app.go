package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/cinecart/internal/catalog"
	"github.com/and161185/cinecart/internal/client"
	"github.com/and161185/cinecart/internal/config"
	"github.com/and161185/cinecart/internal/localcache"
	"github.com/and161185/cinecart/internal/session"
)

var errNoCatalog = errors.New("catalog not configured: set TMDB_API_KEY or -tmdb-key")

// app wires one CLI invocation.
type app struct {
	cfg     *config.Client
	log     *zap.Logger
	store   *localcache.Store
	cc      *grpc.ClientConn
	idp     *client.Identity
	catalog catalog.Catalog // nil without an API key
	session *session.Manager
	unsub   func()
}

// newCatalog builds the TMDB client with an optional Redis cache in front.
func newCatalog(ctx context.Context, cfg *config.Client, log *zap.Logger) catalog.Catalog {
	if cfg.TMDB.APIKey == "" {
		return nil
	}
	var base catalog.Catalog = catalog.NewClient(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, log)
	var rdb catalog.Redis
	if cfg.Redis.Addr != "" {
		c, err := catalog.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			rdb = c
		}
	}
	return catalog.NewCached(base, rdb, cfg.TMDB.ListTTL, cfg.TMDB.DetailTTL, log)
}

// openApp restores the durable session and the stored credential.
func openApp(ctx context.Context, cfg *config.Client, log *zap.Logger) (*app, error) {
	store, err := localcache.Open(ctx, cfg.CachePath())
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	cc, err := client.Dial(cfg.Server, client.TLSConfig{
		CAPath:     cfg.CACert,
		SkipVerify: cfg.Insecure,
		Plaintext:  cfg.Plaintext,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []client.IdentityOption{client.WithIdentityLogger(log)}
	if cfg.Plaintext {
		opts = append(opts, client.WithPlaintextBearer())
	}
	if cfg.FederatedAssertion != "" {
		opts = append(opts, client.WithAssertionSource(assertionSource(cfg.FederatedAssertion)))
	}
	idp := client.NewIdentity(cc, store, opts...)
	cat := newCatalog(ctx, cfg, log)

	var detail session.Catalog
	if cat != nil {
		detail = cat
	}
	mgr := session.New(idp, client.NewProfiles(cc, idp), store, detail,
		session.WithLogger(log),
		session.WithAutoLogin(cfg.AutoLogin),
		session.WithWorkers(cfg.Workers),
		session.WithPurchaseBatch(cfg.PurchaseBatch),
	)

	a := &app{cfg: cfg, log: log, store: store, cc: cc, idp: idp, catalog: cat, session: mgr}
	if err := mgr.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.unsub = mgr.ObserveAuthChanges()
	if _, err := idp.Restore(ctx); err != nil {
		log.Warn("restore credential", zap.Error(err))
	}
	return a, nil
}

// assertionSource reads the broker assertion either inline or from "@file".
func assertionSource(v string) client.AssertionSource {
	return func(context.Context) (string, error) {
		if path, ok := strings.CutPrefix(v, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
		return v, nil
	}
}

func (a *app) needCatalog() (catalog.Catalog, error) {
	if a.catalog == nil {
		return nil, errNoCatalog
	}
	return a.catalog, nil
}

// Close releases the connection and the cache.
func (a *app) Close() {
	if a.unsub != nil {
		a.unsub()
	}
	a.idp.Close()
	_ = a.cc.Close()
	_ = a.store.Close()
}
