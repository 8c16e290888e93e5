package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

// Default cache lifetimes.
const (
	DefaultListTTL   = 5 * time.Minute
	DefaultDetailTTL = 30 * time.Minute
)

// Redis is the subset of *redis.Client used by the cache.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedis connects to Redis and pings it.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Cached serves catalog responses from Redis and falls through to next on a miss.
// Cache failures are logged and never fail the request.
type Cached struct {
	next      Catalog
	rdb       Redis
	listTTL   time.Duration
	detailTTL time.Duration
	log       *zap.Logger
}

var _ Catalog = (*Cached)(nil)

// NewCached wraps next. A nil rdb disables caching.
func NewCached(next Catalog, rdb Redis, listTTL, detailTTL time.Duration, log *zap.Logger) *Cached {
	if listTTL <= 0 {
		listTTL = DefaultListTTL
	}
	if detailTTL <= 0 {
		detailTTL = DefaultDetailTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{next: next, rdb: rdb, listTTL: listTTL, detailTTL: detailTTL, log: log}
}

func (c *Cached) NowPlaying(ctx context.Context, page int) (*model.MoviePage, error) {
	key := fmt.Sprintf("tmdb:now_playing:%d", page)
	return cached(ctx, c, key, c.listTTL, func() (*model.MoviePage, error) { return c.next.NowPlaying(ctx, page) })
}

func (c *Cached) DiscoverByGenre(ctx context.Context, id model.GenreID, page int) (*model.MoviePage, error) {
	key := fmt.Sprintf("tmdb:discover:%d:%d", id, page)
	return cached(ctx, c, key, c.listTTL, func() (*model.MoviePage, error) { return c.next.DiscoverByGenre(ctx, id, page) })
}

func (c *Cached) Detail(ctx context.Context, id model.MovieID) (*model.MovieDetail, error) {
	key := fmt.Sprintf("tmdb:movie:%d", id)
	return cached(ctx, c, key, c.detailTTL, func() (*model.MovieDetail, error) { return c.next.Detail(ctx, id) })
}

func (c *Cached) Genres(ctx context.Context) ([]genre.Genre, error) {
	out, err := cached(ctx, c, "tmdb:genres", c.detailTTL, func() (*[]genre.Genre, error) {
		gs, err := c.next.Genres(ctx)
		return &gs, err
	})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func cached[T any](ctx context.Context, c *Cached, key string, ttl time.Duration, load func() (*T, error)) (*T, error) {
	if c.rdb == nil {
		return load()
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			c.log.Debug("cache hit", zap.String("key", key))
			return &v, nil
		}
		c.log.Warn("corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err == nil {
		err = c.rdb.Set(ctx, key, data, ttl).Err()
	}
	if err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
