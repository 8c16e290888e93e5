package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memRedis answers Get/Set from a map using go-redis result constructors.
type memRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

// countingCatalog records upstream calls.
type countingCatalog struct {
	calls int
	err   error
}

func (c *countingCatalog) NowPlaying(context.Context, int) (*model.MoviePage, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &model.MoviePage{Page: 1, TotalPages: 1, Results: []model.MovieSummary{{ID: 550, Title: "Fight Club"}}}, nil
}

func (c *countingCatalog) DiscoverByGenre(_ context.Context, id model.GenreID, page int) (*model.MoviePage, error) {
	c.calls++
	return &model.MoviePage{Page: page, Results: []model.MovieSummary{{ID: 13, GenreIDs: []model.GenreID{id}}}}, nil
}

func (c *countingCatalog) Detail(_ context.Context, id model.MovieID) (*model.MovieDetail, error) {
	c.calls++
	return &model.MovieDetail{MovieSummary: model.MovieSummary{ID: id, Title: "T"}, Runtime: 100}, nil
}

func (c *countingCatalog) Genres(context.Context) ([]genre.Genre, error) {
	c.calls++
	return genre.All[:2], nil
}

func TestCached_MissThenHit(t *testing.T) {
	t.Parallel()
	up := &countingCatalog{}
	rdb := newMemRedis()
	c := NewCached(up, rdb, time.Minute, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.NowPlaying(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, model.MovieID(550), p.Results[0].ID)
	}
	require.Equal(t, 1, up.calls)
	require.Equal(t, time.Minute, rdb.ttls["tmdb:now_playing:1"])

	for i := 0; i < 2; i++ {
		d, err := c.Detail(ctx, 550)
		require.NoError(t, err)
		require.Equal(t, 100, d.Runtime)
	}
	require.Equal(t, 2, up.calls)
	require.Equal(t, time.Hour, rdb.ttls["tmdb:movie:550"])

	_, err := c.DiscoverByGenre(ctx, 28, 2)
	require.NoError(t, err)
	gs, err := c.Genres(ctx)
	require.NoError(t, err)
	gs2, err := c.Genres(ctx)
	require.NoError(t, err)
	require.Equal(t, gs, gs2)
	require.Equal(t, 4, up.calls)
}

func TestCached_RedisFailuresFallThrough(t *testing.T) {
	t.Parallel()
	up := &countingCatalog{}
	rdb := newMemRedis()
	rdb.getErr = errors.New("conn refused")
	rdb.setErr = errors.New("conn refused")
	c := NewCached(up, rdb, 0, 0, zaptest.NewLogger(t))

	_, err := c.NowPlaying(context.Background(), 1)
	require.NoError(t, err)
	_, err = c.NowPlaying(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, up.calls)
}

func TestCached_CorruptEntryIsReloaded(t *testing.T) {
	t.Parallel()
	up := &countingCatalog{}
	rdb := newMemRedis()
	rdb.data["tmdb:movie:7"] = "{broken"
	c := NewCached(up, rdb, 0, 0, nil)

	d, err := c.Detail(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, model.MovieID(7), d.ID)

	var back model.MovieDetail
	require.NoError(t, json.Unmarshal([]byte(rdb.data["tmdb:movie:7"]), &back))
	require.Equal(t, model.MovieID(7), back.ID)
}

func TestCached_UpstreamErrorNotCached(t *testing.T) {
	t.Parallel()
	up := &countingCatalog{err: errors.New("tmdb down")}
	rdb := newMemRedis()
	c := NewCached(up, rdb, 0, 0, nil)

	_, err := c.NowPlaying(context.Background(), 1)
	require.Error(t, err)
	require.Empty(t, rdb.data)
}

func TestCached_NilRedisPassesThrough(t *testing.T) {
	t.Parallel()
	up := &countingCatalog{}
	c := NewCached(up, nil, 0, 0, nil)

	_, err := c.Detail(context.Background(), 1)
	require.NoError(t, err)
	_, err = c.Detail(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, up.calls)
}
