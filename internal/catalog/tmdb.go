// Package catalog is the read-only movie catalog: a TMDB HTTP client and a Redis response cache.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/genre"
	"github.com/and161185/cinecart/internal/model"
)

// DefaultBaseURL is the public TMDB v3 API.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// Catalog is the read-only catalog API used by the session and the CLI.
type Catalog interface {
	NowPlaying(ctx context.Context, page int) (*model.MoviePage, error)
	DiscoverByGenre(ctx context.Context, id model.GenreID, page int) (*model.MoviePage, error)
	Detail(ctx context.Context, id model.MovieID) (*model.MovieDetail, error)
	Genres(ctx context.Context) ([]genre.Genre, error)
}

// Client is the TMDB API client.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

var _ Catalog = (*Client)(nil)

// NewClient creates a new TMDB API client. An empty baseURL selects DefaultBaseURL.
func NewClient(apiKey, baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// ---- TMDB response types ----

type tmdbGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbVideo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

type tmdbDetail struct {
	model.MovieSummary
	Runtime    int         `json:"runtime"`
	Tagline    string      `json:"tagline"`
	Popularity float64     `json:"popularity"`
	Genres     []tmdbGenre `json:"genres"`
	Videos     struct {
		Results []tmdbVideo `json:"results"`
	} `json:"videos"`
}

// ---- client methods ----

// NowPlaying fetches the now_playing list.
func (c *Client) NowPlaying(ctx context.Context, page int) (*model.MoviePage, error) {
	var out model.MoviePage
	if err := c.get(ctx, "/movie/now_playing", url.Values{"page": {pageParam(page)}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiscoverByGenre fetches one page of movies with the given genre.
func (c *Client) DiscoverByGenre(ctx context.Context, id model.GenreID, page int) (*model.MoviePage, error) {
	if err := genre.CheckKnown([]model.GenreID{id}); err != nil {
		return nil, err
	}
	q := url.Values{
		"with_genres": {strconv.Itoa(int(id))},
		"page":        {pageParam(page)},
	}
	var out model.MoviePage
	if err := c.get(ctx, "/discover/movie", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Detail fetches a movie with its videos appended.
func (c *Client) Detail(ctx context.Context, id model.MovieID) (*model.MovieDetail, error) {
	var raw tmdbDetail
	path := fmt.Sprintf("/movie/%d", id)
	if err := c.get(ctx, path, url.Values{"append_to_response": {"videos"}}, &raw); err != nil {
		return nil, err
	}

	d := &model.MovieDetail{
		MovieSummary: raw.MovieSummary,
		Runtime:      raw.Runtime,
		Tagline:      raw.Tagline,
		Popularity:   raw.Popularity,
	}
	for _, g := range raw.Genres {
		d.Genres = append(d.Genres, g.Name)
		d.GenreIDs = append(d.GenreIDs, model.GenreID(g.ID))
	}
	for _, v := range raw.Videos.Results {
		if v.Type != "" && v.Type != "Trailer" && v.Type != "Teaser" {
			continue
		}
		d.Trailers = append(d.Trailers, model.Trailer{Name: v.Name, Key: v.Key, Site: v.Site})
	}
	return d, nil
}

// Genres fetches the movie genre list.
func (c *Client) Genres(ctx context.Context) ([]genre.Genre, error) {
	var out struct {
		Genres []tmdbGenre `json:"genres"`
	}
	if err := c.get(ctx, "/genre/movie/list", nil, &out); err != nil {
		return nil, err
	}
	gs := make([]genre.Genre, 0, len(out.Genres))
	for _, g := range out.Genres {
		gs = append(gs, genre.Genre{ID: model.GenreID(g.ID), Name: g.Name})
	}
	return gs, nil
}

func pageParam(page int) string {
	if page < 1 {
		page = 1
	}
	return strconv.Itoa(page)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	c.log.Debug("tmdb request", zap.String("path", path))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: tmdb %s: %v", errs.ErrRemote, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("tmdb %s: %w", path, errs.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: tmdb %s returned status %d: %s", errs.ErrRemote, path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode tmdb %s: %v", errs.ErrRemote, path, err)
	}
	return nil
}
