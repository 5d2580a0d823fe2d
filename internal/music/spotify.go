package music

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/pouriya/toolbelt/internal/fetch"
)

const (
	DefaultAccountsURL = "https://accounts.spotify.com"
	DefaultAPIURL      = "https://api.spotify.com"
	market             = "IN"
)

// ErrNoCredentials is returned when no client id/secret is configured.
var ErrNoCredentials = errors.New("spotify credentials missing")

// Track is the subset of a Spotify track object the recommender uses.
type Track struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// ArtistNames joins the artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// Spotify is a client-credentials Spotify Web API client.
type Spotify struct {
	fetch        *fetch.Client
	clientID     string
	clientSecret string
	accountsURL  string
	apiURL       string
	cache        *cache.Cache
	tokens       singleflight.Group
}

// NewSpotify creates a client. Empty URLs select the public endpoints.
func NewSpotify(fc *fetch.Client, clientID, clientSecret, accountsURL, apiURL string) *Spotify {
	if accountsURL == "" {
		accountsURL = DefaultAccountsURL
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Spotify{
		fetch:        fc,
		clientID:     clientID,
		clientSecret: clientSecret,
		accountsURL:  strings.TrimRight(accountsURL, "/"),
		apiURL:       strings.TrimRight(apiURL, "/"),
		cache:        cache.New(time.Hour, 10*time.Minute),
	}
}

// Configured reports whether credentials are present.
func (s *Spotify) Configured() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// token returns a cached access token, fetching one when needed. Concurrent
// callers share a single fetch, which outlives any one caller's cancellation
// and is bounded by the fetch client's timeout.
func (s *Spotify) token(ctx context.Context) (string, error) {
	if !s.Configured() {
		return "", ErrNoCredentials
	}
	if v, ok := s.cache.Get("token"); ok {
		return v.(string), nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.tokens.DoChan("token", func() (any, error) {
		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		basic := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
		err := s.fetch.PostForm(fetchCtx, s.accountsURL+"/api/token",
			url.Values{"grant_type": {"client_credentials"}},
			http.Header{"Authorization": {"Basic " + basic}}, &body)
		if err != nil {
			return "", fmt.Errorf("spotify token: %w", err)
		}
		if body.AccessToken == "" {
			return "", fmt.Errorf("spotify token: %w: empty access_token", fetch.ErrUpstream)
		}
		ttl := time.Duration(body.ExpiresIn)*time.Second - time.Minute
		if ttl <= 0 {
			ttl = 50 * time.Minute
		}
		s.cache.Set("token", body.AccessToken, ttl)
		return body.AccessToken, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

func (s *Spotify) get(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.fetch.GetJSON(ctx, s.apiURL+path, q, http.Header{"Authorization": {"Bearer " + tok}}, out)
}

// AvailableGenres lists the genre seeds the recommendations endpoint accepts.
func (s *Spotify) AvailableGenres(ctx context.Context) ([]string, error) {
	if v, ok := s.cache.Get("genres"); ok {
		return v.([]string), nil
	}
	var body struct {
		Genres []string `json:"genres"`
	}
	if err := s.get(ctx, "/v1/recommendations/available-genre-seeds", nil, &body); err != nil {
		return nil, fmt.Errorf("genre seeds: %w", err)
	}
	s.cache.Set("genres", body.Genres, 24*time.Hour)
	return body.Genres, nil
}

// SearchTracks runs a track search.
func (s *Spotify) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	var body struct {
		Tracks struct {
			Items []Track `json:"items"`
		} `json:"tracks"`
	}
	q := url.Values{"q": {query}, "type": {"track"}, "limit": {fmt.Sprint(limit)}, "market": {market}}
	if err := s.get(ctx, "/v1/search", q, &body); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return body.Tracks.Items, nil
}

// Recommendations calls the recommendations endpoint with prepared params.
func (s *Spotify) Recommendations(ctx context.Context, params url.Values) ([]Track, error) {
	var body struct {
		Tracks []Track `json:"tracks"`
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("market", market)
	if err := s.get(ctx, "/v1/recommendations", q, &body); err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	return body.Tracks, nil
}
