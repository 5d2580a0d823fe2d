// Package geocode talks to an OpenStreetMap Nominatim endpoint for forward
// (name to coordinates) and reverse (coordinates to city) lookups.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pouriya/toolbelt/internal/fetch"
)

// DefaultBaseURL is the public Nominatim instance. Its usage policy allows at
// most one request per second, which callers enforce with fetch.WithHostLimit.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch is returned when the service answered but found nothing.
var ErrNoMatch = errors.New("no geocoding match")

// Place is a forward geocoding hit.
type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// Client is a cached Nominatim client.
type Client struct {
	fetch   *fetch.Client
	baseURL string
	cache   *cache.Cache
}

// New creates a Client against baseURL (DefaultBaseURL when empty).
func New(fc *fetch.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		fetch:   fc,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache.New(24*time.Hour, time.Hour),
	}
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search resolves a free-form place name to coordinates.
func (c *Client) Search(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoMatch
	}
	key := "search:" + strings.ToLower(query)
	if v, ok := c.cache.Get(key); ok {
		return v.(*Place), nil
	}

	var hits []searchHit
	q := url.Values{"q": {query}, "format": {"json"}, "limit": {"1"}}
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/search", q, nil, &hits); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("geocode %q: %w", query, ErrNoMatch)
	}
	lat, errLat := strconv.ParseFloat(hits[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(hits[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return nil, fmt.Errorf("geocode %q: %w: bad coordinates %q,%q", query, fetch.ErrUpstream, hits[0].Lat, hits[0].Lon)
	}
	p := &Place{Lat: lat, Lon: lon, DisplayName: hits[0].DisplayName}
	if p.DisplayName == "" {
		p.DisplayName = query
	}
	c.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

type reverseResult struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
	} `json:"address"`
}

// Reverse returns the city (or nearest town-like unit) containing (lat, lon).
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("reverse:%.4f,%.4f", lat, lon)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	var res reverseResult
	q := url.Values{
		"format":         {"jsonv2"},
		"lat":            {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', 6, 64)},
		"zoom":           {"10"},
		"addressdetails": {"1"},
	}
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/reverse", q, nil, &res); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	a := res.Address
	for _, name := range []string{a.City, a.Town, a.Municipality, a.County} {
		if name = strings.TrimSpace(name); name != "" {
			c.cache.Set(key, name, cache.DefaultExpiration)
			return name, nil
		}
	}
	return "", fmt.Errorf("reverse geocode %.4f,%.4f: %w", lat, lon, ErrNoMatch)
}
