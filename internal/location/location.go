// Package location decides which city a location-dependent tool call is about.
//
// Resolution order: coordinates (nearest configured city, else reverse
// geocoding), then an explicit city name, then the stored preference, then the
// only configured city. When all of those come up empty the caller gets a
// choice list instead of an error.
package location

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pouriya/toolbelt/internal/geo"
)

// PreferenceReader reads the user's stored default city.
type PreferenceReader interface {
	PreferredCity(ctx context.Context) (string, bool, error)
}

// ReverseGeocoder maps coordinates to a place name.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Query is the location input of a tool call. Lat and Lon only count when both are set.
type Query struct {
	City string
	Lat  *float64
	Lon  *float64
}

// HasCoordinates reports whether both lat and lon were supplied.
func (q Query) HasCoordinates() bool { return q.Lat != nil && q.Lon != nil }

// Source records which rule produced a Resolution.
type Source string

const (
	SourceCoordinates    Source = "coordinates"
	SourceReverseGeocode Source = "reverse_geocode"
	SourceExplicit       Source = "explicit"
	SourcePreference     Source = "preference"
	SourceSingleCity     Source = "single_city"
	SourceNone           Source = "none"
)

// Resolution is either a city or, when Choices is non-empty, a request for the
// caller to pick one.
type Resolution struct {
	City geo.City
	// Known is true when City belongs to the configured set and has a slug.
	Known     bool
	Source    Source
	Candidate *geo.Candidate
	Choices   []geo.City
}

// NeedsChoice reports whether the caller must ask the user for a city.
func (r Resolution) NeedsChoice() bool { return len(r.Choices) > 0 }

// Name is the display name of the resolved city, empty when a choice is needed.
func (r Resolution) Name() string { return r.City.Name }

// Resolver implements the resolution rules over a fixed city set.
type Resolver struct {
	cities  *geo.Set
	maxKm   float64
	prefs   PreferenceReader
	reverse ReverseGeocoder
}

// New creates a Resolver. maxKm bounds nearest-city matching (0 = unbounded);
// prefs and reverse may be nil.
func New(cities *geo.Set, maxKm float64, prefs PreferenceReader, reverse ReverseGeocoder) *Resolver {
	return &Resolver{cities: cities, maxKm: maxKm, prefs: prefs, reverse: reverse}
}

// Cities returns the configured city set.
func (r *Resolver) Cities() *geo.Set { return r.cities }

// Resolve applies the resolution rules. It never fails: lookups that error are
// logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, q Query) Resolution {
	if q.HasCoordinates() {
		if res, ok := r.fromCoordinates(ctx, *q.Lat, *q.Lon); ok {
			return res
		}
	}
	if name := strings.TrimSpace(q.City); name != "" {
		return r.named(name, SourceExplicit)
	}
	if r.prefs != nil {
		pref, ok, err := r.prefs.PreferredCity(ctx)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "read preferred city", "err", err)
		case ok && strings.TrimSpace(pref) != "":
			return r.named(pref, SourcePreference)
		}
	}
	if r.cities.Len() == 1 {
		return Resolution{City: r.cities.Cities()[0], Known: true, Source: SourceSingleCity}
	}
	return Resolution{Source: SourceNone, Choices: r.cities.Popular()}
}

func (r *Resolver) fromCoordinates(ctx context.Context, lat, lon float64) (Resolution, bool) {
	if err := geo.CheckCoordinate(lat, lon); err != nil {
		slog.DebugContext(ctx, "ignoring coordinates", "err", err)
		return Resolution{}, false
	}
	best := r.cities.Nearest(lat, lon)
	if r.maxKm <= 0 || best.DistanceKm <= r.maxKm {
		return Resolution{City: best.City, Known: true, Source: SourceCoordinates, Candidate: &best}, true
	}
	slog.DebugContext(ctx, "nearest city out of range",
		"city", best.City.Slug, "distance_km", best.DistanceKm, "max_km", r.maxKm)
	if r.reverse == nil {
		return Resolution{}, false
	}
	place, err := r.reverse.Reverse(ctx, lat, lon)
	if err != nil {
		slog.WarnContext(ctx, "reverse geocode", "err", err)
		return Resolution{}, false
	}
	return r.named(place, SourceReverseGeocode), true
}

// named resolves a free-form name against the set. Unknown names are kept as
// title-cased display names without a slug.
func (r *Resolver) named(name string, src Source) Resolution {
	if c, ok := r.cities.Lookup(name); ok {
		return Resolution{City: c, Known: true, Source: src}
	}
	return Resolution{City: geo.City{Name: geo.TitleCase(name)}, Source: src}
}
