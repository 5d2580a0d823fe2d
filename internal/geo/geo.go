// Package geo holds the configured city set and the distance math used to pick
// the nearest supported city for a coordinate.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const earthRadiusKm = 6371.0

var (
	ErrEmptySet      = errors.New("city set is empty")
	ErrDuplicateCity = errors.New("duplicate city")
	ErrBadCoordinate = errors.New("coordinate out of range")
)

// City is one supported city. Slug is the stable identifier used in deeplinks.
type City struct {
	Slug    string   `toml:"slug" json:"slug"`
	Name    string   `toml:"name" json:"name"`
	Lat     float64  `toml:"lat" json:"lat"`
	Lon     float64  `toml:"lon" json:"lon"`
	Aliases []string `toml:"aliases" json:"aliases,omitempty"`
}

// Candidate is a city paired with its distance from a query point.
type Candidate struct {
	City       City    `json:"city"`
	DistanceKm float64 `json:"distance_km"`
}

// Set is an immutable, validated collection of cities with an alias index.
type Set struct {
	cities  []City
	index   map[string]int
	popular []int
}

// NewSet validates cities and builds the lookup index. popular lists slugs shown
// first when asking the user to pick; an empty list means every city.
func NewSet(cities []City, popular []string) (*Set, error) {
	if len(cities) == 0 {
		return nil, ErrEmptySet
	}
	s := &Set{cities: make([]City, 0, len(cities)), index: make(map[string]int)}
	for _, c := range cities {
		c.Slug = strings.TrimSpace(c.Slug)
		c.Name = strings.TrimSpace(c.Name)
		if c.Slug == "" || c.Name == "" {
			return nil, fmt.Errorf("city %q: slug and name are required", c.Name)
		}
		if err := CheckCoordinate(c.Lat, c.Lon); err != nil {
			return nil, fmt.Errorf("city %s: %w", c.Slug, err)
		}
		if _, dup := s.index[NormalizeKey(c.Slug)]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCity, c.Slug)
		}
		i := len(s.cities)
		s.cities = append(s.cities, c)
		for _, key := range append([]string{c.Slug, c.Name}, c.Aliases...) {
			if k := NormalizeKey(key); k != "" {
				if _, taken := s.index[k]; !taken {
					s.index[k] = i
				}
			}
		}
	}
	for _, slug := range popular {
		i, ok := s.index[NormalizeKey(slug)]
		if !ok {
			return nil, fmt.Errorf("popular city %q is not in the set", slug)
		}
		s.popular = append(s.popular, i)
	}
	return s, nil
}

// Len returns the number of cities.
func (s *Set) Len() int { return len(s.cities) }

// Cities returns a copy of all cities in configuration order.
func (s *Set) Cities() []City {
	out := make([]City, len(s.cities))
	copy(out, s.cities)
	return out
}

// Popular returns the cities offered in a picker.
func (s *Set) Popular() []City {
	if len(s.popular) == 0 {
		return s.Cities()
	}
	out := make([]City, 0, len(s.popular))
	for _, i := range s.popular {
		out = append(out, s.cities[i])
	}
	return out
}

// Lookup finds a city by slug, display name or alias, ignoring case and punctuation.
func (s *Set) Lookup(name string) (City, bool) {
	i, ok := s.index[NormalizeKey(name)]
	if !ok {
		return City{}, false
	}
	return s.cities[i], true
}

// Rank returns every city ordered by distance from (lat, lon), nearest first.
func (s *Set) Rank(lat, lon float64) []Candidate {
	out := make([]Candidate, 0, len(s.cities))
	for _, c := range s.cities {
		out = append(out, Candidate{City: c, DistanceKm: HaversineKm(lat, lon, c.Lat, c.Lon)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Nearest returns the closest city to (lat, lon).
func (s *Set) Nearest(lat, lon float64) Candidate {
	best := Candidate{DistanceKm: math.Inf(1)}
	for _, c := range s.cities {
		if d := HaversineKm(lat, lon, c.Lat, c.Lon); d < best.DistanceKm {
			best = Candidate{City: c, DistanceKm: d}
		}
	}
	return best
}

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// CheckCoordinate rejects latitudes outside [-90, 90], longitudes outside
// [-180, 180] and NaN.
func CheckCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %g,%g", ErrBadCoordinate, lat, lon)
	}
	return nil
}

// NormalizeKey lowercases name and collapses every run of non-letters into a
// single space, so "New-Delhi", "new delhi" and " NEW  DELHI " share a key.
func NormalizeKey(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// A cases.Caser keeps state between calls, so each caller takes its own.
var titleCasers = sync.Pool{
	New: func() any {
		c := cases.Title(language.English)
		return &c
	},
}

// TitleCase formats a free-form place name for display. It is safe for
// concurrent use.
func TitleCase(name string) string {
	c := titleCasers.Get().(*cases.Caser)
	defer titleCasers.Put(c)
	return c.String(strings.Join(strings.Fields(name), " "))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
