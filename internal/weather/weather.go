// Package weather wraps the Open-Meteo forecast API.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/pouriya/toolbelt/internal/fetch"
	"github.com/pouriya/toolbelt/internal/geocode"
	"github.com/pouriya/toolbelt/internal/reply"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

const (
	DefaultDays = 3
	MaxDays     = 7
)

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Place, error)
}

// Where is the place to report on. Coordinates win over Label; Label alone is geocoded.
type Where struct {
	Label string
	Lat   *float64
	Lon   *float64
}

// Service answers weather questions.
type Service struct {
	fetch    *fetch.Client
	geocoder Geocoder
	baseURL  string
}

// New creates a Service. baseURL defaults to DefaultBaseURL.
func New(fc *fetch.Client, geocoder Geocoder, baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{fetch: fc, geocoder: geocoder, baseURL: baseURL}
}

// Current holds the Open-Meteo current_weather block.
type Current struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	IsDay         int     `json:"is_day"`
	Time          string  `json:"time"`
}

// Daily holds the Open-Meteo daily arrays.
type Daily struct {
	Time        []string   `json:"time"`
	TempMax     []float64  `json:"temperature_2m_max"`
	TempMin     []float64  `json:"temperature_2m_min"`
	RainChance  []*float64 `json:"precipitation_probability_mean"`
	WeatherCode []int      `json:"weathercode"`
}

// Report is the structured payload attached to weather results.
type Report struct {
	Where   string   `json:"where"`
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Current *Current `json:"current,omitempty"`
	Daily   *Daily   `json:"daily,omitempty"`
}

// Now reports current conditions.
func (s *Service) Now(ctx context.Context, w Where) *reply.Result {
	lat, lon, label, res := s.locate(ctx, w)
	if res != nil {
		return res
	}
	var body struct {
		Current Current `json:"current_weather"`
	}
	q := coords(lat, lon)
	q.Set("current_weather", "true")
	q.Set("timezone", "auto")
	if err := s.fetch.GetJSON(ctx, s.baseURL, q, nil, &body); err != nil {
		slog.WarnContext(ctx, "weather now", "where", label, "err", err)
		return unavailable(label)
	}
	c := body.Current
	return reply.Text("%s: %s°C, %s, wind %s km/h (as of %s)",
		label, num(c.Temperature), Describe(c.WeatherCode), num(c.WindSpeed), c.Time).
		WithData(Report{Where: label, Lat: lat, Lon: lon, Current: &c})
}

// Forecast reports daily highs, lows and rain chance for days (1..MaxDays).
func (s *Service) Forecast(ctx context.Context, w Where, days int) *reply.Result {
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}
	lat, lon, label, res := s.locate(ctx, w)
	if res != nil {
		return res
	}
	var body struct {
		Daily Daily `json:"daily"`
	}
	q := coords(lat, lon)
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_mean,weathercode")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(days))
	if err := s.fetch.GetJSON(ctx, s.baseURL, q, nil, &body); err != nil {
		slog.WarnContext(ctx, "weather forecast", "where", label, "err", err)
		return unavailable(label)
	}
	d := body.Daily
	var b strings.Builder
	fmt.Fprintf(&b, "%d-day forecast for %s:", len(d.Time), label)
	for i, day := range d.Time {
		fmt.Fprintf(&b, "\n%s: %s–%s°C", day, num(at(d.TempMin, i)), num(at(d.TempMax, i)))
		if i < len(d.WeatherCode) {
			fmt.Fprintf(&b, ", %s", Describe(d.WeatherCode[i]))
		}
		if i < len(d.RainChance) && d.RainChance[i] != nil {
			fmt.Fprintf(&b, ", rain chance %s%%", num(*d.RainChance[i]))
		}
	}
	return reply.Text("%s", b.String()).WithData(Report{Where: label, Lat: lat, Lon: lon, Daily: &d})
}

func (s *Service) locate(ctx context.Context, w Where) (lat, lon float64, label string, res *reply.Result) {
	if w.Lat != nil && w.Lon != nil {
		label = w.Label
		if label == "" {
			label = fmt.Sprintf("%s,%s", num(*w.Lat), num(*w.Lon))
		}
		return *w.Lat, *w.Lon, label, nil
	}
	if strings.TrimSpace(w.Label) == "" {
		return 0, 0, "", reply.Text("Please provide a city or share your location.")
	}
	p, err := s.geocoder.Search(ctx, w.Label)
	if err != nil {
		slog.WarnContext(ctx, "weather geocode", "where", w.Label, "err", err)
		if errors.Is(err, geocode.ErrNoMatch) {
			return 0, 0, "", reply.Text("I couldn't find a place called %q. Try a nearby city or share your location.", w.Label)
		}
		return 0, 0, "", unavailable(w.Label)
	}
	return p.Lat, p.Lon, w.Label, nil
}

func unavailable(label string) *reply.Result {
	return reply.Fallback(reply.UpstreamUnavailable,
		fmt.Sprintf("Weather for %s is unavailable right now. Please try again in a bit.", label),
		reply.Link{Label: "Open-Meteo", URL: "https://open-meteo.com/"})
}

func coords(lat, lon float64) url.Values {
	return url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 4, 64)},
	}
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// num formats a float without trailing zeros.
func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
