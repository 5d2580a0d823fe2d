package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pouriya/toolbelt/internal/booking"
	"github.com/pouriya/toolbelt/internal/geo"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/metrics"
	"github.com/pouriya/toolbelt/internal/music"
	"github.com/pouriya/toolbelt/internal/ott"
	"github.com/pouriya/toolbelt/internal/reply"
	"github.com/pouriya/toolbelt/internal/trending"
	"github.com/pouriya/toolbelt/internal/weather"
)

// PreferenceStore persists the preferred city.
type PreferenceStore interface {
	SetPreferredCity(ctx context.Context, city string) error
	PreferredCity(ctx context.Context) (string, bool, error)
	ClearPreferredCity(ctx context.Context) error
}

// Dispatcher routes decoded calls to their handlers.
type Dispatcher struct {
	Owner    string
	Resolver *location.Resolver
	Prefs    PreferenceStore
	Weather  *weather.Service
	Music    *music.Service
	Trending *trending.Service
	Booking  *booking.Service
}

// Call decodes and dispatches one tool invocation, recording a metric and a
// log line for it.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (*reply.Result, error) {
	start := time.Now()
	res, err := d.call(ctx, name, args)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case res.IsError():
		outcome = metrics.OutcomeFallback
	}
	label := name
	if errors.Is(err, ErrUnknownTool) {
		label = "unknown"
	}
	metrics.ObserveTool(label, outcome, elapsed)

	attrs := []any{"tool", name, "outcome", outcome, "duration_ms", elapsed.Milliseconds()}
	if err != nil {
		slog.WarnContext(ctx, "tool call", append(attrs, "err", err)...)
	} else {
		slog.InfoContext(ctx, "tool call", append(attrs, "kind", res.Kind)...)
	}
	return res, err
}

func (d *Dispatcher) call(ctx context.Context, name string, args map[string]any) (*reply.Result, error) {
	c, err := Decode(name, args)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, c)
}

// Dispatch runs a decoded call. Upstream failures come back as fallback
// results; only argument and storage errors are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (*reply.Result, error) {
	res, err := d.dispatch(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Tool(), err)
	}
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, call Call) (*reply.Result, error) {
	switch c := call.(type) {
	case *Ping:
		return reply.Text("pong"), nil

	case *Validate:
		if d.Owner == "" {
			return nil, ErrNoOwner
		}
		return reply.Text("%s", d.Owner), nil

	case *WeatherNow:
		w, res := d.where(ctx, c.Location)
		if res != nil {
			return res, nil
		}
		return d.Weather.Now(ctx, w), nil

	case *WeatherForecast:
		w, res := d.where(ctx, c.Location)
		if res != nil {
			return res, nil
		}
		return d.Weather.Forecast(ctx, w, value(c.Days)), nil

	case *Music:
		return d.Music.Recommend(ctx, music.Request{
			Vibe:     c.Vibe,
			Language: c.Language,
			UserText: c.UserText,
			Limit:    value(c.Limit),
		}), nil

	case *QuickBook:
		return d.Booking.Showtimes(d.Resolver.Resolve(ctx, c.query()), c.MovieTitle, c.Date), nil

	case *BookingCard:
		return d.Booking.Card(booking.Card{
			Date:       c.Date,
			City:       c.City,
			MovieTitle: c.MovieTitle,
			TrailerURL: c.TrailerURL,
			Showtimes:  c.Showtimes,
			CityPicker: c.CityPicker,
		}), nil

	case *WhereToWatch:
		res, err := ott.WhereToWatch(c.Title, c.Language)
		if errors.Is(err, ott.ErrEmptyTitle) {
			return nil, &ArgError{Tool: c.Tool(), Field: "title", Reason: err.Error()}
		}
		return res, err

	case *Trending:
		return d.Trending.Headlines(ctx, c.Region, value(c.Limit)), nil

	case *SetPreferredCity:
		name := strings.TrimSpace(c.City)
		if city, ok := d.Resolver.Cities().Lookup(name); ok {
			name = city.Name
		} else {
			name = geo.TitleCase(name)
		}
		if err := d.Prefs.SetPreferredCity(ctx, name); err != nil {
			return nil, err
		}
		return reply.Text("Saved %s as your preferred city.", name).
			WithData(map[string]string{"preferred_city": name}), nil

	case *GetPreferredCity:
		city, ok, err := d.Prefs.PreferredCity(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return reply.Text("No preferred city set yet. Use set_preferred_city to save one."), nil
		}
		return reply.Text("Your preferred city is %s.", city).
			WithData(map[string]string{"preferred_city": city}), nil

	case *ClearPreferredCity:
		if err := d.Prefs.ClearPreferredCity(ctx); err != nil {
			return nil, err
		}
		return reply.Text("Preferred city cleared."), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownTool, call)
}

// where resolves the weather location. Supplied coordinates are used as-is,
// labelled with the resolved city; a listed city uses its centre. A non-nil
// Result asks the user to pick a city.
func (d *Dispatcher) where(ctx context.Context, l Location) (weather.Where, *reply.Result) {
	q := l.query()
	res := d.Resolver.Resolve(ctx, q)
	switch {
	case q.HasCoordinates() && !res.NeedsChoice() &&
		(res.Source == location.SourceCoordinates || res.Source == location.SourceReverseGeocode):
		return weather.Where{Label: res.Name(), Lat: q.Lat, Lon: q.Lon}, nil
	case q.HasCoordinates() && res.NeedsChoice():
		return weather.Where{Lat: q.Lat, Lon: q.Lon}, nil
	case res.NeedsChoice():
		return weather.Where{}, cityChoice(res.Choices)
	case res.Known:
		lat, lon := res.City.Lat, res.City.Lon
		return weather.Where{Label: res.Name(), Lat: &lat, Lon: &lon}, nil
	}
	return weather.Where{Label: res.Name()}, nil
}

func cityChoice(choices []geo.City) *reply.Result {
	names := make([]string, len(choices))
	for i, c := range choices {
		names[i] = c.Name
	}
	return reply.Choice(fmt.Sprintf("Which city? Share your location or pick one: %s.", strings.Join(names, ", "))).
		WithData(map[string]any{"choices": names})
}
