// Package tools decodes named tool calls into typed variants and routes them
// to the lookup adapters.
package tools

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/pouriya/toolbelt/internal/booking"
	"github.com/pouriya/toolbelt/internal/geo"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/music"
	"github.com/pouriya/toolbelt/internal/trending"
	"github.com/pouriya/toolbelt/internal/weather"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrNoOwner          = errors.New("owner token not configured")
)

// ArgError reports a bad argument. It matches ErrInvalidArguments.
type ArgError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Field, e.Reason)
}

func (e *ArgError) Unwrap() error { return ErrInvalidArguments }

// Call is a decoded tool invocation. The set of implementations is closed.
type Call interface {
	// Tool is the canonical tool name.
	Tool() string
	validate() error
}

// Location is the optional place input shared by location-aware tools.
type Location struct {
	City string   `json:"city,omitempty" jsonschema_description:"City name; defaults to your location or preferred city"`
	Lat  *float64 `json:"lat,omitempty" jsonschema:"minimum=-90,maximum=90" jsonschema_description:"Latitude of your current location"`
	Lon  *float64 `json:"lon,omitempty" jsonschema:"minimum=-180,maximum=180" jsonschema_description:"Longitude of your current location"`
}

func (l Location) query() location.Query {
	return location.Query{City: strings.TrimSpace(l.City), Lat: l.Lat, Lon: l.Lon}
}

func (l Location) check(tool string) error {
	if (l.Lat == nil) != (l.Lon == nil) {
		return &ArgError{Tool: tool, Field: "lat", Reason: "lat and lon must be given together"}
	}
	if l.Lat != nil {
		if err := geo.CheckCoordinate(*l.Lat, *l.Lon); err != nil {
			return &ArgError{Tool: tool, Field: "lat", Reason: err.Error()}
		}
	}
	return nil
}

type Ping struct{}

type Validate struct{}

type WeatherNow struct {
	Location
}

type WeatherForecast struct {
	Location
	Days *int `json:"days,omitempty" jsonschema:"minimum=1,maximum=7,default=3" jsonschema_description:"Number of days to forecast"`
}

type Music struct {
	Vibe     string `json:"vibe" jsonschema_description:"Mood or activity, e.g. workout, chill, party, focus"`
	Language string `json:"language,omitempty" jsonschema_description:"Language or scene hint, e.g. tamil, punjabi, k-pop"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50,default=10" jsonschema_description:"Number of tracks"`
	UserText string `json:"user_text,omitempty" jsonschema_description:"The user's original message, used to detect their script"`
}

type QuickBook struct {
	Location
	MovieTitle string `json:"movie_title,omitempty" jsonschema_description:"Movie to book"`
	Date       string `json:"date,omitempty" jsonschema:"format=date" jsonschema_description:"Show date (YYYY-MM-DD), defaults to today"`
}

type BookingCard struct {
	Date       string             `json:"date" jsonschema:"format=date" jsonschema_description:"Show date (YYYY-MM-DD)"`
	Showtimes  []booking.Showtime `json:"showtimes" jsonschema_description:"Showtimes as returned by quick_book"`
	City       string             `json:"city,omitempty"`
	MovieTitle string             `json:"movie_title,omitempty"`
	TrailerURL string             `json:"trailer_url,omitempty" jsonschema:"format=uri"`
	CityPicker []booking.CityLink `json:"city_picker,omitempty" jsonschema_description:"City links as returned by quick_book"`
}

type WhereToWatch struct {
	Title    string `json:"title" jsonschema_description:"Movie or show title"`
	Language string `json:"language,omitempty"`
}

type Trending struct {
	Region string `json:"region,omitempty" jsonschema:"pattern=^[A-Za-z]{2}$,default=IN" jsonschema_description:"Two-letter country code"`
	Limit  *int   `json:"limit,omitempty" jsonschema:"minimum=1,maximum=20,default=10" jsonschema_description:"Number of headlines"`
}

type SetPreferredCity struct {
	City string `json:"city" jsonschema_description:"City to use when no location is given"`
}

type GetPreferredCity struct{}

type ClearPreferredCity struct{}

func (*Ping) Tool() string               { return "ping" }
func (*Validate) Tool() string           { return "validate" }
func (*WeatherNow) Tool() string         { return "weather_now" }
func (*WeatherForecast) Tool() string    { return "weather_forecast" }
func (*Music) Tool() string              { return "music" }
func (*QuickBook) Tool() string          { return "quick_book" }
func (*BookingCard) Tool() string        { return "generate_booking_card" }
func (*WhereToWatch) Tool() string       { return "ott_where_to_watch" }
func (*Trending) Tool() string           { return "trending" }
func (*SetPreferredCity) Tool() string   { return "set_preferred_city" }
func (*GetPreferredCity) Tool() string   { return "get_preferred_city" }
func (*ClearPreferredCity) Tool() string { return "clear_preferred_city" }

func (*Ping) validate() error               { return nil }
func (*Validate) validate() error           { return nil }
func (*GetPreferredCity) validate() error   { return nil }
func (*ClearPreferredCity) validate() error { return nil }

func (c *WeatherNow) validate() error { return c.check(c.Tool()) }

func (c *WeatherForecast) validate() error {
	if err := checkRange(c.Tool(), "days", c.Days, weather.MaxDays); err != nil {
		return err
	}
	return c.check(c.Tool())
}

func (c *Music) validate() error {
	if strings.TrimSpace(c.Vibe) == "" {
		return &ArgError{Tool: c.Tool(), Field: "vibe", Reason: "is required"}
	}
	return checkRange(c.Tool(), "limit", c.Limit, music.MaxLimit)
}

func (c *QuickBook) validate() error {
	if c.Date != "" {
		if err := checkDate(c.Tool(), c.Date); err != nil {
			return err
		}
	}
	return c.check(c.Tool())
}

func (c *BookingCard) validate() error {
	if c.Showtimes == nil {
		return &ArgError{Tool: c.Tool(), Field: "showtimes", Reason: "is required"}
	}
	return checkDate(c.Tool(), c.Date)
}

func (c *WhereToWatch) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return &ArgError{Tool: c.Tool(), Field: "title", Reason: "is required"}
	}
	return nil
}

var regionRe = regexp.MustCompile(`^[A-Za-z]{2}$`)

func (c *Trending) validate() error {
	if c.Region != "" && !regionRe.MatchString(c.Region) {
		return &ArgError{Tool: c.Tool(), Field: "region", Reason: "must be a two-letter country code"}
	}
	return checkRange(c.Tool(), "limit", c.Limit, trending.MaxLimit)
}

func (c *SetPreferredCity) validate() error {
	if strings.TrimSpace(c.City) == "" {
		return &ArgError{Tool: c.Tool(), Field: "city", Reason: "is required"}
	}
	return nil
}

// checkRange accepts an absent value or one in [1, hi].
func checkRange(tool, field string, v *int, hi int) error {
	if v != nil && (*v < 1 || *v > hi) {
		return &ArgError{Tool: tool, Field: field, Reason: fmt.Sprintf("must be between 1 and %d", hi)}
	}
	return nil
}

// value returns *v, or 0 when the argument was omitted.
func value(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func checkDate(tool, date string) error {
	if _, err := time.Parse(booking.DateLayout, date); err != nil {
		return &ArgError{Tool: tool, Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return nil
}

type entry struct {
	name        string
	description string
	new         func() Call
}

// registry lists every tool in tools/list order. Aliases share a variant.
var registry = []entry{
	{"ping", "Health check. Replies pong without calling any external service.", func() Call { return &Ping{} }},
	{"validate", "Returns the server owner's identifying number.", func() Call { return &Validate{} }},
	{"weather_now", "Current weather for a city or your location.", func() Call { return &WeatherNow{} }},
	{"weather_forecast", "Daily forecast (1-7 days) for a city or your location.", func() Call { return &WeatherForecast{} }},
	{"music", "Song recommendations for a vibe, biased to your language.", func() Call { return &Music{} }},
	{"music_vibe_recommendations", "Alias of music.", func() Call { return &Music{} }},
	{"quick_book", "Movie booking links (BookMyShow, Paytm) for your city.", func() Call { return &QuickBook{} }},
	{"fetch_showtimes", "Alias of quick_book.", func() Call { return &QuickBook{} }},
	{"generate_booking_card", "Shareable booking text from quick_book results.", func() Call { return &BookingCard{} }},
	{"ott_where_to_watch", "Streaming search links for a movie or show.", func() Call { return &WhereToWatch{} }},
	{"trending", "Top news headlines for a region.", func() Call { return &Trending{} }},
	{"trending_topics", "Alias of trending.", func() Call { return &Trending{} }},
	{"set_preferred_city", "Remember a default city for location-aware tools.", func() Call { return &SetPreferredCity{} }},
	{"get_preferred_city", "Show the remembered default city.", func() Call { return &GetPreferredCity{} }},
	{"clear_preferred_city", "Forget the remembered default city.", func() Call { return &ClearPreferredCity{} }},
}

func lookup(name string) (entry, bool) {
	for _, e := range registry {
		if e.name == name {
			return e, true
		}
	}
	return entry{}, false
}

// Decode turns a tool name and its JSON arguments into a validated Call.
func Decode(name string, args map[string]any) (Call, error) {
	e, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	call := e.new()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Squash:      true,
		ErrorUnused: true,
		DecodeHook:  wholeNumbers,
		Result:      call,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: decoder: %w", name, err)
	}
	if err := dec.Decode(args); err != nil {
		return nil, &ArgError{Tool: name, Reason: err.Error()}
	}
	if err := call.validate(); err != nil {
		return nil, err
	}
	return call, nil
}

// wholeNumbers rejects JSON numbers with a fraction bound for an int field.
func wholeNumbers(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	if f, ok := data.(float64); ok && f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number", f)
	}
	return data, nil
}

// Definition describes one tool for tools/list.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

var definitions = sync.OnceValue(func() []Definition {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
		DoNotReference: true,
	}
	defs := make([]Definition, 0, len(registry))
	for _, e := range registry {
		s := r.Reflect(e.new())
		s.Version = ""
		defs = append(defs, Definition{Name: e.name, Description: e.description, InputSchema: s})
	}
	return defs
})

// Definitions returns every tool with a JSON Schema generated from its
// argument type.
func Definitions() []Definition { return definitions() }
