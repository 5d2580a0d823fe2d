// Package booking builds movie booking handoff links (BookMyShow and Paytm
// Movies) and the shareable booking card.
package booking

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pouriya/toolbelt/internal/geo"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/reply"
)

const (
	bmsHome   = "https://in.bookmyshow.com/"
	paytmHome = "https://paytm.com/movies"

	SourceBMS   = "bookmyshow"
	SourcePaytm = "paytm"

	// DateLayout is the date format accepted and produced by the booking tools.
	DateLayout = "2006-01-02"

	maxCardShowtimes = 6
	maxCardTimes     = 6
)

// Affiliate wraps outgoing links as Prefix + escaped URL + Suffix. The zero
// value leaves links untouched.
type Affiliate struct {
	Prefix string
	Suffix string
}

// Wrap applies the affiliate template to u.
func (a Affiliate) Wrap(u string) string {
	if a.Prefix == "" && a.Suffix == "" {
		return u
	}
	return a.Prefix + url.QueryEscape(u) + a.Suffix
}

// Showtime is one booking entry. Times is empty for handoff links.
type Showtime struct {
	Theatre     string   `json:"theatre"`
	Address     string   `json:"address,omitempty"`
	Times       []string `json:"times,omitempty"`
	BookingLink string   `json:"booking_link"`
	Source      string   `json:"source,omitempty"`
}

// CityLink is one entry of the city picker.
type CityLink struct {
	City  string `json:"city"`
	BMS   string `json:"bms"`
	Paytm string `json:"paytm"`
}

// Plan is the structured payload of a showtimes lookup.
type Plan struct {
	Movie      string     `json:"movie"`
	Date       string     `json:"date"`
	City       string     `json:"city,omitempty"`
	Showtimes  []Showtime `json:"showtimes"`
	CityPicker []CityLink `json:"city_picker,omitempty"`
}

// Card is the input of a booking card.
type Card struct {
	Date       string
	City       string
	MovieTitle string
	TrailerURL string
	Showtimes  []Showtime
	CityPicker []CityLink
}

// Service builds booking links. It makes no outbound calls.
type Service struct {
	affiliate Affiliate
	popular   []geo.City
	now       func() time.Time
}

// New creates a Service. popular seeds the city picker.
func New(popular []geo.City, aff Affiliate) *Service {
	return &Service{affiliate: aff, popular: popular, now: time.Now}
}

// Showtimes returns booking links for movieTitle on date in the resolved city.
// An unresolved or unlisted city gets site-level links plus a city picker.
func (s *Service) Showtimes(res location.Resolution, movieTitle, date string) *reply.Result {
	movieTitle = strings.TrimSpace(movieTitle)
	if strings.TrimSpace(date) == "" {
		date = s.now().Format(DateLayout)
	}
	city := res.Name()
	plan := Plan{Movie: movieLabel(movieTitle, city), Date: date, City: city}

	if res.NeedsChoice() || res.City.Slug == "" {
		plan.CityPicker = s.Picker()
		plan.Showtimes = []Showtime{
			{Theatre: "Book on BookMyShow (choose your city in-site)", BookingLink: s.affiliate.Wrap(bmsHome), Source: SourceBMS},
			{Theatre: "Book on Paytm Movies (choose city in-site)", BookingLink: s.paytm(movieTitle), Source: SourcePaytm},
		}
		links := showtimeLinks(plan.Showtimes)
		for _, c := range plan.CityPicker {
			links = append(links, reply.Link{Label: c.City + " on BookMyShow", URL: c.BMS})
		}
		text := "Which city? Pick one below, share your location, or run set_preferred_city."
		if city != "" {
			text = fmt.Sprintf("I don't have direct booking links for %s yet. Choose your city in-site or pick one below.", city)
		}
		return reply.Choice(text, links...).WithData(plan)
	}

	plan.Showtimes = []Showtime{
		{Theatre: "All theatres in " + city, BookingLink: s.bms(res.City.Slug, movieTitle), Source: SourceBMS},
		{Theatre: "Paytm Movies", BookingLink: s.paytm(movieTitle), Source: SourcePaytm},
	}
	return reply.Links(fmt.Sprintf("%s, %s:", plan.Movie, date), showtimeLinks(plan.Showtimes)...).WithData(plan)
}

// Picker lists BookMyShow and Paytm links for the popular cities.
func (s *Service) Picker() []CityLink {
	out := make([]CityLink, 0, len(s.popular))
	for _, c := range s.popular {
		out = append(out, CityLink{
			City:  c.Name,
			BMS:   s.affiliate.Wrap("https://in.bookmyshow.com/explore/movies-" + c.Slug),
			Paytm: s.affiliate.Wrap(paytmHome),
		})
	}
	return out
}

// Card renders share text for a group chat.
func (s *Service) Card(c Card) *reply.Result {
	city := strings.TrimSpace(c.City)
	movie := movieLabel(strings.TrimSpace(c.MovieTitle), city)
	date := c.Date
	if strings.TrimSpace(date) == "" {
		date = s.now().Format(DateLayout)
	}
	where := city
	if where == "" {
		where = "Nearby"
	}

	lines := []string{fmt.Sprintf("🎬 *%s* - %s (%s)", movie, where, date)}
	for _, st := range c.Showtimes[:min(maxCardShowtimes, len(c.Showtimes))] {
		theatre := st.Theatre
		if theatre == "" {
			theatre = "Showtimes"
		}
		times := "Showtimes →"
		if len(st.Times) > 0 {
			times = strings.Join(st.Times[:min(maxCardTimes, len(st.Times))], ", ")
		}
		prefix := "•"
		switch st.Source {
		case SourcePaytm:
			prefix = "• (Paytm)"
		case SourceBMS:
			prefix = "• (BMS)"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s\n  Book: %s", prefix, theatre, times, st.BookingLink))
	}
	if c.TrailerURL != "" {
		lines = append(lines, "Trailer: "+c.TrailerURL)
	}
	if len(c.CityPicker) > 0 {
		lines = append(lines, "📍 Quick city links:")
		for _, p := range c.CityPicker {
			lines = append(lines, "• "+p.City+":", "  BMS: "+p.BMS, "  Paytm: "+p.Paytm)
		}
		lines = append(lines, "Tip: Share your live location to auto-detect the city next time, or run: set_preferred_city.")
	}
	lines = append(lines, "↪️ Forward this in your group to pick a show.")

	text := strings.Join(lines, "\n")
	return reply.Text("%s", text).WithData(map[string]string{"share_text": text})
}

func (s *Service) bms(slug, movieTitle string) string {
	if movieTitle == "" {
		return s.affiliate.Wrap("https://in.bookmyshow.com/explore/movies-" + slug)
	}
	return s.affiliate.Wrap("https://in.bookmyshow.com/explore/c/" + slug + "?q=" + escape(movieTitle))
}

func (s *Service) paytm(movieTitle string) string {
	if movieTitle == "" {
		return s.affiliate.Wrap(paytmHome)
	}
	return s.affiliate.Wrap(paytmHome + "?q=" + escape(movieTitle))
}

func movieLabel(title, city string) string {
	switch {
	case title != "":
		return title
	case city != "":
		return "Now Showing in " + city
	}
	return "Now Showing"
}

func showtimeLinks(sts []Showtime) []reply.Link {
	links := make([]reply.Link, len(sts))
	for i, st := range sts {
		links[i] = reply.Link{Label: st.Theatre, URL: st.BookingLink}
	}
	return links
}

// escape percent-encodes s for use in a query value, spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
