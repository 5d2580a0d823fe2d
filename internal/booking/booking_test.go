package booking

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouriya/toolbelt/internal/geo"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/reply"
)

var (
	mumbai  = geo.City{Slug: "mumbai", Name: "Mumbai", Lat: 19.076, Lon: 72.8777}
	chennai = geo.City{Slug: "chennai", Name: "Chennai", Lat: 13.0827, Lon: 80.2707}
)

func newService(aff Affiliate) *Service {
	s := New([]geo.City{mumbai, chennai}, aff)
	s.now = func() time.Time { return time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestShowtimes_KnownCity(t *testing.T) {
	s := newService(Affiliate{})
	res := s.Showtimes(location.Resolution{City: chennai, Known: true}, "Jailer 2", "")
	require.Equal(t, reply.KindLinks, res.Kind)
	assert.Equal(t, "Jailer 2, 2025-08-10:", res.Text)
	require.Len(t, res.Links, 2)
	assert.Equal(t, "All theatres in Chennai", res.Links[0].Label)
	assert.Equal(t, "https://in.bookmyshow.com/explore/c/chennai?q=Jailer%202", res.Links[0].URL)
	assert.Equal(t, "https://paytm.com/movies?q=Jailer%202", res.Links[1].URL)

	plan := res.Data.(Plan)
	assert.Empty(t, plan.CityPicker)
	assert.Equal(t, "Chennai", plan.City)

	res = s.Showtimes(location.Resolution{City: mumbai, Known: true}, "", "2025-08-12")
	assert.Equal(t, "Now Showing in Mumbai, 2025-08-12:", res.Text)
	assert.Equal(t, "https://in.bookmyshow.com/explore/movies-mumbai", res.Links[0].URL)
	assert.Equal(t, "https://paytm.com/movies", res.Links[1].URL)
}

func TestShowtimes_NoCityGivesPicker(t *testing.T) {
	s := newService(Affiliate{})
	res := s.Showtimes(location.Resolution{Source: location.SourceNone, Choices: []geo.City{mumbai, chennai}}, "", "")
	assert.Equal(t, reply.KindCityChoice, res.Kind)
	assert.False(t, res.IsError())
	plan := res.Data.(Plan)
	assert.Equal(t, "Now Showing", plan.Movie)
	require.Len(t, plan.CityPicker, 2)
	assert.Equal(t, CityLink{City: "Mumbai", BMS: "https://in.bookmyshow.com/explore/movies-mumbai", Paytm: "https://paytm.com/movies"}, plan.CityPicker[0])
	require.Len(t, plan.Showtimes, 2)
	assert.Equal(t, "https://in.bookmyshow.com/", plan.Showtimes[0].BookingLink)
	assert.Len(t, res.Links, 4)
}

func TestShowtimes_UnlistedCity(t *testing.T) {
	s := newService(Affiliate{})
	res := s.Showtimes(location.Resolution{City: geo.City{Name: "Shimla"}, Source: location.SourceExplicit}, "Dune", "")
	assert.Equal(t, reply.KindCityChoice, res.Kind)
	assert.Contains(t, res.Text, "Shimla")
	assert.Equal(t, "https://paytm.com/movies?q=Dune", res.Data.(Plan).Showtimes[1].BookingLink)
}

func TestAffiliateWrap(t *testing.T) {
	assert.Equal(t, "https://x.test/a", Affiliate{}.Wrap("https://x.test/a"))
	a := Affiliate{Prefix: "https://aff.test/r?u=", Suffix: "&tag=tb"}
	assert.Equal(t, "https://aff.test/r?u=https%3A%2F%2Fpaytm.com%2Fmovies&tag=tb", a.Wrap("https://paytm.com/movies"))

	s := newService(a)
	res := s.Showtimes(location.Resolution{City: chennai, Known: true}, "", "")
	for _, l := range res.Links {
		assert.True(t, strings.HasPrefix(l.URL, a.Prefix), l.URL)
	}
}

func TestCard(t *testing.T) {
	s := newService(Affiliate{})
	res := s.Card(Card{
		Date:       "2025-08-10",
		City:       "Chennai",
		MovieTitle: "Coolie",
		TrailerURL: "https://youtu.be/x",
		Showtimes: []Showtime{
			{Theatre: "PVR Grand Galada", Times: []string{"10:00", "13:30"}, BookingLink: "https://bms/1", Source: SourceBMS},
			{BookingLink: "https://paytm/1", Source: SourcePaytm},
		},
	})
	want := "🎬 *Coolie* - Chennai (2025-08-10)\n" +
		"• (BMS) PVR Grand Galada: 10:00, 13:30\n  Book: https://bms/1\n" +
		"• (Paytm) Showtimes: Showtimes →\n  Book: https://paytm/1\n" +
		"Trailer: https://youtu.be/x\n" +
		"↪️ Forward this in your group to pick a show."
	assert.Equal(t, want, res.Text)
	assert.Equal(t, want, res.Data.(map[string]string)["share_text"])
}

func TestCard_PickerAndDefaults(t *testing.T) {
	s := newService(Affiliate{})
	res := s.Card(Card{CityPicker: s.Picker()})
	lines := strings.Split(res.Text, "\n")
	assert.Equal(t, "🎬 *Now Showing* - Nearby (2025-08-10)", lines[0])
	assert.Equal(t, "📍 Quick city links:", lines[1])
	assert.Equal(t, "• Mumbai:", lines[2])
	assert.Contains(t, res.Text, "set_preferred_city")
}
