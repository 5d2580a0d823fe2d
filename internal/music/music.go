// Package music recommends tracks for a vibe through the Spotify Web API,
// biasing seeds and ranking towards the script of the user's language.
package music

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pouriya/toolbelt/internal/reply"
)

const (
	DefaultVibe  = "chill"
	DefaultLimit = 10
	MaxLimit     = 50

	maxSeeds     = 5
	searchLimit  = 15
	fallbackSeed = 3
)

// commonGenres is used when neither the script pool nor the user's words
// match an available seed.
var commonGenres = []string{"pop", "indie", "rock", "electronic", "dance"}

var quotedRe = regexp.MustCompile(`"([^"]+)"`)

// Request describes what the user asked for.
type Request struct {
	Vibe     string
	Language string
	UserText string
	Limit    int
}

// Recommendation is one track with listen links on several services.
type Recommendation struct {
	Title      string `json:"title"`
	Artists    string `json:"artists"`
	Spotify    string `json:"spotify"`
	AppleMusic string `json:"apple_music"`
	JioSaavn   string `json:"jiosaavn"`
	YouTube    string `json:"youtube"`
}

// Picks is the structured payload attached to music results.
type Picks struct {
	Vibe       string           `json:"vibe"`
	Language   string           `json:"language,omitempty"`
	Script     Script           `json:"script"`
	SeedTracks []string         `json:"seed_tracks,omitempty"`
	SeedGenres []string         `json:"seed_genres,omitempty"`
	Tracks     []Recommendation `json:"tracks"`
	Note       string           `json:"note,omitempty"`
}

// Service answers music requests.
type Service struct {
	spotify *Spotify
}

func New(sp *Spotify) *Service {
	return &Service{spotify: sp}
}

// Recommend returns up to req.Limit tracks for the vibe. Missing credentials and
// upstream failures produce search links instead.
func (s *Service) Recommend(ctx context.Context, req Request) *reply.Result {
	req = normalize(req)
	script := Detect(req.UserText, req.Language)
	pool := GenrePool(script)

	if !s.spotify.Configured() {
		return reply.Fallback(reply.NotConfigured,
			"Spotify isn't configured on this server (SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET). Try these searches instead:",
			searchLinks(fallbackQuery(req, pool))...)
	}
	if _, err := s.spotify.token(ctx); err != nil {
		slog.WarnContext(ctx, "spotify token", "err", err)
		return unavailable(req, pool)
	}

	picks := Picks{Vibe: req.Vibe, Language: req.Language, Script: script}
	seeds := s.seedTracks(ctx, searchQueries(req), script)
	params := audioFeatures(req.Vibe)
	params.Set("limit", strconv.Itoa(min(MaxLimit, max(10, req.Limit*3))))
	if len(seeds) > 0 {
		for _, t := range seeds {
			picks.SeedTracks = append(picks.SeedTracks, t.ID)
		}
		params.Set("seed_tracks", strings.Join(picks.SeedTracks, ","))
	} else {
		available, err := s.spotify.AvailableGenres(ctx)
		if err != nil {
			slog.WarnContext(ctx, "spotify genre seeds", "err", err)
			available = commonGenres
		}
		picks.SeedGenres = pickGenres(available, pool, req)
		params.Set("seed_genres", strings.Join(picks.SeedGenres, ","))
	}

	recs, err := s.spotify.Recommendations(ctx, params)
	if err != nil {
		slog.WarnContext(ctx, "spotify recommendations", "err", err)
		if len(seeds) == 0 {
			return unavailable(req, pool)
		}
		recs = seeds
		picks.Note = "Recommendations are unavailable; these are the closest search matches."
	}

	for _, t := range rankByScript(recs, script) {
		if len(picks.Tracks) == req.Limit {
			break
		}
		picks.Tracks = append(picks.Tracks, recommendation(t))
	}
	if len(picks.Tracks) == 0 {
		return reply.Links(fmt.Sprintf("No %s tracks came back. Try these searches:", req.Vibe),
			searchLinks(fallbackQuery(req, pool))...).WithData(picks)
	}
	return render(picks)
}

func normalize(req Request) Request {
	req.Vibe = strings.TrimSpace(req.Vibe)
	if req.Vibe == "" {
		req.Vibe = DefaultVibe
	}
	req.Language = strings.TrimSpace(req.Language)
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	return req
}

// searchQueries builds seed searches: "language vibe", language, vibe, any
// quoted phrases from the user text, then its Latin words.
func searchQueries(req Request) []string {
	var qs []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		for _, have := range qs {
			if strings.EqualFold(have, q) {
				return
			}
		}
		qs = append(qs, q)
	}
	if req.Language != "" {
		add(req.Language + " " + req.Vibe)
		add(req.Language)
	}
	add(req.Vibe)
	for _, m := range quotedRe.FindAllStringSubmatch(req.UserText, -1) {
		add(m[1])
	}
	add(strings.Join(Words(req.UserText), " "))
	return qs
}

// seedTracks collects up to maxSeeds distinct tracks, preferring those written
// in script within each query's results.
func (s *Service) seedTracks(ctx context.Context, queries []string, script Script) []Track {
	var seeds []Track
	seen := make(map[string]bool)
	for _, q := range queries {
		items, err := s.spotify.SearchTracks(ctx, q, searchLimit)
		if err != nil {
			slog.DebugContext(ctx, "spotify search", "query", q, "err", err)
			continue
		}
		for _, t := range rankByScript(items, script) {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			seeds = append(seeds, t)
			if len(seeds) == maxSeeds {
				return seeds
			}
		}
	}
	return seeds
}

// pickGenres chooses seed genres: the user's own words that name a genre, then
// the script pool, both limited to what the catalogue offers.
func pickGenres(available, pool []string, req Request) []string {
	var picked []string
	add := func(g string) {
		if len(picked) < maxSeeds && slices.Contains(available, g) && !slices.Contains(picked, g) {
			picked = append(picked, g)
		}
	}
	for _, src := range []string{req.UserText, req.Language} {
		for _, w := range Words(src) {
			add(w)
		}
	}
	for _, g := range pool {
		add(g)
	}
	if len(picked) > 0 {
		return picked
	}
	for _, g := range commonGenres {
		if len(picked) == fallbackSeed {
			break
		}
		add(g)
	}
	if len(picked) == 0 && len(available) > 0 {
		picked = available[:min(fallbackSeed, len(available))]
	}
	return picked
}

func audioFeatures(vibe string) url.Values {
	v := strings.ToLower(vibe)
	p := url.Values{}
	switch {
	case strings.Contains(v, "chill"):
		p.Set("target_valence", "0.5")
		p.Set("target_energy", "0.3")
	case strings.Contains(v, "focus"):
		p.Set("target_valence", "0.3")
		p.Set("target_energy", "0.2")
		p.Set("min_instrumentalness", "0.5")
	case strings.Contains(v, "workout"), strings.Contains(v, "gym"):
		p.Set("target_valence", "0.6")
		p.Set("target_energy", "0.8")
	case strings.Contains(v, "party"):
		p.Set("target_valence", "0.8")
		p.Set("target_energy", "0.8")
		p.Set("min_danceability", "0.6")
	case strings.Contains(v, "romance"), strings.Contains(v, "love"):
		p.Set("target_valence", "0.7")
		p.Set("target_energy", "0.4")
	default:
		p.Set("target_valence", "0.5")
		p.Set("target_energy", "0.5")
	}
	return p
}

// rankByScript moves tracks whose title or artists are written in script to
// the front, keeping relative order otherwise.
func rankByScript(tracks []Track, script Script) []Track {
	out := make([]Track, 0, len(tracks))
	var rest []Track
	for _, t := range tracks {
		if script.Matches(t.Name) || script.Matches(t.ArtistNames()) {
			out = append(out, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(out, rest...)
}

func recommendation(t Track) Recommendation {
	r := Recommendation{Title: t.Name, Artists: t.ArtistNames(), Spotify: t.ExternalURLs.Spotify}
	if r.Title == "" {
		r.Title = "Track"
	}
	if r.Spotify == "" {
		r.Spotify = "https://open.spotify.com/"
	}
	q := url.QueryEscape(strings.TrimSpace(t.Name + " " + r.Artists))
	if q == "" {
		q = "music"
	}
	r.AppleMusic = "https://music.apple.com/in/search?term=" + q
	r.JioSaavn = "https://www.jiosaavn.com/search/" + url.PathEscape(strings.TrimSpace(t.Name+" "+r.Artists))
	r.YouTube = "https://www.youtube.com/results?search_query=" + q
	if r.Artists == "" {
		r.Artists = "Unknown artist"
	}
	return r
}

func render(p Picks) *reply.Result {
	var b strings.Builder
	fmt.Fprintf(&b, "%s picks", strings.TrimSpace(p.Language+" "+p.Vibe))
	if p.Note != "" {
		fmt.Fprintf(&b, " (%s)", p.Note)
	}
	b.WriteByte(':')
	links := make([]reply.Link, 0, len(p.Tracks))
	for i, t := range p.Tracks {
		fmt.Fprintf(&b, "\n%d. %s by %s", i+1, t.Title, t.Artists)
		links = append(links, reply.Link{Label: t.Title + " by " + t.Artists, URL: t.Spotify})
	}
	return reply.Links(b.String(), links...).WithData(p)
}

func fallbackQuery(req Request, pool []string) string {
	lead := req.Language
	if lead == "" && len(pool) > 0 {
		lead = pool[0]
	}
	return strings.TrimSpace(lead + " " + req.Vibe)
}

func searchLinks(query string) []reply.Link {
	q := url.QueryEscape(query)
	return []reply.Link{
		{Label: "Spotify", URL: "https://open.spotify.com/search/" + url.PathEscape(query)},
		{Label: "YouTube Music", URL: "https://music.youtube.com/search?q=" + q},
		{Label: "JioSaavn", URL: "https://www.jiosaavn.com/search/" + url.PathEscape(query)},
		{Label: "Apple Music", URL: "https://music.apple.com/in/search?term=" + q},
	}
}

func unavailable(req Request, pool []string) *reply.Result {
	return reply.Fallback(reply.UpstreamUnavailable,
		fmt.Sprintf("Spotify is unavailable right now, so here are searches for %s music:", req.Vibe),
		searchLinks(fallbackQuery(req, pool))...)
}
