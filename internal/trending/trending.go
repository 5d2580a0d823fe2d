// Package trending lists current headlines from the Google News RSS feed.
package trending

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pouriya/toolbelt/internal/fetch"
	"github.com/pouriya/toolbelt/internal/reply"
)

// DefaultBaseURL is the Google News RSS endpoint.
const DefaultBaseURL = "https://news.google.com/rss"

const (
	DefaultRegion = "IN"
	DefaultLimit  = 10
	MaxLimit      = 20

	cacheTTL = 10 * time.Minute
)

// Topic is one headline.
type Topic struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source"`
}

// Digest is the structured payload attached to trending results.
type Digest struct {
	Region string  `json:"region"`
	Topics []Topic `json:"topics"`
}

type rss struct {
	Channel struct {
		Items []struct {
			Title  string `xml:"title"`
			Link   string `xml:"link"`
			Source string `xml:"source"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Service fetches and caches headlines per region.
type Service struct {
	fetch   *fetch.Client
	baseURL string
	cache   *cache.Cache
}

func New(fc *fetch.Client, baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{fetch: fc, baseURL: baseURL, cache: cache.New(cacheTTL, 2*cacheTTL)}
}

// Headlines returns up to limit headlines for a two-letter region code.
func (s *Service) Headlines(ctx context.Context, region string, limit int) *reply.Result {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	topics, err := s.topics(ctx, region)
	if err != nil {
		slog.WarnContext(ctx, "trending", "region", region, "err", err)
		return unavailable(region, "Unable to fetch headlines right now.")
	}
	if len(topics) == 0 {
		return unavailable(region, "No headlines parsed. Try again later.")
	}
	topics = topics[:min(limit, len(topics))]

	links := make([]reply.Link, len(topics))
	for i, t := range topics {
		links[i] = reply.Link{Label: t.Title, URL: t.Link}
	}
	return reply.Links(fmt.Sprintf("Trending in %s:", region), links...).
		WithData(Digest{Region: region, Topics: topics})
}

func (s *Service) topics(ctx context.Context, region string) ([]Topic, error) {
	if v, ok := s.cache.Get(region); ok {
		return v.([]Topic), nil
	}
	body, err := s.fetch.GetText(ctx, s.baseURL, feedQuery(region), nil)
	if err != nil {
		return nil, err
	}
	topics, err := Parse([]byte(body), "Google News "+region)
	if err != nil {
		return nil, err
	}
	if len(topics) > 0 {
		s.cache.Set(region, topics, cache.DefaultExpiration)
	}
	return topics, nil
}

// Parse reads channel items from an RSS document, skipping entries without a
// title or link and the "Top stories" section header.
func Parse(data []byte, source string) ([]Topic, error) {
	var doc rss
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rss: %w: %w", fetch.ErrUpstream, err)
	}
	var out []Topic
	for _, it := range doc.Channel.Items {
		title, link := strings.TrimSpace(it.Title), strings.TrimSpace(it.Link)
		if title == "" || link == "" || strings.Contains(title, "Top stories") {
			continue
		}
		src := strings.TrimSpace(it.Source)
		if src == "" {
			src = source
		}
		out = append(out, Topic{Title: title, Link: link, Source: src})
	}
	return out, nil
}

func feedQuery(region string) url.Values {
	return url.Values{
		"hl":   {"en-" + region},
		"gl":   {region},
		"ceid": {region + ":en"},
	}
}

func unavailable(region, text string) *reply.Result {
	return reply.Fallback(reply.UpstreamUnavailable, text,
		reply.Link{Label: "Google News", URL: "https://news.google.com/?" + feedQuery(region).Encode()})
}
