// Package ott builds "where to watch" search deeplinks for streaming services.
package ott

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pouriya/toolbelt/internal/reply"
)

// ErrEmptyTitle is returned when no title is given.
var ErrEmptyTitle = errors.New("title is required")

var smartSites = []string{"netflix.com", "primevideo.com", "hotstar.com", "jiocinema.com", "sonyliv.com"}

// Links returns one search deeplink per service for title. language, when
// set, narrows the web search.
func Links(title, language string) ([]reply.Link, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	q := escape(title)
	sites := make([]string, len(smartSites))
	for i, s := range smartSites {
		sites[i] = "site:" + s
	}
	smart := strings.TrimSpace(title + " " + strings.TrimSpace(language))
	return []reply.Link{
		{Label: "Netflix", URL: "https://www.netflix.com/search?q=" + q},
		{Label: "Prime Video", URL: "https://www.primevideo.com/search?phrase=" + q},
		{Label: "Disney+ Hotstar", URL: "https://www.hotstar.com/in/search?q=" + q},
		{Label: "JioCinema", URL: "https://www.jiocinema.com/search/" + q},
		{Label: "Sony LIV", URL: "https://www.sonyliv.com/search/" + q},
		{Label: "YouTube Movies", URL: "https://www.youtube.com/results?search_query=" + escape(title+" full movie")},
		{Label: "Smart Search", URL: "https://www.google.com/search?q=" + escape(smart+" watch online "+strings.Join(sites, " OR "))},
	}, nil
}

// WhereToWatch wraps Links into a result.
func WhereToWatch(title, language string) (*reply.Result, error) {
	links, err := Links(title, language)
	if err != nil {
		return nil, err
	}
	return reply.Links(fmt.Sprintf("Where to watch %q:", strings.TrimSpace(title)), links...), nil
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
