// Package reply defines the payload every tool returns: a status, a kind
// (text, links or a city choice) and optional structured data.
package reply

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type Kind string

const (
	KindText       Kind = "text"
	KindLinks      Kind = "links"
	KindCityChoice Kind = "city_choice"
)

// ErrorKind classifies a non-ok Result.
type ErrorKind string

const (
	// UpstreamUnavailable means a third-party call failed; the result still
	// carries fallback text and, where possible, links.
	UpstreamUnavailable ErrorKind = "upstream_unavailable"
	// NotConfigured means credentials for the upstream are missing.
	NotConfigured ErrorKind = "not_configured"
)

// Link is a labelled URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Result is the outcome of one tool call.
type Result struct {
	Status    Status    `json:"status"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Links     []Link    `json:"links,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Text builds an ok text result.
func Text(format string, args ...any) *Result {
	return &Result{Status: StatusOK, Kind: KindText, Text: fmt.Sprintf(format, args...)}
}

// Links builds an ok links result with a short heading.
func Links(heading string, links ...Link) *Result {
	return &Result{Status: StatusOK, Kind: KindLinks, Text: heading, Links: links}
}

// Choice builds an ok result asking the user to pick a city. links may be
// empty when the options are carried in Data.
func Choice(text string, links ...Link) *Result {
	return &Result{Status: StatusOK, Kind: KindCityChoice, Text: text, Links: links}
}

// Fallback builds a degraded result for an upstream failure.
func Fallback(kind ErrorKind, text string, links ...Link) *Result {
	k := KindText
	if len(links) > 0 {
		k = KindLinks
	}
	return &Result{Status: StatusError, Kind: k, Text: text, Links: links, ErrorKind: kind}
}

// WithData attaches structured data and returns r.
func (r *Result) WithData(v any) *Result {
	r.Data = v
	return r
}

// IsError reports whether the result is degraded.
func (r *Result) IsError() bool { return r.Status == StatusError }

// Render flattens the result into plain text: the text followed by one
// "label: url" line per link.
func (r *Result) Render() string {
	var b strings.Builder
	b.WriteString(r.Text)
	for _, l := range r.Links {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s: %s", l.Label, l.URL)
	}
	return b.String()
}
