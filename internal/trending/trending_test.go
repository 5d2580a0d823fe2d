package trending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouriya/toolbelt/internal/fetch"
	"github.com/pouriya/toolbelt/internal/reply"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Top stories - Google News</title>
<item><title>Top stories</title><link>https://news.google.com/top</link></item>
<item><title>Monsoon arrives in Kerala</title><link>https://example.com/a</link><source url="https://thehindu.com">The Hindu</source></item>
<item><title>Markets close higher</title><link>https://example.com/b</link></item>
<item><title></title><link>https://example.com/c</link></item>
<item><title>ISRO launch scheduled</title><link> https://example.com/d </link></item>
</channel></rss>`

func TestParse(t *testing.T) {
	topics, err := Parse([]byte(feed), "Google News IN")
	require.NoError(t, err)
	assert.Equal(t, []Topic{
		{Title: "Monsoon arrives in Kerala", Link: "https://example.com/a", Source: "The Hindu"},
		{Title: "Markets close higher", Link: "https://example.com/b", Source: "Google News IN"},
		{Title: "ISRO launch scheduled", Link: "https://example.com/d", Source: "Google News IN"},
	}, topics)

	_, err = Parse([]byte("<html"), "x")
	assert.ErrorIs(t, err, fetch.ErrUpstream)
}

func TestHeadlines(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "en-GB", q.Get("hl"))
		assert.Equal(t, "GB", q.Get("gl"))
		assert.Equal(t, "GB:en", q.Get("ceid"))
		w.Write([]byte(feed))
	}))
	defer ts.Close()

	s := New(fetch.New(), ts.URL)
	res := s.Headlines(context.Background(), "gb", 2)
	require.False(t, res.IsError())
	assert.Equal(t, reply.KindLinks, res.Kind)
	assert.Equal(t, "Trending in GB:", res.Text)
	require.Len(t, res.Links, 2)
	assert.Equal(t, "Monsoon arrives in Kerala", res.Links[0].Label)

	res = s.Headlines(context.Background(), "GB", 0)
	assert.Len(t, res.Data.(Digest).Topics, 3)
	assert.EqualValues(t, 1, hits.Load())
}

func TestHeadlines_Fallbacks(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<rss><channel></channel></rss>`))
	}))
	defer empty.Close()

	res := New(fetch.New(), empty.URL).Headlines(context.Background(), "", 5)
	assert.True(t, res.IsError())
	assert.Contains(t, res.Text, "No headlines")

	down := httptest.NewServer(http.NotFoundHandler())
	base := down.URL
	down.Close()

	res = New(fetch.New(fetch.WithTimeout(time.Second)), base).Headlines(context.Background(), "IN", 5)
	assert.True(t, res.IsError())
	assert.Equal(t, reply.UpstreamUnavailable, res.ErrorKind)
	assert.Equal(t, "Unable to fetch headlines right now.", res.Text)
	require.Len(t, res.Links, 1)
	assert.Contains(t, res.Links[0].URL, "gl=IN")
}
