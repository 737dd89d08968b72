package sitemap

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

const indexable = `<html><head><meta name="description" content="x"></head></html>`

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t.Add(15 * time.Hour)
}

func TestURLFor(t *testing.T) {
	tests := []struct {
		rel   string
		clean bool
		want  string
	}{
		{"index.html", true, "/"},
		{"index.html", false, "/"},
		{"pages/outcomes.html", true, "/pages/outcomes"},
		{"pages/outcomes.html", false, "/pages/outcomes.html"},
		{"perspectives/index.html", true, "/perspectives/"},
		{"perspectives/index.html", false, "/perspectives/index.html"},
		{`pages\about.html`, true, "/pages/about"},
		{"404.html", true, "/404"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, URLFor(tt.rel, tt.clean), "%s clean=%v", tt.rel, tt.clean)
	}
}

func TestRules(t *testing.T) {
	r := Rules{BlogDir: "perspectives"}
	tests := []struct {
		loc, prio, freq string
	}{
		{"/", "1.0", "monthly"},
		{"/pages/outcomes", "0.8", "monthly"},
		{"/perspectives/launch-post", "0.6", "yearly"},
		{"/perspectives-archive", "0.8", "monthly"},
	}
	for _, tt := range tests {
		prio, freq := r.For(tt.loc)
		require.Equal(t, tt.prio, prio, tt.loc)
		require.Equal(t, tt.freq, freq, tt.loc)
	}
}

func TestGenerate_Scenario(t *testing.T) {
	out := fstest.MapFS{
		"index.html":                    {Data: []byte(indexable), ModTime: day("2026-03-01")},
		"pages/outcomes.html":           {Data: []byte(indexable), ModTime: day("2026-03-01")},
		"perspectives/launch-post.html": {Data: []byte(indexable), ModTime: day("2026-03-01")},
		"404.html":                      {Data: []byte(`<meta name="robots" content="noindex">`), ModTime: day("2026-03-01")},
		"assets/main.css":               {Data: []byte("body{}")},
	}
	src := fstest.MapFS{
		"index.html":          {Data: []byte("src"), ModTime: day("2025-12-24")},
		"pages/outcomes.html": {Data: []byte("src"), ModTime: day("2026-01-10")},
	}

	entries, err := Generate(context.Background(), out, Options{
		Rules:     Rules{BlogDir: "perspectives"},
		CleanURLs: true,
		LastMod:   MTimeSource{Source: src},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, "/", entries[0].URL)
	require.Equal(t, "1.0", entries[0].Priority)
	require.Equal(t, "monthly", entries[0].ChangeFreq)
	require.Equal(t, day("2025-12-24"), entries[0].LastMod)

	require.Equal(t, "/pages/outcomes", entries[1].URL)
	require.Equal(t, "0.8", entries[1].Priority)
	require.Equal(t, "monthly", entries[1].ChangeFreq)
	require.Equal(t, day("2026-01-10"), entries[1].LastMod)

	require.Equal(t, "/perspectives/launch-post", entries[2].URL)
	require.Equal(t, "0.6", entries[2].Priority)
	require.Equal(t, "yearly", entries[2].ChangeFreq)
	require.Equal(t, day("2026-03-01"), entries[2].LastMod, "falls back to the built file")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "https://digitalfoundry.com", entries))
	doc, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, []URL{
		{Loc: "https://digitalfoundry.com/", LastMod: "2025-12-24", ChangeFreq: "monthly", Priority: "1.0"},
		{Loc: "https://digitalfoundry.com/pages/outcomes", LastMod: "2026-01-10", ChangeFreq: "monthly", Priority: "0.8"},
		{Loc: "https://digitalfoundry.com/perspectives/launch-post", LastMod: "2026-03-01", ChangeFreq: "yearly", Priority: "0.6"},
	}, doc.URLs)
}

func TestGenerate_RootFirstThenLexicographic(t *testing.T) {
	out := fstest.MapFS{
		"zeta.html":           {Data: []byte(indexable)},
		"about.html":          {Data: []byte(indexable)},
		"index.html":          {Data: []byte(indexable)},
		"pages/alpha.html":    {Data: []byte(indexable)},
		"perspectives/a.html": {Data: []byte(indexable)},
	}
	entries, err := Generate(context.Background(), out, Options{CleanURLs: false})
	require.NoError(t, err)

	var urls []string
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	require.Equal(t, []string{"/", "/about.html", "/pages/alpha.html", "/perspectives/a.html", "/zeta.html"}, urls)
}

func TestGenerate_NoindexExcluded(t *testing.T) {
	out := fstest.MapFS{
		"404.html":     {Data: []byte(`<meta name="robots" content="noindex, nofollow">`)},
		"private.html": {Data: []byte(`<META name='robots' content='NOINDEX'>`)},
	}
	entries, err := Generate(context.Background(), out, Options{})
	require.NoError(t, err)
	require.Empty(t, entries)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "https://digitalfoundry.com", entries))
	require.Contains(t, buf.String(), `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`)
}

func TestWrite_EscapingRoundTrip(t *testing.T) {
	tricky := `/q&a/<b>/"quoted"/it's`
	entries := []Entry{
		{URL: "/", LastMod: day("2026-01-01"), ChangeFreq: "monthly", Priority: "1.0"},
		{URL: tricky, LastMod: day("2026-01-02"), ChangeFreq: "monthly", Priority: "0.8"},
	}
	site := "https://example.com/?a=1&b=2"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, site, entries))
	raw := buf.String()
	require.True(t, strings.HasPrefix(raw, `<?xml version="1.0" encoding="UTF-8"?>`))
	require.Contains(t, raw, "&amp;")
	require.Contains(t, raw, "&lt;b&gt;")
	require.NotContains(t, raw, "<b>")

	doc, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, doc.URLs, 2)
	require.Equal(t, site+tricky, doc.URLs[1].Loc)
	require.Equal(t, "2026-01-02", doc.URLs[1].LastMod)
}

func TestWrite_DateIsUTC(t *testing.T) {
	late := time.Date(2026, 5, 1, 23, 30, 0, 0, time.FixedZone("west", -5*3600))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "https://digitalfoundry.com", []Entry{{URL: "/", LastMod: late, ChangeFreq: "monthly", Priority: "1.0"}}))
	require.Contains(t, buf.String(), "<lastmod>2026-05-02</lastmod>")
}
