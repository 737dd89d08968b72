package seo

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

const completeHead = `<meta name="description" content="We build things.">
<link rel="canonical" href="https://digitalfoundry.com/">
<meta property="og:title" content="Digital Foundry">
<meta property="og:description" content="We build things.">
<meta property="og:image" content="https://digitalfoundry.com/og.png">
<meta name="twitter:card" content="summary_large_image">`

func page(head string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("<!doctype html><html><head>" + head + "</head><body></body></html>")}
}

func TestRequirements(t *testing.T) {
	reqs := DefaultRequirements()
	require.Len(t, reqs, 6)
	for _, r := range reqs {
		require.True(t, r.Present(completeHead), r.Name)
	}

	empty := DefaultRequirements()[0]
	require.False(t, empty.Present(`<meta name="description" content="">`))
	require.True(t, empty.Present(`<META NAME='description' CONTENT='x'>`))

	canonical := DefaultRequirements()[1]
	require.False(t, canonical.Present(`<link rel="canonical" href="">`))
}

func TestIsNoindex(t *testing.T) {
	require.True(t, IsNoindex(`<meta name="robots" content="noindex, nofollow">`))
	require.True(t, IsNoindex(`<meta name='robots' content='NOINDEX'>`))
	require.False(t, IsNoindex(`<meta name="robots" content="index, follow">`))
	require.False(t, IsNoindex(`<meta name="googlebot" content="noindex">`))
}

func TestValidate_AllPresent(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":                    page(completeHead),
		"pages/outcomes.html":           page(completeHead),
		"perspectives/launch-post.html": page(completeHead),
		"404.html":                      page(`<meta name="robots" content="noindex">`),
		"assets/app.js":                 {Data: []byte("x")},
	}

	res, err := NewValidator().Validate(context.Background(), fsys)
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, 3, res.Checked)
	require.Equal(t, []string{"404.html"}, res.Noindex)
	require.Empty(t, res.Violations)
}

func TestValidate_LogsCheckedCount(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fsys := fstest.MapFS{
		"index.html": page(completeHead),
		"about.html": page(completeHead),
		"404.html":   page(`<meta name="robots" content="noindex">`),
	}
	_, err := NewValidator().Validate(context.Background(), fsys)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	require.Equal(t, "All pages passed SEO checks", rec["msg"])
	require.InDelta(t, 2, rec["count"], 0)
	require.InDelta(t, 1, rec["noindex"], 0)
}

func TestValidate_OneViolationPerMissingTag(t *testing.T) {
	noImage := strings.Replace(completeHead, `<meta property="og:image" content="https://digitalfoundry.com/og.png">`, "", 1)
	fsys := fstest.MapFS{
		"index.html":          page(completeHead),
		"pages/about.html":    page(""),
		"pages/outcomes.html": page(noImage),
		"404.html":            page(`<meta name="robots" content="noindex">`),
	}

	res, err := NewValidator().Validate(context.Background(), fsys)
	require.Error(t, err)

	var verr *ViolationsError
	require.True(t, stdErrors.As(err, &verr))
	require.Len(t, verr.Violations, 7)
	require.Equal(t, res.Violations, verr.Violations)
	require.Equal(t, []string{"pages/about.html", "pages/outcomes.html"}, verr.Pages())
	require.Equal(t, Violation{Page: "pages/outcomes.html", Requirement: "og:image"}, verr.Violations[6])

	msg := err.Error()
	require.True(t, strings.HasPrefix(msg, "7 SEO issue(s) found:"))
	require.Contains(t, msg, "\n  pages/about.html: missing meta description")
	require.Contains(t, msg, "\n  pages/about.html: missing twitter:card")
	require.Contains(t, msg, "\n  pages/outcomes.html: missing og:image")
	require.NotContains(t, msg, "404.html")
}

func TestValidate_NoindexNeverViolates(t *testing.T) {
	fsys := fstest.MapFS{
		"404.html": page(`<meta name="robots" content="noindex">`),
	}
	res, err := NewValidator().Validate(context.Background(), fsys)
	require.NoError(t, err)
	require.Zero(t, res.Checked)
}

func TestValidate_CustomRequirements(t *testing.T) {
	v := NewValidator(NewRequirement("title", `<title>[^<]+</title>`))
	require.Equal(t, []string{"title"}, v.Requirements())
	require.Len(t, v.Check("a.html", "<html></html>"), 1)
	require.Empty(t, v.Check("a.html", "<title>Home</title>"))
}

func TestExtractMeta(t *testing.T) {
	doc := `<html><head><title> Outcomes </title>` + completeHead + `</head></html>`
	m, err := ExtractMeta(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, "Outcomes", m.Title)
	require.Equal(t, "We build things.", m.Description)
	require.Equal(t, "https://digitalfoundry.com/", m.Canonical)
	require.Equal(t, "https://digitalfoundry.com/og.png", m.OG["og:image"])
	require.Equal(t, "summary_large_image", m.TwitterCard)
	require.Empty(t, m.Robots)

	m, err = ExtractMeta(strings.NewReader(`<html><head><meta name="robots" content="noindex"></head></html>`))
	require.NoError(t, err)
	require.Equal(t, "noindex", m.Robots)
	require.Empty(t, m.OG)
}
