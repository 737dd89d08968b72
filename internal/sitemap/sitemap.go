package sitemap

import (
	"context"
	"encoding/xml"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/seo"
)

// Namespace is the sitemaps.org 0.9 schema namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Entry is one page in the sitemap.
type Entry struct {
	URL        string    `json:"url"` // Path relative to the site URL, starting with "/"
	Page       string    `json:"page"`
	LastMod    time.Time `json:"lastmod"`
	ChangeFreq string    `json:"changefreq"`
	Priority   string    `json:"priority"`
}

// Options configures Generate.
type Options struct {
	Rules     Rules
	CleanURLs bool
	LastMod   LastModSource // Defaults to the built file's modification time
}

// Generate enumerates the built pages in out, skips noindex pages and
// returns one entry per remaining page, root first.
func Generate(ctx context.Context, out fs.FS, opts Options) ([]Entry, error) {
	files, err := seo.HTMLFiles(out)
	if err != nil {
		return nil, err
	}
	lm := opts.LastMod
	if lm == nil {
		lm = MTimeSource{}
	}

	entries := make([]Entry, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(out, rel)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").
				WithContext("page", rel).
				Fatal().
				Build()
		}
		if seo.IsNoindex(string(data)) {
			continue
		}
		mod, err := lm.LastMod(out, rel)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to determine last modification").
				WithContext("page", rel).
				Fatal().
				Build()
		}
		u := URLFor(rel, opts.CleanURLs)
		prio, freq := opts.Rules.For(u)
		entries = append(entries, Entry{URL: u, Page: rel, LastMod: mod, ChangeFreq: freq, Priority: prio})
	}

	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i].URL, entries[j].URL) })
	slog.Debug("Sitemap entries collected", logfields.Count(len(entries)))
	return entries, nil
}

type urlset struct {
	XMLName xml.Name  `xml:"urlset"`
	Xmlns   string    `xml:"xmlns,attr"`
	URLs    []urlElem `xml:"url"`
}

type urlElem struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// Write encodes entries as a sitemap document. Locations are siteURL plus
// the entry URL; dates are YYYY-MM-DD in UTC.
func Write(w io.Writer, siteURL string, entries []Entry) error {
	doc := urlset{Xmlns: Namespace, URLs: make([]urlElem, 0, len(entries))}
	base := strings.TrimRight(siteURL, "/")
	for _, e := range entries {
		doc.URLs = append(doc.URLs, urlElem{
			Loc:        base + e.URL,
			LastMod:    e.LastMod.UTC().Format(time.DateOnly),
			ChangeFreq: e.ChangeFreq,
			Priority:   e.Priority,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Document is a decoded sitemap, used by tests and the audit command.
type Document struct {
	URLs []URL
}

// URL is one decoded sitemap location.
type URL struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   string
}

// Parse decodes a sitemap document.
func Parse(r io.Reader) (Document, error) {
	var doc urlset
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, err
	}
	out := Document{URLs: make([]URL, 0, len(doc.URLs))}
	for _, u := range doc.URLs {
		out.URLs = append(out.URLs, URL(u))
	}
	return out, nil
}
