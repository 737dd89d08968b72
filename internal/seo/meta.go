package seo

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Meta holds the search and social metadata of a page.
type Meta struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Canonical   string            `json:"canonical"`
	Robots      string            `json:"robots,omitempty"`
	OG          map[string]string `json:"og"`
	TwitterCard string            `json:"twitter_card"`
}

// ExtractMeta parses an HTML document and returns its metadata.
func ExtractMeta(r io.Reader) (Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Meta{}, err
	}
	enc, _, _ := charset.DetermineEncoding(data, "text/html")
	if decoded, derr := enc.NewDecoder().Bytes(data); derr == nil {
		data = decoded
	} else if !utf8.Valid(data) {
		return Meta{}, derr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Meta{}, err
	}

	m := Meta{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
		Canonical:   strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", "")),
		Robots:      strings.TrimSpace(doc.Find(`meta[name="robots"]`).AttrOr("content", "")),
		TwitterCard: strings.TrimSpace(doc.Find(`meta[name="twitter:card"]`).AttrOr("content", "")),
		OG:          map[string]string{},
	}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" {
			m.OG[prop] = strings.TrimSpace(content)
		}
	})
	return m, nil
}
