// Package sitemap builds the sitemaps.org document for the built site.
package sitemap

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Change frequencies used by Rules.
const (
	ChangeMonthly = "monthly"
	ChangeYearly  = "yearly"
)

// Rules assigns priority and change frequency by URL location.
type Rules struct {
	BlogDir string // Directory holding blog posts, e.g. "perspectives"
}

// For returns the priority and change frequency for the URL path loc.
func (r Rules) For(loc string) (priority, changeFreq string) {
	switch {
	case loc == "/":
		return "1.0", ChangeMonthly
	case r.BlogDir != "" && strings.HasPrefix(loc, "/"+strings.Trim(r.BlogDir, "/")+"/"):
		return "0.6", ChangeYearly
	default:
		return "0.8", ChangeMonthly
	}
}

// URLFor maps a built page's slash-separated relative path to its URL path.
// The root index.html is "/". With cleanURLs the .html suffix is dropped
// and dir/index.html becomes "/dir/".
func URLFor(relPath string, cleanURLs bool) string {
	rel := norm.NFC.String(path.Clean(strings.ReplaceAll(relPath, `\`, "/")))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "index.html" {
		return "/"
	}
	if !cleanURLs {
		return "/" + rel
	}
	if strings.HasSuffix(rel, "/index.html") {
		return "/" + strings.TrimSuffix(rel, "index.html")
	}
	return "/" + strings.TrimSuffix(rel, ".html")
}

// less orders the root URL first, then lexicographically.
func less(a, b string) bool {
	if a == "/" {
		return b != "/"
	}
	if b == "/" {
		return false
	}
	return a < b
}
