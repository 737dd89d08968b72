// Package seo gates a build on the presence of search and social metadata.
package seo

import "regexp"

// Requirement is a named tag that every indexable page must carry.
type Requirement struct {
	Name    string
	pattern *regexp.Regexp
}

// NewRequirement compiles expr case-insensitively. It panics on an invalid
// expression, like regexp.MustCompile.
func NewRequirement(name, expr string) Requirement {
	return Requirement{Name: name, pattern: regexp.MustCompile(`(?i)` + expr)}
}

// Present reports whether html satisfies the requirement.
func (r Requirement) Present(html string) bool {
	return r.pattern.MatchString(html)
}

// DefaultRequirements returns the tags required on every indexable page.
func DefaultRequirements() []Requirement {
	return []Requirement{
		NewRequirement("meta description", `<meta\s[^>]*name=["']description["'][^>]*content=["'][^"']+["'][^>]*>`),
		NewRequirement("canonical URL", `<link\s[^>]*rel=["']canonical["'][^>]*href=["'][^"']+["'][^>]*>`),
		NewRequirement("og:title", `<meta\s[^>]*property=["']og:title["'][^>]*>`),
		NewRequirement("og:description", `<meta\s[^>]*property=["']og:description["'][^>]*>`),
		NewRequirement("og:image", `<meta\s[^>]*property=["']og:image["'][^>]*>`),
		NewRequirement("twitter:card", `<meta\s[^>]*name=["']twitter:card["'][^>]*>`),
	}
}

var noindexPattern = regexp.MustCompile(`(?i)<meta\s[^>]*name=["']robots["'][^>]*content=["'][^"']*noindex[^"']*["'][^>]*>`)

// IsNoindex reports whether html opts out of indexing. Noindex pages are
// exempt from validation and excluded from the sitemap.
func IsNoindex(html string) bool {
	return noindexPattern.MatchString(html)
}
