// Package includes splices HTML partials into page sources.
package includes

import (
	"io/fs"
	"log/slog"
	"regexp"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

var markerPattern = regexp.MustCompile(`<!--\s*include:(\S+?)\s*-->`)

// Includer resolves include markers against a partials directory.
type Includer struct {
	partials fs.FS
	cache    map[string]string
}

// Result is the expanded page plus the partial names that could not be resolved.
type Result struct {
	HTML    string
	Missing []string
}

// New returns an Includer reading partials from the given filesystem.
// Partial contents are cached for the lifetime of the Includer.
func New(partials fs.FS) *Includer {
	return &Includer{partials: partials, cache: make(map[string]string)}
}

// Expand replaces every <!--include:NAME--> marker whose partial exists with
// the partial's contents, verbatim. Unresolvable markers are left in place
// and reported. Inserted text is never scanned for further markers.
func (in *Includer) Expand(html string) Result {
	var missing []string
	out := markerPattern.ReplaceAllStringFunc(html, func(marker string) string {
		name := markerPattern.FindStringSubmatch(marker)[1]
		if body, ok := in.lookup(name); ok {
			return body
		}
		slog.Warn("Partial not found", logfields.Partial(name))
		missing = append(missing, name)
		return marker
	})
	return Result{HTML: out, Missing: missing}
}

// Markers lists the partial names referenced by html, in order of appearance.
func Markers(html string) []string {
	var names []string
	for _, m := range markerPattern.FindAllStringSubmatch(html, -1) {
		names = append(names, m[1])
	}
	return names
}

func (in *Includer) lookup(name string) (string, bool) {
	if body, ok := in.cache[name]; ok {
		return body, true
	}
	if in.partials == nil || !fs.ValidPath(name) {
		return "", false
	}
	data, err := fs.ReadFile(in.partials, name)
	if err != nil {
		return "", false
	}
	body := string(data)
	in.cache[name] = body
	return body, true
}
