// Package pages discovers the HTML page sources that make up the site.
package pages

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// MainKey is the build key of the site root page.
const MainKey = "main"

var (
	// ErrInvalidDir is returned for page directories that are not valid fs.FS paths.
	ErrInvalidDir = stdErrors.New("invalid page directory")
	// ErrDuplicateKey is the cause of the config error raised when two
	// sources map to the same build key.
	ErrDuplicateKey = stdErrors.New("duplicate build key")
)

// Page describes one discovered page source.
type Page struct {
	Key     string `json:"key"`      // Build key, unique per build
	Dir     string `json:"dir"`      // Root-relative directory, "." for the root
	Name    string `json:"name"`     // File name
	RelPath string `json:"rel_path"` // Slash-separated path relative to the source root
}

// Options tunes discovery.
type Options struct {
	// FragmentPrefix excludes template fragments such as _template.html.
	FragmentPrefix string
}

// Key derives the build key for a slash-separated relative path.
// index.html at the root maps to "main"; everything else drops the
// .html suffix and replaces path separators with '-'.
func Key(relPath string) string {
	relPath = norm.NFC.String(relPath)
	if relPath == "index.html" {
		return MainKey
	}
	return strings.ReplaceAll(strings.TrimSuffix(relPath, ".html"), "/", "-")
}

// IsPageName reports whether a file name is a page source under opts.
func IsPageName(name string, opts Options) bool {
	prefix := opts.FragmentPrefix
	if prefix == "" {
		prefix = "_"
	}
	return strings.HasSuffix(name, ".html") && !strings.HasPrefix(name, prefix)
}

// Discover lists page sources directly inside each of dirs (no recursion).
// Missing directories are skipped. Pages are returned in directory order,
// then by file name. Two pages with the same build key are a fatal
// configuration error.
func Discover(fsys fs.FS, dirs []string, opts Options) ([]Page, error) {
	var out []Page
	seen := make(map[string]string)
	visited := make(map[string]bool)

	for _, dir := range dirs {
		dir = path.Clean(strings.TrimPrefix(dir, "./"))
		if !fs.ValidPath(dir) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDir, dir)
		}
		if visited[dir] {
			continue
		}
		visited[dir] = true

		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			if stdErrors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to list page directory").
				WithContext("dir", dir).
				Fatal().
				Build()
		}

		// fs.ReadDir sorts by file name.
		for _, e := range entries {
			if !e.Type().IsRegular() || !IsPageName(e.Name(), opts) {
				continue
			}
			rel := e.Name()
			if dir != "." {
				rel = dir + "/" + e.Name()
			}
			key := Key(rel)
			if prev, dup := seen[key]; dup {
				return nil, errors.ConfigError("duplicate build key").
					WithContext("key", key).
					WithContext("first", prev).
					WithContext("second", rel).
					WithCause(fmt.Errorf("%w: %q is produced by both %s and %s", ErrDuplicateKey, key, prev, rel)).
					Build()
			}
			seen[key] = rel
			out = append(out, Page{Key: key, Dir: dir, Name: e.Name(), RelPath: rel})
		}
	}
	return out, nil
}

// Keys returns the build keys of pages, sorted.
func Keys(pages []Page) []string {
	keys := make([]string, 0, len(pages))
	for _, p := range pages {
		keys = append(keys, p.Key)
	}
	sort.Strings(keys)
	return keys
}
