// Package assets finds the local files a composed page references and
// copies them next to the page in the output tree.
package assets

import (
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Ref is a local asset reference found in a page.
type Ref struct {
	URL       string // Reference as written, without query or fragment
	Tag       string // img, script, link, source, video or audio
	Attribute string // src, href or srcset
}

// References parses html and returns every local asset reference, in
// document order. External URLs, data URIs and fragments are skipped.
func References(r io.Reader) ([]Ref, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryBuild, "failed to parse HTML").
			WithSeverity(errors.SeverityError).
			Build()
	}

	var refs []Ref
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			refs = append(refs, elementRefs(n)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func elementRefs(n *html.Node) []Ref {
	var out []Ref
	add := func(attr, val string) {
		if u, ok := localPath(val); ok {
			out = append(out, Ref{URL: u, Tag: n.Data, Attribute: attr})
		}
	}

	switch n.Data {
	case "img", "source":
		add("src", getAttr(n, "src"))
		for _, candidate := range parseSrcset(getAttr(n, "srcset")) {
			add("srcset", candidate)
		}
	case "script", "video", "audio":
		add("src", getAttr(n, "src"))
		if n.Data == "video" {
			add("poster", getAttr(n, "poster"))
		}
	case "link":
		switch strings.ToLower(getAttr(n, "rel")) {
		case "canonical", "alternate", "prev", "next", "preconnect", "dns-prefetch":
			return nil
		}
		add("href", getAttr(n, "href"))
	}
	return out
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// parseSrcset returns the URL of each srcset candidate.
func parseSrcset(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// localPath reports whether raw points at a file inside the site and
// returns its path with query and fragment removed.
func localPath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "//") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

// Resolve maps a reference found in the page at pageRel to a slash-separated
// path relative to the site root. Root-relative references ("/img/a.png")
// resolve against the site root. ok is false for paths escaping the root.
func Resolve(pageRel, ref string) (string, bool) {
	var p string
	if strings.HasPrefix(ref, "/") {
		p = path.Clean(strings.TrimPrefix(ref, "/"))
	} else {
		p = path.Join(path.Dir(pageRel), ref)
	}
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
