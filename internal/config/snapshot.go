package config

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Snapshot computes a stable hash of the fields that affect build output.
// Logging, serving and notification settings are excluded.
func (c *Config) Snapshot() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) {
		h.Write([]byte(strings.Join(parts, "=")))
		h.Write([]byte{0})
	}
	w("site.url", c.Site.URL)
	w("source.root", c.Source.Root)
	w("source.page_dirs", strings.Join(c.Source.PageDirs, ","))
	w("source.partials_dir", c.Source.PartialsDir)
	w("source.public_dir", c.Source.PublicDir)
	w("source.fragment_prefix", c.Source.FragmentPrefix)
	w("output.directory", c.Output.Directory)
	w("images.enabled", strconv.FormatBool(c.Images.Enabled))
	w("images.quality", strconv.Itoa(c.Images.Quality))
	w("images.max_width", strconv.Itoa(c.Images.MaxWidth))
	w("seo.enabled", strconv.FormatBool(c.SEO.Enabled))
	w("sitemap.enabled", strconv.FormatBool(c.Sitemap.Enabled))
	w("sitemap.filename", c.Sitemap.Filename)
	w("sitemap.blog_dir", c.Sitemap.BlogDir)
	w("sitemap.clean_urls", strconv.FormatBool(c.Sitemap.CleanURLs))
	w("sitemap.lastmod_source", string(c.Sitemap.LastModSource))
	return hex.EncodeToString(h.Sum(nil))
}
