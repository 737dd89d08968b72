package config

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation"
)

// Validate checks the configuration and returns a fatal config error
// listing every problem found.
func (c *Config) Validate() error {
	result := foundation.Valid().
		Combine(validateSiteURL(c.Site.URL)).
		Combine(foundation.IntRange("images.quality", 0, 100)(c.Images.Quality)).
		Combine(validateSource(c.Source)).
		Combine(validateOutput(c)).
		Combine(validateSitemap(c.Sitemap))

	if c.Images.MaxWidth < 0 {
		result = result.Combine(foundation.Invalid(
			foundation.NewFieldError("images.max_width", "range", "must not be negative")))
	}
	if c.Notify.NATSURL != "" {
		result = result.Combine(foundation.Required("notify.subject")(c.Notify.Subject))
	}
	result = result.Combine(validateNotifyRetry(c.Notify))
	return result.ToError()
}

func validateNotifyRetry(n NotifyConfig) foundation.ValidationResult {
	result := foundation.Valid()
	if n.MaxRetries < 0 {
		result = result.Combine(foundation.Invalid(
			foundation.NewFieldError("notify.max_retries", "range", "must not be negative")))
	}
	for field, raw := range map[string]string{
		"notify.retry_initial_delay": n.RetryInitialDelay,
		"notify.retry_max_delay":     n.RetryMaxDelay,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			result = result.Combine(foundation.Invalid(
				foundation.NewFieldError(field, "duration", "must be a positive duration such as 500ms")))
		}
	}
	return result
}

func validateSiteURL(raw string) foundation.ValidationResult {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return foundation.Invalid(foundation.NewFieldError("site.url", "url",
			"must be an absolute http(s) URL"))
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return foundation.Invalid(foundation.NewFieldError("site.url", "url",
			"must not carry a query or fragment"))
	}
	return foundation.Valid()
}

func validateSource(s SourceConfig) foundation.ValidationResult {
	result := foundation.NewValidatorChain(foundation.Required("source.root")).Validate(s.Root).
		Combine(foundation.Required("source.fragment_prefix")(s.FragmentPrefix))
	if len(s.PageDirs) == 0 {
		result = result.Combine(foundation.Invalid(
			foundation.NewFieldError("source.page_dirs", "required", "must list at least one directory")))
	}
	for _, d := range s.PageDirs {
		if !isLocalDir(d) {
			result = result.Combine(foundation.Invalid(
				foundation.NewFieldError("source.page_dirs", "path", "directory escapes source root: "+d)))
		}
	}
	for field, d := range map[string]string{"source.partials_dir": s.PartialsDir, "source.public_dir": s.PublicDir} {
		if !isLocalDir(filepath.ToSlash(d)) {
			result = result.Combine(foundation.Invalid(
				foundation.NewFieldError(field, "path", "directory escapes source root: "+d)))
		}
	}
	return result
}

// validateOutput refuses output locations that would let a clean build
// remove the sources.
func validateOutput(c *Config) foundation.ValidationResult {
	out, errOut := filepath.Abs(c.Output.Directory)
	root, errRoot := filepath.Abs(c.Source.Root)
	if errOut != nil || errRoot != nil {
		return foundation.Invalid(foundation.NewFieldError("output.directory", "path", "cannot resolve path"))
	}
	if out == root || strings.HasPrefix(root+string(filepath.Separator), out+string(filepath.Separator)) {
		return foundation.Invalid(foundation.NewFieldError("output.directory", "path",
			"must not be the source root or one of its parents"))
	}
	return foundation.Valid()
}

func validateSitemap(s SitemapConfig) foundation.ValidationResult {
	if s.Filename == "" || strings.ContainsAny(s.Filename, `/\`) {
		return foundation.Invalid(foundation.NewFieldError("sitemap.filename", "name",
			"must be a plain file name"))
	}
	return foundation.Valid()
}

func isLocalDir(d string) bool {
	if d == "." {
		return true
	}
	return !path.IsAbs(d) && !strings.HasPrefix(path.Clean(d), "..")
}
