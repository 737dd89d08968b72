package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Default values shared with the CLI help text.
const (
	DefaultSiteURL      = "https://digitalfoundry.com"
	DefaultImageQuality = 85
	DefaultOutputDir    = "dist"
	DefaultReportDir    = ".sitebuilder"
	DefaultBlogDir      = "perspectives"
	DefaultSubject      = "sitebuilder.builds"
	DefaultServeAddr    = "127.0.0.1:5173"

	DefaultNotifyRetries     = 2
	DefaultRetryInitialDelay = "250ms"
	DefaultRetryMaxDelay     = "2s"
)

// DefaultPageDirs are the directories searched for pages, in order.
var DefaultPageDirs = []string{".", "pages", "perspectives"}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&siteDefaults{},
			&sourceDefaults{},
			&outputDefaults{},
			&imageDefaults{},
			&sitemapDefaults{},
			&serveDefaults{},
			&notifyDefaults{},
			&loggingDefaults{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

type siteDefaults struct{}

func (siteDefaults) Domain() string { return "site" }

func (siteDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Site.URL = strings.TrimRight(strings.TrimSpace(cfg.Site.URL), "/")
	if cfg.Site.URL == "" {
		cfg.Site.URL = DefaultSiteURL
	}
	return nil
}

type sourceDefaults struct{}

func (sourceDefaults) Domain() string { return "source" }

func (sourceDefaults) ApplyDefaults(cfg *Config) error {
	s := &cfg.Source
	if s.Root == "" {
		s.Root = "."
	}
	if len(s.PageDirs) == 0 {
		s.PageDirs = append([]string(nil), DefaultPageDirs...)
	}
	for i, d := range s.PageDirs {
		d = filepath.ToSlash(strings.TrimSpace(d))
		d = strings.Trim(d, "/")
		if d == "" {
			d = "."
		}
		s.PageDirs[i] = d
	}
	if s.PartialsDir == "" {
		s.PartialsDir = "partials"
	}
	if s.PublicDir == "" {
		s.PublicDir = "public"
	}
	if s.FragmentPrefix == "" {
		s.FragmentPrefix = "_"
	}
	return nil
}

type outputDefaults struct{}

func (outputDefaults) Domain() string { return "output" }

func (outputDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = DefaultOutputDir
	}
	if cfg.Output.ReportDir == "" {
		cfg.Output.ReportDir = DefaultReportDir
	}
	return nil
}

type imageDefaults struct{}

func (imageDefaults) Domain() string { return "images" }

func (imageDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Images.CachePath == "" {
		cfg.Images.CachePath = filepath.Join(cfg.Output.ReportDir, "image-cache.db")
	}
	return nil
}

type sitemapDefaults struct{}

func (sitemapDefaults) Domain() string { return "sitemap" }

func (sitemapDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Sitemap.Filename == "" {
		cfg.Sitemap.Filename = "sitemap.xml"
	}
	if cfg.Sitemap.BlogDir == "" {
		cfg.Sitemap.BlogDir = DefaultBlogDir
	}
	cfg.Sitemap.BlogDir = strings.Trim(filepath.ToSlash(cfg.Sitemap.BlogDir), "/")
	src, err := NormalizeLastModSource(string(cfg.Sitemap.LastModSource))
	if err != nil {
		return err
	}
	cfg.Sitemap.LastModSource = src
	return nil
}

type serveDefaults struct{}

func (serveDefaults) Domain() string { return "serve" }

func (serveDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = DefaultServeAddr
	}
	return nil
}

type notifyDefaults struct{}

func (notifyDefaults) Domain() string { return "notify" }

func (notifyDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Notify.NATSURL = strings.TrimSpace(cfg.Notify.NATSURL)
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	mode, err := NormalizeRetryBackoff(string(cfg.Notify.RetryBackoff))
	if err != nil {
		return err
	}
	cfg.Notify.RetryBackoff = mode
	if cfg.Notify.RetryInitialDelay == "" {
		cfg.Notify.RetryInitialDelay = DefaultRetryInitialDelay
	}
	if cfg.Notify.RetryMaxDelay == "" {
		cfg.Notify.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return nil
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}
