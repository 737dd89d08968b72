package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "sitebuilder.yaml"

// Config is the complete build configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Images  ImagesConfig  `yaml:"images"`
	SEO     SEOConfig     `yaml:"seo"`
	Sitemap SitemapConfig `yaml:"sitemap"`
	Serve   ServeConfig   `yaml:"serve"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig describes the deployed site.
type SiteConfig struct {
	URL string `yaml:"url"` // Absolute base URL, no trailing slash
}

// SourceConfig locates the hand-written site sources.
type SourceConfig struct {
	Root           string   `yaml:"root"`
	PageDirs       []string `yaml:"page_dirs"`       // Searched non-recursively, in order
	PartialsDir    string   `yaml:"partials_dir"`    // Relative to Root
	PublicDir      string   `yaml:"public_dir"`      // Copied verbatim to the output root
	FragmentPrefix string   `yaml:"fragment_prefix"` // File names with this prefix are never pages
}

// OutputConfig controls where and how the site is written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"`      // Discard files in the output not produced by this build
	ReportDir string `yaml:"report_dir"` // build-report.json and the image cache live here
}

// ImagesConfig configures the raster image optimizer.
type ImagesConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Quality   int    `yaml:"quality"`   // JPEG quality, 0-100
	MaxWidth  int    `yaml:"max_width"` // 0 disables downscaling
	CachePath string `yaml:"cache_path"`
}

// SEOConfig toggles the SEO gate.
type SEOConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SitemapConfig configures sitemap generation.
type SitemapConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Filename      string        `yaml:"filename"`
	BlogDir       string        `yaml:"blog_dir"`   // Pages under this directory get the blog-post rule
	CleanURLs     bool          `yaml:"clean_urls"` // Drop .html and collapse dir/index.html to dir/
	LastModSource LastModSource `yaml:"lastmod_source"`
}

// ServeConfig configures the development server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// NotifyConfig configures optional build notifications.
type NotifyConfig struct {
	NATSURL           string           `yaml:"nats_url"`
	Subject           string           `yaml:"subject"`
	MaxRetries        int              `yaml:"max_retries"` // Publish retries after the first failure
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Default returns a configuration populated with every default value.
func Default() *Config {
	cfg := &Config{
		Output:  OutputConfig{Clean: true},
		Images:  ImagesConfig{Enabled: true, Quality: DefaultImageQuality},
		SEO:     SEOConfig{Enabled: true},
		Sitemap: SitemapConfig{Enabled: true, CleanURLs: true},
		Notify:  NotifyConfig{MaxRetries: DefaultNotifyRetries},
	}
	// Appliers only fill zero values; they cannot fail on an empty config.
	_ = NewDefaultApplier().ApplyDefaults(cfg)
	return cfg
}

// Load reads, expands, defaults and validates the configuration at path.
// Environment files (.env.local, .env) are loaded first so ${VAR}
// references in the YAML can resolve against them.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.NewError(ferrors.CategoryNotFound, "configuration file not found").
				WithCause(err).
				WithContext("path", path).
				Fatal().
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", path).
			Fatal().
			Build()
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded configuration", slog.String("path", path), slog.String("snapshot", cfg.Snapshot()[:12]))
	return cfg, nil
}

// LoadOptional is Load, except a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && ferrors.HasCategory(err, ferrors.CategoryNotFound) {
		slog.Debug("No configuration file, using defaults", slog.String("path", path))
		cfg = Default()
		applyEnvOverrides(cfg)
		if verr := cfg.Validate(); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	return cfg, err
}

// Parse decodes YAML configuration data onto the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").
			Fatal().
			Build()
	}
	applyEnvOverrides(cfg)
	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to apply defaults").
			Fatal().
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Default()
	example.Notify.NATSURL = "${SITEBUILDER_NATS_URL}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	header := "# sitebuilder configuration\n# ${VAR} references are expanded from the environment and .env files.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).
			Fatal().
			Build()
	}
	return nil
}
