package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads KEY=VALUE files into the process environment.
// Earlier files win and existing process variables are never overwritten.
func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load environment file", slog.String("path", name), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Loaded environment file", slog.String("path", name))
	}
}

// applyEnvOverrides lets a few deployment-specific values come from the
// environment without editing the YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SITEBUILDER_SITE_URL"); v != "" {
		cfg.Site.URL = v
	}
	if v := os.Getenv("SITEBUILDER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	if v := os.Getenv("SITEBUILDER_NATS_URL"); v != "" {
		cfg.Notify.NATSURL = v
	}
}
