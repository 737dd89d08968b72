// Package commands implements the sitebuilder command line.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
)

// DefaultConfigPath is the --config default.
const DefaultConfigPath = config.DefaultPath

// Global is shared state handed to every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer // User-facing output; stdout when nil
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Build the site into the output directory"`
	Serve    ServeCmd    `cmd:"" help:"Serve the site locally and rebuild on change"`
	Discover DiscoverCmd `cmd:"" help:"List page sources and their build keys without building"`
	Audit    AuditCmd    `cmd:"" help:"Report search and social metadata of built pages"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; it installs a bootstrap logger
// until the configuration has been read.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// LoadConfig reads the configuration named by --config. Only the default
// path may be absent, in which case the built-in defaults apply.
func (c *CLI) LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.Config == "" || c.Config == DefaultConfigPath {
		cfg, err = config.LoadOptional(DefaultConfigPath)
	} else {
		cfg, err = config.Load(c.Config)
	}
	if err != nil {
		return nil, err
	}
	configureLogging(cfg, c.Verbose)
	return cfg, nil
}

// configureLogging replaces the bootstrap logger with one honouring the
// logging section. --verbose always wins.
func configureLogging(cfg *config.Config, verbose bool) {
	level := cfg.Logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(observability.NewContextHandler(handler)))
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// notifier connects the configured build notifier. A connection failure
// only disables notifications; the returned close func is never nil.
func notifier(cfg *config.Config) (build.Notifier, func()) {
	pub, err := notify.FromConfig(cfg)
	if err != nil {
		slog.Warn("Build notifications disabled", logfields.URL(cfg.Notify.NATSURL), logfields.Error(err))
		return nil, func() {}
	}
	if pub == nil {
		return nil, func() {}
	}
	return pub, pub.Close
}
