package commands

import (
	"context"
	"fmt"
	"io"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output   string `short:"o" help:"Output directory (overrides output.directory)"`
	NoImages bool   `name:"no-images" help:"Skip image optimization for this build"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Directory = b.Output
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	return RunBuild(ctx, g.out(), cfg, build.Options{SkipImages: b.NoImages})
}

// RunBuild performs one build and prints its summary to w.
func RunBuild(ctx context.Context, w io.Writer, cfg *config.Config, opts build.Options) error {
	_, _ = fmt.Fprintln(w, "Starting sitebuilder build")

	builderOpts := []build.Option{build.WithOptions(opts)}
	n, closeNotifier := notifier(cfg)
	defer closeNotifier()
	if n != nil {
		builderOpts = append(builderOpts, build.WithNotifier(n))
	}

	report, err := build.New(cfg, builderOpts...).Run(ctx)
	_, _ = fmt.Fprintln(w, report.Summary())
	for _, issue := range report.Issues {
		_, _ = fmt.Fprintf(w, "  %s [%s] %s\n", issue.Severity, issue.Code, issue.Message)
	}
	if err != nil {
		_, _ = fmt.Fprintln(w, "Build failed")
		return err
	}
	_, _ = fmt.Fprintf(w, "Build completed successfully: %s\n", cfg.Output.Directory)
	return nil
}
