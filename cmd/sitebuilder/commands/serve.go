package commands

import (
	"fmt"

	"git.home.luguber.info/inful/sitebuilder/internal/preview"
)

// ServeCmd starts the development server: an initial build, then a rebuild
// on every source change, with live reload in connected browsers.
type ServeCmd struct {
	Addr           string `name:"addr" help:"Listen address (overrides serve.addr)"`
	OptimizeImages bool   `name:"optimize-images" help:"Run the image optimizer on every rebuild"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	opts := preview.Options{Addr: s.Addr, SkipImages: !s.OptimizeImages}
	n, closeNotifier := notifier(cfg)
	defer closeNotifier()
	if n != nil {
		opts.Notifier = n
	}

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	_, _ = fmt.Fprintf(g.out(), "Serving %s on http://%s/ (Ctrl+C to stop)\n", cfg.Output.Directory, addr)
	return preview.New(cfg, opts).Run(ctx)
}
