package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
)

// DiscoverCmd implements the 'discover' command.
type DiscoverCmd struct {
	JSON bool `name:"json" help:"Print pages as JSON"`
}

func (d *DiscoverCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	return RunDiscover(g.out(), cfg, d.JSON)
}

// RunDiscover lists the pages the next build would produce.
func RunDiscover(w io.Writer, cfg *config.Config, asJSON bool) error {
	found, err := pages.Discover(os.DirFS(cfg.Source.Root), cfg.Source.PageDirs, pages.Options{
		FragmentPrefix: cfg.Source.FragmentPrefix,
	})
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if found == nil {
			found = []pages.Page{}
		}
		return enc.Encode(found)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tSOURCE")
	for _, p := range found {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", p.Key, p.RelPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%d pages in %s\n", len(found), cfg.Source.Root)
	return nil
}
