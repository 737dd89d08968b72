package build

import (
	"io/fs"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
)

// State carries the mutable data shared by the stages of one build.
type State struct {
	Config *config.Config
	Report *Report

	// Source is the source root; Partials and Public are subtrees of it.
	Source   fs.FS
	Partials fs.FS
	Public   fs.FS

	OutputDir string
	StageDir  string

	Pages []pages.Page
	Refs  map[string][]assets.Ref // page rel path -> references in composed HTML

	recorder metrics.Recorder
	observer Observer
	opts     Options
}

func newState(cfg *config.Config, report *Report, rec metrics.Recorder, obs Observer, opts Options) *State {
	root := cfg.Source.Root
	return &State{
		Config:    cfg,
		Report:    report,
		Source:    os.DirFS(root),
		Partials:  os.DirFS(filepath.Join(root, cfg.Source.PartialsDir)),
		Public:    os.DirFS(filepath.Join(root, cfg.Source.PublicDir)),
		OutputDir: filepath.Clean(cfg.Output.Directory),
		Refs:      make(map[string][]assets.Ref),
		recorder:  rec,
		observer:  obs,
		opts:      opts,
	}
}

// Staged returns a filesystem view of the staging directory.
func (s *State) Staged() fs.FS { return os.DirFS(s.StageDir) }
