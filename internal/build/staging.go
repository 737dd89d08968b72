package build

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// beginStaging creates an isolated sibling directory <output>_stage for the
// build output. Leftovers from an interrupted build are discarded.
func (s *State) beginStaging() error {
	stage := s.OutputDir + "_stage"
	if err := os.RemoveAll(stage); err != nil {
		return fmt.Errorf("remove stale staging dir: %w", err)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return err
	}
	s.StageDir = stage
	slog.Debug("Initialized staging directory", "staging", stage, "final", s.OutputDir)
	return nil
}

// finalizeStaging promotes the staging directory to the output location:
// the current output moves to <output>.prev, staging is renamed into
// place and the backup is removed.
func (s *State) finalizeStaging() error {
	if s.StageDir == "" {
		return fmt.Errorf("no staging directory initialized")
	}
	if _, err := os.Stat(s.StageDir); err != nil {
		return fmt.Errorf("staging directory missing: %w", err)
	}

	prev := s.OutputDir + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return fmt.Errorf("remove previous backup: %w", err)
	}
	if _, err := os.Stat(s.OutputDir); err == nil {
		if err := os.Rename(s.OutputDir, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
	}
	if err := os.Rename(s.StageDir, s.OutputDir); err != nil {
		// Put the previous output back so the site keeps serving.
		if _, statErr := os.Stat(prev); statErr == nil {
			_ = os.Rename(prev, s.OutputDir)
		}
		return fmt.Errorf("promote staging: %w", err)
	}
	s.StageDir = ""
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	slog.Info("Promoted staging directory", "output", s.OutputDir)
	return nil
}

// abortStaging removes the staging directory after a failed build.
func (s *State) abortStaging() {
	if s.StageDir == "" {
		return
	}
	dir := s.StageDir
	s.StageDir = ""
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", "staging", dir, logfields.Error(err))
	} else {
		slog.Debug("Removed staging directory after abort", "staging", dir)
	}
}
