package sitemap

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// LastModSource supplies the last-modified time of a built page.
type LastModSource interface {
	LastMod(out fs.FS, relPath string) (time.Time, error)
}

// MTimeSource uses the modification time of the page's source file,
// falling back to the built file when no source exists at the same path.
type MTimeSource struct {
	Source fs.FS
}

func (s MTimeSource) LastMod(out fs.FS, relPath string) (time.Time, error) {
	if s.Source != nil {
		if info, err := fs.Stat(s.Source, relPath); err == nil && !info.IsDir() {
			return info.ModTime(), nil
		}
	}
	info, err := fs.Stat(out, relPath)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// GitSource uses the author date of the latest commit touching the page's
// source file. Files without history fall back to Fallback.
type GitSource struct {
	repo     *git.Repository
	prefix   string // Source root relative to the worktree, slash-separated
	Fallback LastModSource
}

// OpenGitSource opens the repository containing sourceRoot.
func OpenGitSource(sourceRoot string, fallback LastModSource) (*GitSource, error) {
	abs, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	top, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, err
	}
	if resolved, rerr := filepath.EvalSymlinks(abs); rerr == nil {
		abs = resolved
	}
	prefix, err := filepath.Rel(top, abs)
	if err != nil {
		return nil, err
	}
	prefix = filepath.ToSlash(prefix)
	if prefix == "." {
		prefix = ""
	}
	return &GitSource{repo: repo, prefix: prefix, Fallback: fallback}, nil
}

func (s *GitSource) LastMod(out fs.FS, relPath string) (time.Time, error) {
	name := path.Join(s.prefix, relPath)
	if t, ok := s.lastCommit(name); ok {
		return t, nil
	}
	if s.Fallback == nil {
		return time.Time{}, fmt.Errorf("no git history for %s", name)
	}
	return s.Fallback.LastMod(out, relPath)
}

func (s *GitSource) lastCommit(name string) (time.Time, bool) {
	iter, err := s.repo.Log(&git.LogOptions{FileName: &name})
	if err != nil {
		slog.Debug("Git log unavailable", logfields.Path(name), logfields.Error(err))
		return time.Time{}, false
	}
	defer iter.Close()

	c, err := iter.Next()
	if err != nil {
		return time.Time{}, false
	}
	return c.Author.When, true
}
