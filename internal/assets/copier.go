package assets

import (
	"context"
	stdErrors "errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Copier copies referenced assets from the source tree into the output
// tree, each file at most once.
type Copier struct {
	src    fs.FS
	public fs.FS
	dst    string
	copied map[string]bool
	bytes  int64
}

// Stats summarises one CopyReferenced call.
type Stats struct {
	Copied     []string
	Unresolved []string
}

// NewCopier copies from src into the directory dst. Files present in public
// are assumed to be copied by CopyTree and are skipped. public may be nil.
func NewCopier(src, public fs.FS, dst string) *Copier {
	return &Copier{src: src, public: public, dst: dst, copied: make(map[string]bool)}
}

// Reserve marks output paths produced by another stage, such as composed
// pages, so references to them are never overwritten with source files.
func (c *Copier) Reserve(rels ...string) {
	for _, rel := range rels {
		c.copied[path.Clean(rel)] = true
	}
}

// BytesCopied is the total size of all files copied so far.
func (c *Copier) BytesCopied() int64 { return c.bytes }

// CopyReferenced copies every resolvable reference of the page at pageRel.
// References that do not exist are reported in Stats.Unresolved and logged
// as warnings; filesystem write failures are fatal.
func (c *Copier) CopyReferenced(ctx context.Context, pageRel string, refs []Ref) (Stats, error) {
	var st Stats
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		rel, ok := Resolve(pageRel, ref.URL)
		if !ok {
			st.Unresolved = append(st.Unresolved, ref.URL)
			slog.Warn("Asset reference escapes site root", logfields.Page(pageRel), logfields.Asset(ref.URL))
			continue
		}
		if c.copied[rel] || c.inPublic(rel) {
			continue
		}
		n, err := copyFile(c.src, rel, filepath.Join(c.dst, filepath.FromSlash(rel)))
		if err != nil {
			if stdErrors.Is(err, fs.ErrNotExist) || stdErrors.Is(err, errIsDir) {
				st.Unresolved = append(st.Unresolved, ref.URL)
				slog.Warn("Asset not found", logfields.Page(pageRel), logfields.Asset(ref.URL))
				continue
			}
			return st, errors.WrapError(err, errors.CategoryFileSystem, "failed to copy asset").
				WithContext("asset", rel).
				Fatal().
				Build()
		}
		c.copied[rel] = true
		c.bytes += n
		st.Copied = append(st.Copied, rel)
	}
	return st, nil
}

func (c *Copier) inPublic(rel string) bool {
	if c.public == nil {
		return false
	}
	info, err := fs.Stat(c.public, rel)
	return err == nil && !info.IsDir()
}

// CopyPublic copies the public directory into the output tree. Files at a
// reserved path are not copied: the composed page wins, and the shadowed
// public paths are returned.
func (c *Copier) CopyPublic(ctx context.Context) (int, []string, error) {
	var shadowed []string
	n, err := copyTree(ctx, c.public, c.dst, func(rel string) bool {
		if c.copied[rel] {
			shadowed = append(shadowed, rel)
			slog.Warn("Public file shadowed by composed page", logfields.Path(rel))
			return true
		}
		return false
	})
	return n, shadowed, err
}

// CopyTree copies every regular file under fsys into dst, preserving layout.
// A nil fsys or a missing root copies nothing.
func CopyTree(ctx context.Context, fsys fs.FS, dst string) (int, error) {
	return copyTree(ctx, fsys, dst, nil)
}

func copyTree(ctx context.Context, fsys fs.FS, dst string, skip func(rel string) bool) (int, error) {
	if fsys == nil {
		return 0, nil
	}
	count := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." && stdErrors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if skip != nil && skip(p) {
			return nil
		}
		if _, err := copyFile(fsys, p, filepath.Join(dst, filepath.FromSlash(p))); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			return count, err
		}
		return count, errors.WrapError(err, errors.CategoryFileSystem, "failed to copy public directory").
			WithContext("dst", dst).
			Fatal().
			Build()
	}
	return count, nil
}

var errIsDir = stdErrors.New("is a directory")

func copyFile(fsys fs.FS, name, dst string) (int64, error) {
	if !fs.ValidPath(name) {
		return 0, fs.ErrNotExist
	}
	in, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, errIsDir
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// PageOutputPath is where a page source at rel is written under root.
func PageOutputPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(path.Clean(rel)))
}
