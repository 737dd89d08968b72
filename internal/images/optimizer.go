// Package images recompresses raster images in the built site.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Options configures recompression.
type Options struct {
	Quality  int // JPEG quality, 0-100
	MaxWidth int // 0 disables downscaling
}

// Summary reports the outcome of one OptimizeDir run.
type Summary struct {
	Processed   int   `json:"processed"`
	Optimized   int   `json:"optimized"`
	Unchanged   int   `json:"unchanged"`
	CacheHits   int   `json:"cache_hits"`
	Failed      int   `json:"failed"`
	BytesBefore int64 `json:"bytes_before"`
	BytesAfter  int64 `json:"bytes_after"`
}

// Saved is the number of bytes removed.
func (s Summary) Saved() int64 { return s.BytesBefore - s.BytesAfter }

// Optimizer recompresses JPEG and PNG files in place. WebP files are
// decoded to catch corrupt files but are never rewritten.
type Optimizer struct {
	opts  Options
	cache Cache
}

// NewOptimizer returns an Optimizer. cache may be nil.
func NewOptimizer(opts Options, cache Cache) *Optimizer {
	return &Optimizer{opts: opts, cache: cache}
}

// IsTarget reports whether name is an image the optimizer handles.
func IsTarget(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	default:
		return false
	}
}

// OptimizeDir optimizes every target image under root. Images that fail to
// decode are logged and skipped. A file is only rewritten when the result
// is smaller than the original.
func (o *Optimizer) OptimizeDir(ctx context.Context, root string) (Summary, error) {
	var sum Summary
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsTarget(d.Name()) {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		return o.optimizeFile(ctx, p, filepath.ToSlash(rel), &sum)
	})
	return sum, err
}

func (o *Optimizer) optimizeFile(ctx context.Context, path, rel string, sum *Summary) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to read image").
			WithContext("path", rel).
			Fatal().
			Build()
	}
	sum.Processed++
	sum.BytesBefore += int64(len(data))

	key := o.cacheKey(data)
	out, hit := o.lookup(ctx, key, rel)
	if hit {
		sum.CacheHits++
	} else {
		out, err = o.Optimize(data, filepath.Ext(path))
		if err != nil {
			sum.Failed++
			sum.BytesAfter += int64(len(data))
			slog.Warn("Image optimization skipped", logfields.Asset(rel), logfields.Error(err))
			return nil
		}
		o.store(ctx, key, out, rel)
	}

	if len(out) == 0 || len(out) >= len(data) {
		sum.Unchanged++
		sum.BytesAfter += int64(len(data))
		return nil
	}
	if err := writeAtomic(path, out); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write image").
			WithContext("path", rel).
			Fatal().
			Build()
	}
	sum.Optimized++
	sum.BytesAfter += int64(len(out))
	slog.Debug("Image optimized", logfields.Asset(rel), logfields.Bytes(int64(len(data)-len(out))))
	return nil
}

// Optimize returns a recompressed version of data, or nil when the format
// is kept as-is or the result would not be smaller.
func (o *Optimizer) Optimize(data []byte, ext string) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryImage, "decode image").Build()
	}
	if format == "webp" {
		return nil, nil
	}

	img = o.downscale(img)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.opts.Quality})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	default:
		return nil, errors.ImageError(fmt.Sprintf("unsupported image format %q", format)).
			WithContext("ext", ext).
			Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryImage, "encode "+format).Build()
	}
	if buf.Len() >= len(data) {
		return nil, nil
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if o.opts.MaxWidth <= 0 || w <= o.opts.MaxWidth {
		return img
	}
	newH := h * o.opts.MaxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, o.opts.MaxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func (o *Optimizer) cacheKey(data []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "q=%d;w=%d;", o.opts.Quality, o.opts.MaxWidth)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (o *Optimizer) lookup(ctx context.Context, key, rel string) ([]byte, bool) {
	if o.cache == nil {
		return nil, false
	}
	data, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Image cache lookup failed", logfields.Asset(rel), logfields.Error(err))
		return nil, false
	}
	return data, ok
}

func (o *Optimizer) store(ctx context.Context, key string, data []byte, rel string) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Put(ctx, key, data); err != nil {
		slog.Warn("Image cache store failed", logfields.Asset(rel), logfields.Error(err))
	}
}

func writeAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
