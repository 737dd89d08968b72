package build

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/images"
	"git.home.luguber.info/inful/sitebuilder/internal/includes"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
	"git.home.luguber.info/inful/sitebuilder/internal/seo"
	"git.home.luguber.info/inful/sitebuilder/internal/sitemap"
)

// NewSitePipeline returns the stage list for cfg. Disabled optional
// stages stay in the list marked as skipped.
func NewSitePipeline(cfg *config.Config, opts Options) []StageDef {
	imagesReason := "images.enabled is false"
	if cfg.Images.Enabled && opts.SkipImages {
		imagesReason = "image optimization skipped for this build"
	}
	return NewPipeline().
		Add(StagePrepareOutput, stagePrepareOutput).
		Add(StageDiscoverPages, stageDiscoverPages).
		Add(StageComposePages, stageComposePages).
		Add(StageCopyAssets, stageCopyAssets).
		AddIf(cfg.Images.Enabled && !opts.SkipImages, StageOptimizeImages, stageOptimizeImages, imagesReason).
		AddIf(cfg.SEO.Enabled, StageValidateSEO, stageValidateSEO, "seo.enabled is false").
		AddIf(cfg.Sitemap.Enabled, StageGenerateSitemap, stageGenerateSitemap, "sitemap.enabled is false").
		Add(StageFinalizeOutput, stageFinalizeOutput).
		Build()
}

func stagePrepareOutput(ctx context.Context, st *State) error {
	if err := st.beginStaging(); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create staging directory").
			WithContext("output", st.OutputDir).
			Fatal().
			Build()
	}
	if st.Config.Output.Clean {
		return nil
	}
	// Carry files from the previous output forward; this build's files overwrite them.
	n, err := assets.CopyTree(ctx, os.DirFS(st.OutputDir), st.StageDir)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Carried previous output into staging", logfields.Count(n))
	return nil
}

func stageDiscoverPages(ctx context.Context, st *State) error {
	found, err := pages.Discover(st.Source, st.Config.Source.PageDirs, pages.Options{
		FragmentPrefix: st.Config.Source.FragmentPrefix,
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errors.ConfigError("no pages to build").
			WithCause(fmt.Errorf("%w in %s", ErrNoPages, strings.Join(st.Config.Source.PageDirs, ", "))).
			WithContext("root", st.Config.Source.Root).
			Build()
	}
	st.Pages = found
	for _, p := range found {
		st.Report.Pages = append(st.Report.Pages, PageRecord{Key: p.Key, Source: p.RelPath, Output: p.RelPath})
	}
	slog.InfoContext(ctx, "Discovered pages", logfields.Count(len(found)))
	return nil
}

func stageComposePages(ctx context.Context, st *State) error {
	in := includes.New(st.Partials)
	var missing []string
	for _, p := range st.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := fs.ReadFile(st.Source, p.RelPath)
		if err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").
				WithContext("page", p.RelPath).
				Fatal().
				Build()
		}
		res := in.Expand(string(src))
		if len(res.Missing) > 0 {
			st.Report.MissingPartials[p.RelPath] = res.Missing
			for _, name := range res.Missing {
				missing = append(missing, p.RelPath+": "+name)
			}
		}

		dst := assets.PageOutputPath(st.StageDir, p.RelPath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to create page directory").
				WithContext("page", p.RelPath).
				Fatal().
				Build()
		}
		if err := os.WriteFile(dst, []byte(res.HTML), 0o644); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to write page").
				WithContext("page", p.RelPath).
				Fatal().
				Build()
		}

		refs, err := assets.References(bytes.NewReader([]byte(res.HTML)))
		if err != nil {
			slog.WarnContext(ctx, "Failed to scan page for assets", logfields.Page(p.RelPath), logfields.Error(err))
		}
		st.Refs[p.RelPath] = refs
		slog.DebugContext(ctx, "Composed page", logfields.BuildKey(p.Key), logfields.Page(p.RelPath))
	}
	if len(missing) > 0 {
		return NewWarnStageError(StageComposePages, fmt.Errorf("%w: %s", ErrMissingPartial, strings.Join(missing, ", ")))
	}
	return nil
}

func stageCopyAssets(ctx context.Context, st *State) error {
	cp := assets.NewCopier(st.Source, st.Public, st.StageDir)
	for _, p := range st.Pages {
		cp.Reserve(p.RelPath)
	}
	n, shadowed, err := cp.CopyPublic(ctx)
	if err != nil {
		return err
	}
	st.Report.PublicFiles = n
	if len(shadowed) > 0 {
		serr := fmt.Errorf("%w: %s", ErrPublicShadowed, strings.Join(shadowed, ", "))
		st.Report.AddIssue(IssuePublicShadowed, StageCopyAssets, SeverityWarning, serr.Error(), serr)
	}
	var unresolved []string
	for _, p := range st.Pages {
		stats, err := cp.CopyReferenced(ctx, p.RelPath, st.Refs[p.RelPath])
		if err != nil {
			return err
		}
		st.Report.AssetsCopied += len(stats.Copied)
		for _, u := range stats.Unresolved {
			unresolved = append(unresolved, p.RelPath+": "+u)
		}
	}
	slog.InfoContext(ctx, "Copied assets",
		logfields.Count(st.Report.AssetsCopied+st.Report.PublicFiles),
		logfields.Bytes(cp.BytesCopied()))
	if len(unresolved) > 0 {
		return NewWarnStageError(StageCopyAssets, fmt.Errorf("%w: %s", ErrUnresolvedAsset, strings.Join(unresolved, ", ")))
	}
	return nil
}

func stageOptimizeImages(ctx context.Context, st *State) error {
	var (
		cache    images.Cache
		cacheErr error
	)
	if path := st.Config.Images.CachePath; path != "" {
		sc, err := images.OpenSQLiteCache(path)
		if err != nil {
			slog.WarnContext(ctx, "Image cache unavailable, optimizing without it", logfields.Path(path), logfields.Error(err))
			cacheErr = fmt.Errorf("%w: %w", ErrImageCache, err)
		} else {
			defer func() { _ = sc.Close() }()
			cache = sc
		}
	}

	opt := images.NewOptimizer(images.Options{
		Quality:  st.Config.Images.Quality,
		MaxWidth: st.Config.Images.MaxWidth,
	}, cache)
	sum, err := opt.OptimizeDir(ctx, st.StageDir)
	st.Report.Images = sum
	if err != nil {
		return err
	}
	for i := 0; i < sum.Processed-sum.Failed; i++ {
		st.recorder.IncImageCacheResult(i < sum.CacheHits)
	}
	slog.InfoContext(ctx, "Optimized images",
		logfields.Count(sum.Processed),
		"optimized", sum.Optimized,
		"cache_hits", sum.CacheHits,
		logfields.Bytes(sum.Saved()))

	switch {
	case sum.Failed > 0:
		return NewWarnStageError(StageOptimizeImages, fmt.Errorf("%w: %d could not be decoded", ErrImageSkipped, sum.Failed))
	case cacheErr != nil:
		return NewWarnStageError(StageOptimizeImages, cacheErr)
	}
	return nil
}

func stageValidateSEO(ctx context.Context, st *State) error {
	res, err := seo.NewValidator().Validate(ctx, st.Staged())
	st.Report.PagesValidated = res.Checked
	st.Report.PagesNoindex = len(res.Noindex)
	var verr *seo.ViolationsError
	if stdErrors.As(err, &verr) {
		for _, v := range verr.Violations {
			st.recorder.IncSEOViolations(v.Requirement)
		}
		slog.ErrorContext(ctx, "SEO validation failed", logfields.Count(len(verr.Violations)))
		return errors.ValidationError("SEO validation failed").
			WithCause(verr).
			WithContext("pages", len(verr.Pages())).
			Build()
	}
	return err
}

func stageGenerateSitemap(ctx context.Context, st *State) error {
	cfg := st.Config.Sitemap
	var lastMod sitemap.LastModSource = sitemap.MTimeSource{Source: st.Source}
	if cfg.LastModSource == config.LastModGit {
		gs, err := sitemap.OpenGitSource(st.Config.Source.Root, lastMod)
		if err != nil {
			slog.WarnContext(ctx, "Git history unavailable, using file times for lastmod", logfields.Error(err))
		} else {
			lastMod = gs
		}
	}

	entries, err := sitemap.Generate(ctx, st.Staged(), sitemap.Options{
		Rules:     sitemap.Rules{BlogDir: cfg.BlogDir},
		CleanURLs: cfg.CleanURLs,
		LastMod:   lastMod,
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sitemap.Write(&buf, st.Config.Site.URL, entries); err != nil {
		return err
	}
	dst := filepath.Join(st.StageDir, cfg.Filename)
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write sitemap").
			WithContext("path", dst).
			Fatal().
			Build()
	}
	st.Report.SitemapURLs = len(entries)
	slog.InfoContext(ctx, "Generated sitemap", logfields.Count(len(entries)), logfields.Path(cfg.Filename))
	return nil
}

func stageFinalizeOutput(_ context.Context, st *State) error {
	if err := st.finalizeStaging(); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to promote build output").
			WithContext("output", st.OutputDir).
			Fatal().
			Build()
	}
	st.Report.Promoted = true
	sort.SliceStable(st.Report.Pages, func(i, j int) bool { return st.Report.Pages[i].Key < st.Report.Pages[j].Key })
	return nil
}
