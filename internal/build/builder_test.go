package build

import (
	"bytes"
	"context"
	stdErrors "errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
	"git.home.luguber.info/inful/sitebuilder/internal/sitemap"
)

const seoHead = `<meta name="description" content="We build things.">
<link rel="canonical" href="https://example.com/">
<meta property="og:title" content="Example">
<meta property="og:description" content="We build things.">
<meta property="og:image" content="https://example.com/og.png">
<meta name="twitter:card" content="summary_large_image">`

func htmlPage(head, body string) string {
	return "<!doctype html><html><head>" + head + "</head><body>" + body + "</body></html>"
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newSite lays out a small source tree and returns a config building it.
func newSite(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "index.html", htmlPage(seoHead, `<!--include:nav.html--><img src="/img/logo.png"><link rel="icon" href="/favicon.ico">`))
	writeFile(t, root, "pages/about.html", htmlPage(seoHead, `<!--include:nav.html--><h1>About</h1>`))
	writeFile(t, root, "404.html", htmlPage(`<meta name="robots" content="noindex">`, "not found"))
	writeFile(t, root, "_draft.html", htmlPage("", "draft"))
	writeFile(t, root, "partials/nav.html", "<nav>menu</nav>")
	writeFile(t, root, "public/robots.txt", "User-agent: *\n")
	writeFile(t, root, "public/favicon.ico", "ico")
	writeFile(t, root, "img/logo.png", string(pngBytes(t)))

	cfg := config.Default()
	cfg.Site.URL = "https://example.com"
	cfg.Source.Root = root
	cfg.Output.Directory = filepath.Join(root, "dist")
	cfg.Output.ReportDir = filepath.Join(root, ".sitebuilder")
	cfg.Images.CachePath = filepath.Join(root, ".sitebuilder", "image-cache.db")
	cfg.Images.Enabled = false
	return cfg, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func requireNoStaging(t *testing.T, cfg *config.Config) {
	t.Helper()
	_, err := os.Stat(cfg.Output.Directory + "_stage")
	require.True(t, os.IsNotExist(err), "staging dir should be removed")
}

func TestRun_BuildsSite(t *testing.T) {
	cfg, _ := newSite(t)
	cfg.Images.Enabled = true
	out := cfg.Output.Directory

	report, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.True(t, report.Promoted)
	requireNoStaging(t, cfg)

	index := readFile(t, filepath.Join(out, "index.html"))
	require.Contains(t, index, "<nav>menu</nav>")
	require.NotContains(t, index, "include:")
	require.Contains(t, readFile(t, filepath.Join(out, "pages", "about.html")), "<h1>About</h1>")
	require.FileExists(t, filepath.Join(out, "robots.txt"))
	require.FileExists(t, filepath.Join(out, "favicon.ico"))
	require.FileExists(t, filepath.Join(out, "img", "logo.png"))
	require.NoFileExists(t, filepath.Join(out, "_draft.html"))
	require.NoDirExists(t, filepath.Join(out, "partials"))

	keys := make([]string, 0, len(report.Pages))
	for _, p := range report.Pages {
		keys = append(keys, p.Key)
	}
	require.Equal(t, []string{"404", "main", "pages-about"}, keys)
	require.Equal(t, 2, report.PagesValidated)
	require.Equal(t, 1, report.PagesNoindex)
	require.Equal(t, 2, report.PublicFiles)
	require.Equal(t, 1, report.AssetsCopied)
	require.Equal(t, 1, report.Images.Processed)

	f, err := os.Open(filepath.Join(out, "sitemap.xml"))
	require.NoError(t, err)
	defer f.Close()
	doc, err := sitemap.Parse(f)
	require.NoError(t, err)
	require.Len(t, doc.URLs, 2)
	require.Equal(t, "https://example.com/", doc.URLs[0].Loc)
	require.Equal(t, "https://example.com/pages/about", doc.URLs[1].Loc)
	require.Equal(t, 2, report.SitemapURLs)

	persisted, err := LoadReport(cfg.Output.ReportDir)
	require.NoError(t, err)
	require.Equal(t, report.BuildID, persisted.BuildID)
	require.Equal(t, "success", persisted.Outcome)
	require.True(t, persisted.Promoted)
	require.FileExists(t, cfg.Images.CachePath)
}

func TestRun_SEOFailureKeepsPreviousOutput(t *testing.T) {
	cfg, root := newSite(t)
	out := cfg.Output.Directory

	_, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	prevIndex := readFile(t, filepath.Join(out, "index.html"))
	prevSitemap := readFile(t, filepath.Join(out, "sitemap.xml"))

	writeFile(t, root, "index.html", htmlPage(seoHead, "changed"))
	writeFile(t, root, "pages/about.html", htmlPage(`<meta property="og:title" content="About">`, "about"))

	report, err := New(cfg).Run(t.Context())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.Contains(t, err.Error(), "pages/about.html: missing meta description")
	require.Contains(t, err.Error(), "pages/about.html: missing twitter:card")
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.False(t, report.Promoted)
	require.Equal(t, IssueSEOViolations, report.Issues[len(report.Issues)-1].Code)
	requireNoStaging(t, cfg)

	require.Equal(t, prevIndex, readFile(t, filepath.Join(out, "index.html")))
	require.Equal(t, prevSitemap, readFile(t, filepath.Join(out, "sitemap.xml")))
	_, ok := report.StageDurations[string(StageGenerateSitemap)]
	require.False(t, ok, "sitemap must not run after failed validation")

	persisted, err := LoadReport(cfg.Output.ReportDir)
	require.NoError(t, err)
	require.Equal(t, "failed", persisted.Outcome)
}

func TestRun_DuplicateBuildKey(t *testing.T) {
	cfg, root := newSite(t)
	writeFile(t, root, "pages-about.html", htmlPage(seoHead, "clash"))

	report, err := New(cfg).Run(t.Context())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.ErrorIs(t, err, pages.ErrDuplicateKey)
	require.Equal(t, IssueDuplicateBuildKey, report.Issues[0].Code)
	require.Equal(t, StageDiscoverPages, report.Issues[0].Stage)
	require.NoDirExists(t, cfg.Output.Directory)
	requireNoStaging(t, cfg)
}

func TestRun_NoPages(t *testing.T) {
	cfg, _ := newSite(t)
	cfg.Source.PageDirs = []string{"nowhere"}

	report, err := New(cfg).Run(t.Context())
	require.ErrorIs(t, err, ErrNoPages)
	require.Equal(t, IssueNoPages, report.Issues[0].Code)
}

func TestRun_MissingPartialIsWarning(t *testing.T) {
	cfg, root := newSite(t)
	writeFile(t, root, "pages/about.html", htmlPage(seoHead, `<!--include:gone.html--><!--include:nav.html-->`))

	report, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, []string{"gone.html"}, report.MissingPartials["pages/about.html"])
	require.Equal(t, IssueMissingPartial, report.Issues[0].Code)
	require.Equal(t, SeverityWarning, report.Issues[0].Severity)

	about := readFile(t, filepath.Join(cfg.Output.Directory, "pages", "about.html"))
	require.Contains(t, about, "<!--include:gone.html-->")
	require.Contains(t, about, "<nav>menu</nav>")
}

func TestRun_UnresolvedAssetIsWarning(t *testing.T) {
	cfg, root := newSite(t)
	writeFile(t, root, "pages/about.html", htmlPage(seoHead, `<img src="../img/missing.png">`))

	report, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Equal(t, IssueUnresolvedAsset, report.Issues[0].Code)
	require.Contains(t, report.Issues[0].Message, "pages/about.html: ../img/missing.png")
}

func TestRun_PublicFileDoesNotReplacePage(t *testing.T) {
	cfg, root := newSite(t)
	writeFile(t, root, "public/index.html", "stale public copy")

	report, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.Len(t, report.Issues, 1)
	require.Equal(t, IssuePublicShadowed, report.Issues[0].Code)
	require.Contains(t, report.Issues[0].Message, "index.html")

	home := readFile(t, filepath.Join(cfg.Output.Directory, "index.html"))
	require.NotContains(t, home, "stale public copy")
	require.Contains(t, home, "<nav>menu</nav>")
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "robots.txt"))
}

func TestRun_Canceled(t *testing.T) {
	cfg, _ := newSite(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := New(cfg).Run(ctx)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryCanceled))
	require.Equal(t, OutcomeCanceled, report.Outcome)
	require.Equal(t, IssueCanceled, report.Issues[0].Code)
	require.NoDirExists(t, cfg.Output.Directory)
	requireNoStaging(t, cfg)
}

func TestRun_OutputClean(t *testing.T) {
	cfg, _ := newSite(t)
	writeFile(t, cfg.Output.Directory, "stray.txt", "old")

	cfg.Output.Clean = false
	_, err := New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cfg.Output.Directory, "stray.txt"))

	cfg.Output.Clean = true
	_, err = New(cfg).Run(t.Context())
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(cfg.Output.Directory, "stray.txt"))
	require.NoDirExists(t, cfg.Output.Directory+".prev")
}

func TestRun_DisabledStagesAreSkipped(t *testing.T) {
	cfg, _ := newSite(t)
	cfg.SEO.Enabled = false
	cfg.Sitemap.Enabled = false

	obs := &stageLog{}
	report, err := New(cfg, WithObserver(obs)).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, []StageName{
		StagePrepareOutput, StageDiscoverPages, StageComposePages, StageCopyAssets, StageFinalizeOutput,
	}, obs.started)
	for _, s := range []StageName{StageOptimizeImages, StageValidateSEO, StageGenerateSitemap} {
		require.Equal(t, StageCount{Skipped: 1}, report.StageCounts[s], s)
		require.NotContains(t, report.StageDurations, string(s))
	}
	require.NoFileExists(t, filepath.Join(cfg.Output.Directory, "sitemap.xml"))
	require.True(t, obs.completed)
}

type stageLog struct {
	started   []StageName
	completed bool
}

func (s *stageLog) OnStageStart(stage StageName)                          { s.started = append(s.started, stage) }
func (s *stageLog) OnStageComplete(StageName, time.Duration, StageResult) {}
func (s *stageLog) OnBuildComplete(*Report)                               { s.completed = true }

type fakeNotifier struct {
	outcomes []Outcome
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, r *Report) error {
	f.outcomes = append(f.outcomes, r.Outcome)
	return f.err
}

func TestRun_NotifiesEveryOutcome(t *testing.T) {
	cfg, root := newSite(t)
	n := &fakeNotifier{}

	_, err := New(cfg, WithNotifier(n)).Run(t.Context())
	require.NoError(t, err)

	writeFile(t, root, "index.html", htmlPage("", "no tags"))
	_, err = New(cfg, WithNotifier(n)).Run(t.Context())
	require.Error(t, err)

	require.Equal(t, []Outcome{OutcomeSuccess, OutcomeFailed}, n.outcomes)
}

func TestRun_NotifyFailureDoesNotFailBuild(t *testing.T) {
	cfg, _ := newSite(t)
	n := &fakeNotifier{err: stdErrors.New("no servers available")}

	report, err := New(cfg, WithNotifier(n)).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	last := report.Issues[len(report.Issues)-1]
	require.Equal(t, IssueNotifyFailed, last.Code)
	require.True(t, strings.Contains(last.Message, "no servers available"))
}
