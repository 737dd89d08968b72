package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
	"git.home.luguber.info/inful/sitebuilder/internal/seo"
)

const seoHead = `<title>Example</title>
<meta name="description" content="We build things.">
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

// newProject writes a small site plus a configuration file for it and
// returns the config path and the site root.
func newProject(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "site/index.html", htmlPage(seoHead, `<!--include:nav.html--><h1>Home</h1>`))
	writeFile(t, root, "site/pages/contact.html", htmlPage(seoHead, `<!--include:nav.html--><h1>Contact</h1>`))
	writeFile(t, root, "site/404.html", htmlPage(`<meta name="robots" content="noindex">`, "not found"))
	writeFile(t, root, "site/partials/nav.html", "<nav>menu</nav>")
	writeFile(t, root, "site/public/robots.txt", "User-agent: *\n")

	cfgPath := filepath.Join(root, "sitebuilder.yaml")
	writeFile(t, root, "sitebuilder.yaml", `site:
  url: https://example.com
source:
  root: `+filepath.Join(root, "site")+`
output:
  directory: `+filepath.Join(root, "dist")+`
  report_dir: `+filepath.Join(root, ".sitebuilder")+`
images:
  enabled: false
`)
	return cfgPath, root
}

// run parses args like the sitebuilder binary and runs the selected command.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("sitebuilder"),
		kong.Vars{"version": "test", "config_path": DefaultConfigPath},
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	err = kctx.Run(&Global{Out: &out}, &cli)
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	cfgPath, root := newProject(t)

	out, err := run(t, "-c", cfgPath, "build")
	require.NoError(t, err)
	require.Contains(t, out, "Build completed successfully")
	require.Contains(t, out, "outcome=success")

	index, err := os.ReadFile(filepath.Join(root, "dist", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(index), "<nav>menu</nav>")
	require.FileExists(t, filepath.Join(root, "dist", "sitemap.xml"))
	require.FileExists(t, filepath.Join(root, "dist", "robots.txt"))
	require.FileExists(t, filepath.Join(root, ".sitebuilder", "build-report.json"))
}

func TestBuildCommand_OutputOverride(t *testing.T) {
	cfgPath, root := newProject(t)
	alt := filepath.Join(root, "alt")

	_, err := run(t, "-c", cfgPath, "build", "-o", alt)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(alt, "index.html"))
	require.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestBuildCommand_SEOFailureExitCode(t *testing.T) {
	cfgPath, root := newProject(t)
	writeFile(t, root, "site/pages/bare.html", htmlPage("<title>Bare</title>", "nothing"))

	out, err := run(t, "-c", cfgPath, "build")
	require.Error(t, err)
	require.Contains(t, out, "Build failed")
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.Equal(t, 2, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	require.Contains(t, errors.NewCLIErrorAdapter(false, nil).FormatError(err), "pages/bare.html")
	require.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestBuildCommand_MissingConfig(t *testing.T) {
	_, err := run(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "build")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryNotFound))
	require.Equal(t, 3, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestDiscoverCommand(t *testing.T) {
	cfgPath, _ := newProject(t)

	out, err := run(t, "-c", cfgPath, "discover")
	require.NoError(t, err)
	require.Contains(t, out, "KEY")
	require.Contains(t, out, "pages-contact")
	require.Contains(t, out, "3 pages in")

	out, err = run(t, "-c", cfgPath, "discover", "--json")
	require.NoError(t, err)
	var found []pages.Page
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Equal(t, []string{"404", "main", "pages-contact"}, pages.Keys(found))
}

func TestDiscoverCommand_DuplicateKey(t *testing.T) {
	cfgPath, root := newProject(t)
	writeFile(t, root, "site/pages-contact.html", htmlPage(seoHead, "clash"))

	_, err := run(t, "-c", cfgPath, "discover")
	require.Error(t, err)
	require.ErrorIs(t, err, pages.ErrDuplicateKey)
	require.Equal(t, 7, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestRunAudit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", htmlPage(seoHead, "home"))
	writeFile(t, dir, "404.html", htmlPage(`<meta name="robots" content="noindex">`, "gone"))

	var out bytes.Buffer
	require.NoError(t, RunAudit(&out, dir, false))
	require.Contains(t, out.String(), `✓  index.html "Example"`)
	require.Contains(t, out.String(), "404.html (noindex)")
	require.Contains(t, out.String(), "2 pages audited, 0 with missing metadata")

	writeFile(t, dir, "blog/post.html", htmlPage(`<title>Post</title><meta name="description" content="x">`, "post"))
	out.Reset()
	err := RunAudit(&out, dir, false)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.Contains(t, out.String(), "blog/post.html: missing canonical URL, og:title")
}

func TestRunAudit_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", htmlPage(seoHead, "home"))

	var out bytes.Buffer
	require.NoError(t, RunAudit(&out, dir, true))
	var audits []PageAudit
	require.NoError(t, json.Unmarshal(out.Bytes(), &audits))
	require.Len(t, audits, 1)
	require.Equal(t, "index.html", audits[0].Page)
	require.Equal(t, "https://example.com/", audits[0].Meta.Canonical)
	require.Empty(t, audits[0].Missing)
}

func TestAuditPages_AgreesWithValidator(t *testing.T) {
	const description = `<meta name="description" content="We build things.">`
	const ogTitle = `<meta property="og:title" content="Example">`
	tests := []struct {
		name    string
		old     string
		new     string
		missing []string
	}{
		{"content before name", description, `<meta content="d" name="description">`, []string{"meta description"}},
		{"empty og title", ogTitle, `<meta property="og:title" content="">`, nil},
		{"uppercase name", description, `<meta name="Description" content="d">`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head := strings.Replace(seoHead, tt.old, tt.new, 1)
			fsys := fstest.MapFS{"index.html": {Data: []byte(htmlPage(head, "home"))}}

			audits, err := AuditPages(fsys)
			require.NoError(t, err)
			require.Len(t, audits, 1)
			require.Equal(t, tt.missing, audits[0].Missing)

			res, err := seo.NewValidator().Validate(context.Background(), fsys)
			var gate []string
			for _, v := range res.Violations {
				gate = append(gate, v.Requirement)
			}
			require.Equal(t, tt.missing, gate)
			require.Equal(t, len(tt.missing) > 0, err != nil)
		})
	}
}

func TestRunAudit_MissingDir(t *testing.T) {
	err := RunAudit(&bytes.Buffer{}, filepath.Join(t.TempDir(), "dist"), false)
	require.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestAuditCommand_UsesOutputDir(t *testing.T) {
	cfgPath, _ := newProject(t)
	_, err := run(t, "-c", cfgPath, "build")
	require.NoError(t, err)

	out, err := run(t, "-c", cfgPath, "audit")
	require.NoError(t, err)
	require.Contains(t, out, "3 pages audited, 0 with missing metadata")
}

func TestInitCommand(t *testing.T) {
	t.Setenv("SITEBUILDER_NATS_URL", "")
	path := filepath.Join(t.TempDir(), "sitebuilder.yaml")

	out, err := run(t, "-c", path, "init")
	require.NoError(t, err)
	require.Contains(t, out, "initialized successfully")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultOutputDir, cfg.Output.Directory)

	_, err = run(t, "-c", path, "init")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))

	_, err = run(t, "-c", path, "init", "--force")
	require.NoError(t, err)
}

func TestConfigureLogging_Verbose(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = config.LogLevelError
	cfg.Logging.Format = config.LogFormatJSON

	configureLogging(cfg, true)
	t.Cleanup(func() { configureLogging(config.Default(), false) })
	require.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}
