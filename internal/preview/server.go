// Package preview serves the built site locally and rebuilds it when
// source files change.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/build/queue"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

const (
	defaultDebounce = 300 * time.Millisecond
	scriptTag       = `<script src="/livereload.js"></script>`
)

// Options configures the preview server.
type Options struct {
	Addr       string        // Overrides serve.addr
	Debounce   time.Duration // Quiet period before a rebuild; defaults to 300ms
	SkipImages bool          // Skip image optimization on rebuilds
	Notifier   build.Notifier
}

// Server rebuilds the site on change and serves the output directory.
type Server struct {
	cfg    *config.Config
	opts   Options
	outDir string
	queue  *queue.BuildQueue
	hub    *LiveReloadHub
	status *buildStatus
	reg    *prom.Registry
}

// New returns a preview server for cfg.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = cfg.Serve.Addr
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	reg := metrics.NewRegistry()
	builderOpts := []build.Option{
		build.WithRecorder(metrics.NewPrometheusRecorder(reg)),
		build.WithOptions(build.Options{SkipImages: opts.SkipImages}),
	}
	if opts.Notifier != nil {
		builderOpts = append(builderOpts, build.WithNotifier(opts.Notifier))
	}

	s := &Server{
		cfg:    cfg,
		opts:   opts,
		outDir: cfg.Output.Directory,
		queue:  queue.New(build.New(cfg, builderOpts...)),
		hub:    NewLiveReloadHub(),
		status: &buildStatus{},
		reg:    reg,
	}
	s.queue.OnComplete(s.buildComplete)
	return s
}

func (s *Server) buildComplete(job *queue.BuildJob, report *build.Report) {
	var err error
	if job.Status == queue.BuildStatusFailed {
		err = stdErrors.New(job.Error)
	}
	s.status.record(report, err)
	if report != nil {
		s.hub.Broadcast(report.BuildID, string(report.Outcome))
	}
}

// Run performs an initial build, then serves and watches until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	root := s.cfg.Source.Root
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return errors.ConfigError("source root not found or not a directory").
			WithContext("root", root).
			Build()
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.NetworkError("failed to listen").
			WithCause(err).
			WithContext("addr", s.opts.Addr).
			Build()
	}

	watcher, err := newSourceWatcher(root, []string{
		s.outDir, s.outDir + "_stage", s.outDir + ".prev", s.cfg.Output.ReportDir,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = watcher.Close() }()

	s.queue.Start(ctx)
	if _, err := s.queue.Enqueue(queue.BuildTypeInitial, "startup"); err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			slog.Error("Preview server stopped", logfields.Error(err))
		}
	}()
	slog.Info("Preview server listening", "addr", ln.Addr().String(), logfields.URL("http://"+ln.Addr().String()+"/"))

	trigger := newDebouncer(s.opts.Debounce, func() {
		if _, err := s.queue.Enqueue(queue.BuildTypeWatch, "source change"); err != nil && !stdErrors.Is(err, queue.ErrStopped) {
			slog.Warn("Failed to queue rebuild", logfields.Error(err))
		}
	})

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(srv)
		case ev, ok := <-watcher.fs.Events:
			if !ok {
				return s.shutdown(srv)
			}
			if watcher.handle(ev) {
				trigger()
			}
		case err, ok := <-watcher.fs.Errors:
			if !ok {
				return s.shutdown(srv)
			}
			slog.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (s *Server) shutdown(srv *http.Server) error {
	slog.Info("Shutting down preview server...")
	s.hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	s.queue.Stop()
	return nil
}

// Handler returns the HTTP routes of the preview server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", s.hub)
	mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(LiveReloadScript))
	})
	mux.Handle("/metrics", metrics.HTTPHandler(s.reg))
	mux.HandleFunc("/_sitebuilder/status", s.handleStatus)
	mux.HandleFunc("/", s.serveSite)
	return mux
}

type statusResponse struct {
	Building bool             `json:"building"`
	Outcome  string           `json:"outcome,omitempty"`
	Error    string           `json:"error,omitempty"`
	Clients  int              `json:"livereload_clients"`
	History  []queue.BuildJob `json:"history"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report, _, err := s.status.get()
	_, building := s.queue.Active()
	resp := statusResponse{Building: building, Clients: s.hub.Clients(), History: s.queue.History()}
	if report != nil {
		resp.Outcome = string(report.Outcome)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) serveSite(w http.ResponseWriter, r *http.Request) {
	_, good, buildErr := s.status.get()
	if !good {
		if buildErr != nil {
			renderBuildErrorPage(w, buildErr)
			return
		}
		renderBuildPendingPage(w)
		return
	}

	file, ok := resolveFile(s.outDir, r.URL.Path)
	status := http.StatusOK
	if !ok {
		file, ok = resolveFile(s.outDir, "/404.html")
		if !ok {
			http.NotFound(w, r)
			return
		}
		status = http.StatusNotFound
	}
	if strings.HasSuffix(file, ".html") {
		s.serveHTML(w, file, status, buildErr)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, file)
}

func (s *Server) serveHTML(w http.ResponseWriter, file string, status int, buildErr error) {
	// #nosec G304 - file is resolved inside the output directory
	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, "failed to read page", http.StatusInternalServerError)
		return
	}
	extra := scriptTag
	if buildErr != nil {
		extra = errorBanner(buildErr) + extra
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(injectBeforeBodyEnd(data, extra))
}

// resolveFile maps a request path to a file under root. Clean URLs are
// supported: /about serves about.html and /blog/ serves blog/index.html.
func resolveFile(root, urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	candidates := []string{clean}
	if strings.HasSuffix(urlPath, "/") || clean == "/" {
		candidates = []string{path.Join(clean, "index.html")}
	} else if path.Ext(clean) == "" {
		candidates = append(candidates, clean+".html", path.Join(clean, "index.html"))
	}
	for _, c := range candidates {
		p := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(c, "/")))
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

func injectBeforeBodyEnd(page []byte, snippet string) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		return append(page, snippet...)
	}
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:idx]...)
	out = append(out, snippet...)
	return append(out, page[idx:]...)
}

func errorBanner(err error) string {
	return `<div style="position:fixed;bottom:0;left:0;right:0;z-index:99999;background:#d32f2f;color:#fff;font:13px/1.4 monospace;padding:10px;white-space:pre-wrap">` +
		"Last rebuild failed, showing previous build.\n" + html.EscapeString(err.Error()) + `</div>`
}

func renderBuildErrorPage(w http.ResponseWriter, buildErr error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, `<!doctype html><html><head><meta charset="utf-8"><title>Build Failed</title><style>body{font-family:sans-serif;max-width:800px;margin:50px auto;padding:20px}h1{color:#d32f2f}pre{background:#f5f5f5;padding:15px;border-radius:4px;overflow-x:auto}</style></head><body><h1>Build Failed</h1><p>The site failed to build. Fix the error below and save to rebuild automatically.</p><pre>%s</pre>%s</body></html>`,
		html.EscapeString(buildErr.Error()), scriptTag)
}

func renderBuildPendingPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, `<!doctype html><html><head><meta charset="utf-8"><title>Building</title></head><body><h1>The site is being built</h1><p>This page reloads automatically once the first build completes.</p>%s</body></html>`, scriptTag)
}
