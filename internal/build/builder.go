package build

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
)

// notifyTimeout bounds how long a finished build waits on its notifier.
const notifyTimeout = 5 * time.Second

// Notifier announces finished builds.
type Notifier interface {
	Notify(ctx context.Context, report *Report) error
}

// Options adjusts which stages run.
type Options struct {
	// SkipImages leaves images untouched even when optimization is enabled.
	// The preview server sets it to keep rebuilds fast.
	SkipImages bool
}

// Builder runs site builds for one configuration. Builds are not safe to
// run concurrently against the same output directory.
type Builder struct {
	cfg      *config.Config
	recorder metrics.Recorder
	observer Observer
	notifier Notifier
	opts     Options
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(b *Builder) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithNotifier publishes every finished build, whatever its outcome.
func WithNotifier(n Notifier) Option {
	return func(b *Builder) { b.notifier = n }
}

// WithOptions sets stage options.
func WithOptions(opts Options) Option {
	return func(b *Builder) { b.opts = opts }
}

// New returns a Builder for cfg.
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		observer: NoopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes one build. The returned report is never nil and has been
// persisted to the report directory when Run returns. A non-nil error
// means the output directory was left untouched.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	report := NewReport(uuid.NewString())
	report.OutputDir = b.cfg.Output.Directory
	report.ConfigHash = b.cfg.Snapshot()

	obs := observers{recorderObserver{rec: b.recorder}, b.observer}
	st := newState(b.cfg, report, b.recorder, obs, b.opts)
	ctx = observability.WithBuildID(ctx, report.BuildID)

	slog.InfoContext(ctx, "Build started", logfields.Path(st.OutputDir))

	err := RunStages(ctx, st, NewSitePipeline(b.cfg, b.opts))
	if err != nil {
		st.abortStaging()
	}

	report.Finish()
	report.DeriveOutcome()

	if b.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if nerr := b.notifier.Notify(nctx, report); nerr != nil {
			slog.WarnContext(ctx, "Build notification failed", logfields.Error(nerr))
			report.AddIssue(IssueNotifyFailed, "", SeverityWarning, nerr.Error(), nil)
		}
		cancel()
	}

	if perr := report.Persist(b.cfg.Output.ReportDir); perr != nil {
		slog.WarnContext(ctx, "Failed to persist build report", logfields.Path(b.cfg.Output.ReportDir), logfields.Error(perr))
	}

	obs.OnBuildComplete(report)

	slog.InfoContext(ctx, "Build finished",
		logfields.Outcome(string(report.Outcome)),
		logfields.DurationMS(float64(report.Duration().Microseconds())/1000),
		logfields.Count(len(report.Pages)))

	return report, classify(err)
}

// classify makes sure the error returned by Run carries a category.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if stdErrors.As(err, &se) && se.Kind == StageErrorCanceled {
		return errors.WrapError(err, errors.CategoryCanceled, "build canceled").Build()
	}
	if errors.IsClassified(err) {
		return err
	}
	return errors.WrapError(err, errors.CategoryBuild, "build failed").Fatal().Build()
}
