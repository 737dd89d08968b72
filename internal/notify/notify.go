// Package notify publishes build completion events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

const connectTimeout = 2 * time.Second

// BuildEvent is the JSON payload published for every finished build.
type BuildEvent struct {
	BuildID         string    `json:"build_id"`
	Outcome         string    `json:"outcome"`
	Site            string    `json:"site"`
	OutputDir       string    `json:"output_dir"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMS      int64     `json:"duration_ms"`
	Pages           int       `json:"pages"`
	SitemapURLs     int       `json:"sitemap_urls"`
	ImageBytesSaved int64     `json:"image_bytes_saved"`
	Promoted        bool      `json:"promoted"`
	Errors          []string  `json:"errors,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	Version         string    `json:"version,omitempty"`
}

// EventFromReport summarises a build report for subscribers.
func EventFromReport(r *build.Report, site string) BuildEvent {
	ev := BuildEvent{
		BuildID:         r.BuildID,
		Outcome:         string(r.Outcome),
		Site:            site,
		OutputDir:       r.OutputDir,
		Start:           r.Start,
		End:             r.End,
		DurationMS:      r.Duration().Milliseconds(),
		Pages:           len(r.Pages),
		SitemapURLs:     r.SitemapURLs,
		ImageBytesSaved: r.Images.Saved(),
		Promoted:        r.Promoted,
		Version:         r.Version,
	}
	for _, e := range r.Errors {
		ev.Errors = append(ev.Errors, e.Error())
	}
	for _, w := range r.Warnings {
		ev.Warnings = append(ev.Warnings, w.Error())
	}
	return ev
}

// Publisher sends build events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	site    string
	policy  retry.Policy
}

// NewPublisher connects to the NATS server at cfg.NATSURL.
func NewPublisher(cfg config.NotifyConfig, site string) (*Publisher, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("sitebuilder"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.NATSURL).
			Build()
	}
	slog.Info("NATS build notifications enabled", logfields.URL(cfg.NATSURL), "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject, site: site, policy: retry.FromNotifyConfig(cfg)}, nil
}

// Notify publishes the event for report and waits for the server to
// acknowledge it via a flush. Failed attempts are retried per the
// configured policy.
func (p *Publisher) Notify(ctx context.Context, report *build.Report) error {
	data, err := json.Marshal(EventFromReport(report, p.site))
	if err != nil {
		return fmt.Errorf("failed to marshal build event: %w", err)
	}
	err = p.policy.Do(ctx, "publish build event", func(ctx context.Context) error {
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("failed to publish build event: %w", err)
		}
		if err := p.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("failed to flush build event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published build event", "subject", p.subject)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// FromConfig returns a Publisher when a NATS URL is configured and nil
// otherwise.
func FromConfig(cfg *config.Config) (*Publisher, error) {
	if cfg.Notify.NATSURL == "" {
		return nil, nil
	}
	return NewPublisher(cfg.Notify, cfg.Site.URL)
}
