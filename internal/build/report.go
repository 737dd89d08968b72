package build

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/images"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// ReportFile is the name of the JSON report written into the report directory.
const ReportFile = "build-report.json"

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// IssueCode enumerates machine-parseable issue identifiers.
// These codes are stable contract and should only be appended.
type IssueCode string

const (
	IssueNoPages           IssueCode = "NO_PAGES"
	IssueDuplicateBuildKey IssueCode = "DUPLICATE_BUILD_KEY"
	IssueMissingPartial    IssueCode = "MISSING_PARTIAL"
	IssueUnresolvedAsset   IssueCode = "UNRESOLVED_ASSET"
	IssueImageSkipped      IssueCode = "IMAGE_SKIPPED"
	IssueImageCache        IssueCode = "IMAGE_CACHE_UNAVAILABLE"
	IssueSEOViolations     IssueCode = "SEO_VIOLATIONS"
	IssueConfig            IssueCode = "CONFIG"
	IssueFilesystem        IssueCode = "FILESYSTEM"
	IssueNotifyFailed      IssueCode = "NOTIFY_FAILED"
	IssueCanceled          IssueCode = "BUILD_CANCELED"
	IssueGenericStageError IssueCode = "GENERIC_STAGE_ERROR"
	IssuePublicShadowed    IssueCode = "PUBLIC_FILE_SHADOWED"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a structured entry describing a discrete problem encountered.
type Issue struct {
	Code     IssueCode     `json:"code"`
	Stage    StageName     `json:"stage,omitempty"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// StageCount aggregates counts of outcomes for a stage.
type StageCount struct {
	Success  int `json:"success"`
	Warning  int `json:"warning"`
	Fatal    int `json:"fatal"`
	Canceled int `json:"canceled"`
	Skipped  int `json:"skipped"`
}

// PageRecord maps a build key to its source and output paths.
type PageRecord struct {
	Key    string `json:"key"`
	Source string `json:"source"`
	Output string `json:"output"`
}

// Report captures what a single build did and how it ended.
type Report struct {
	SchemaVersion   int
	BuildID         string
	Start           time.Time
	End             time.Time
	Errors          []error // fatal errors causing build abortion
	Warnings        []error
	StageDurations  map[string]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Issues          []Issue
	Outcome         Outcome

	Pages           []PageRecord
	MissingPartials map[string][]string // page -> partial names
	AssetsCopied    int
	PublicFiles     int
	Images          images.Summary
	PagesValidated  int
	PagesNoindex    int
	SitemapURLs     int
	Promoted        bool // staging replaced the output directory

	OutputDir  string
	ConfigHash string
	Version    string
}

// NewReport constructs an empty report for the given build.
func NewReport(buildID string) *Report {
	return &Report{
		SchemaVersion:   1,
		BuildID:         buildID,
		Start:           time.Now(),
		StageDurations:  make(map[string]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
		MissingPartials: make(map[string][]string),
		Version:         version.Version,
	}
}

// AddIssue appends a structured issue and mirrors severity into Errors/Warnings slices.
func (r *Report) AddIssue(code IssueCode, stage StageName, severity IssueSeverity, msg string, err error) {
	r.Issues = append(r.Issues, Issue{Code: code, Stage: stage, Severity: severity, Message: msg})
	if err == nil {
		return
	}
	switch severity {
	case SeverityError:
		r.Errors = append(r.Errors, err)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, err)
	}
}

// Finish sets the end time of the report.
func (r *Report) Finish() { r.End = time.Now() }

// Duration is the wall time between Start and End.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// RecordStageResult updates report counters and emits metrics (if recorder non-nil).
func (r *Report) RecordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	sc := r.StageCounts[stage]
	var label metrics.ResultLabel
	switch res {
	case StageResultSuccess:
		sc.Success++
		label = metrics.ResultSuccess
	case StageResultWarning:
		sc.Warning++
		label = metrics.ResultWarning
	case StageResultFatal:
		sc.Fatal++
		label = metrics.ResultFatal
	case StageResultCanceled:
		sc.Canceled++
		label = metrics.ResultCanceled
	case StageResultSkipped:
		sc.Skipped++
		r.StageCounts[stage] = sc
		return
	}
	r.StageCounts[stage] = sc
	if recorder != nil {
		recorder.IncStageResult(string(stage), label)
	}
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("build=%s pages=%d assets=%d images_saved=%d validated=%d sitemap_urls=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.BuildID, len(r.Pages), r.AssetsCopied+r.PublicFiles, r.Images.Saved(), r.PagesValidated, r.SitemapURLs,
		r.Duration().Truncate(time.Millisecond), len(r.Errors), len(r.Warnings), r.Outcome)
}

// DeriveOutcome sets the Outcome field based on recorded errors/warnings.
func (r *Report) DeriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if stdErrors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Persist writes the report atomically into dir as build-report.json
// with a one-line build-report.txt summary next to it.
func (r *Report) Persist(dir string) error {
	if r.End.IsZero() {
		r.Finish()
		r.DeriveOutcome()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}
	jb, err := json.MarshalIndent(r.SanitizedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, ReportFile), jb); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "build-report.txt"), []byte(r.Summary()+"\n")); err != nil {
		return fmt.Errorf("write report summary: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SanitizedCopy returns a copy with error fields converted to strings for JSON output.
func (r *Report) SanitizedCopy() *ReportSerializable {
	stageCounts := make(map[string]StageCount, len(r.StageCounts))
	for k, v := range r.StageCounts {
		stageCounts[string(k)] = v
	}
	sek := make(map[string]string, len(r.StageErrorKinds))
	for k, v := range r.StageErrorKinds {
		sek[string(k)] = string(v)
	}
	durations := make(map[string]int64, len(r.StageDurations))
	for k, v := range r.StageDurations {
		durations[k] = v.Milliseconds()
	}
	issues := r.Issues
	if issues == nil {
		issues = []Issue{}
	}
	pages := r.Pages
	if pages == nil {
		pages = []PageRecord{}
	}

	s := &ReportSerializable{
		SchemaVersion:    r.SchemaVersion,
		BuildID:          r.BuildID,
		Start:            r.Start,
		End:              r.End,
		DurationMS:       r.Duration().Milliseconds(),
		Errors:           make([]string, len(r.Errors)),
		Warnings:         make([]string, len(r.Warnings)),
		StageDurationsMS: durations,
		StageErrorKinds:  sek,
		StageCounts:      stageCounts,
		Issues:           issues,
		Outcome:          string(r.Outcome),
		Pages:            pages,
		MissingPartials:  r.MissingPartials,
		AssetsCopied:     r.AssetsCopied,
		PublicFiles:      r.PublicFiles,
		Images: ImageStats{
			Processed:   r.Images.Processed,
			Optimized:   r.Images.Optimized,
			CacheHits:   r.Images.CacheHits,
			Failed:      r.Images.Failed,
			BytesBefore: r.Images.BytesBefore,
			BytesAfter:  r.Images.BytesAfter,
			BytesSaved:  r.Images.Saved(),
		},
		PagesValidated: r.PagesValidated,
		PagesNoindex:   r.PagesNoindex,
		SitemapURLs:    r.SitemapURLs,
		Promoted:       r.Promoted,
		OutputDir:      r.OutputDir,
		ConfigHash:     r.ConfigHash,
		Version:        r.Version,
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// ImageStats is the serialized form of images.Summary.
type ImageStats struct {
	Processed   int   `json:"processed"`
	Optimized   int   `json:"optimized"`
	CacheHits   int   `json:"cache_hits"`
	Failed      int   `json:"failed"`
	BytesBefore int64 `json:"bytes_before"`
	BytesAfter  int64 `json:"bytes_after"`
	BytesSaved  int64 `json:"bytes_saved"`
}

// ReportSerializable mirrors Report but with string errors for JSON output.
type ReportSerializable struct {
	SchemaVersion    int                   `json:"schema_version"`
	BuildID          string                `json:"build_id"`
	Start            time.Time             `json:"start"`
	End              time.Time             `json:"end"`
	DurationMS       int64                 `json:"duration_ms"`
	Errors           []string              `json:"errors"`
	Warnings         []string              `json:"warnings"`
	StageDurationsMS map[string]int64      `json:"stage_durations_ms"`
	StageErrorKinds  map[string]string     `json:"stage_error_kinds"`
	StageCounts      map[string]StageCount `json:"stage_counts"`
	Issues           []Issue               `json:"issues"`
	Outcome          string                `json:"outcome"`
	Pages            []PageRecord          `json:"pages"`
	MissingPartials  map[string][]string   `json:"missing_partials,omitempty"`
	AssetsCopied     int                   `json:"assets_copied"`
	PublicFiles      int                   `json:"public_files"`
	Images           ImageStats            `json:"images"`
	PagesValidated   int                   `json:"pages_validated"`
	PagesNoindex     int                   `json:"pages_noindex"`
	SitemapURLs      int                   `json:"sitemap_urls"`
	Promoted         bool                  `json:"promoted"`
	OutputDir        string                `json:"output_dir"`
	ConfigHash       string                `json:"config_hash,omitempty"`
	Version          string                `json:"version,omitempty"`
}

// LoadReport reads a persisted report from dir.
func LoadReport(dir string) (*ReportSerializable, error) {
	// #nosec G304 - dir comes from configuration
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return nil, err
	}
	var rs ReportSerializable
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ReportFile, err)
	}
	return &rs, nil
}
