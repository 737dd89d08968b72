package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for build and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|warning|failed|canceled
	SetPagesBuilt(n int)
	IncSEOViolations(requirement string)
	AddImageBytesSaved(n int64)
	IncImageCacheResult(hit bool)
	SetSitemapURLs(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) SetPagesBuilt(int)                          {}
func (NoopRecorder) IncSEOViolations(string)                    {}
func (NoopRecorder) AddImageBytesSaved(int64)                   {}
func (NoopRecorder) IncImageCacheResult(bool)                   {}
func (NoopRecorder) SetSitemapURLs(int)                         {}
