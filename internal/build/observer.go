package build

import (
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// Observer receives callbacks around stage execution and build lifecycle.
type Observer interface {
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, duration time.Duration, result StageResult)
	OnBuildComplete(report *Report)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnStageStart(StageName)                                {}
func (NoopObserver) OnStageComplete(StageName, time.Duration, StageResult) {}
func (NoopObserver) OnBuildComplete(*Report)                               {}

// recorderObserver adapts metrics.Recorder into an Observer.
type recorderObserver struct{ rec metrics.Recorder }

func (r recorderObserver) OnStageStart(StageName) {}

func (r recorderObserver) OnStageComplete(stage StageName, d time.Duration, res StageResult) {
	if res == StageResultSkipped {
		return
	}
	r.rec.ObserveStageDuration(string(stage), d)
}

func (r recorderObserver) OnBuildComplete(report *Report) {
	r.rec.ObserveBuildDuration(report.Duration())
	r.rec.IncBuildOutcome(string(report.Outcome))
	if report.Promoted {
		r.rec.SetPagesBuilt(len(report.Pages))
		r.rec.AddImageBytesSaved(report.Images.Saved())
		r.rec.SetSitemapURLs(report.SitemapURLs)
	}
}

// observers fans callbacks out in order.
type observers []Observer

func (o observers) OnStageStart(stage StageName) {
	for _, ob := range o {
		ob.OnStageStart(stage)
	}
}

func (o observers) OnStageComplete(stage StageName, d time.Duration, res StageResult) {
	for _, ob := range o {
		ob.OnStageComplete(stage, d, res)
	}
}

func (o observers) OnBuildComplete(report *Report) {
	for _, ob := range o {
		ob.OnBuildComplete(report)
	}
}
