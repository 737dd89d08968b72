package build

import (
	"context"
	"fmt"
	"slices"
)

// Stage is one step of the site build. It reads and writes the shared
// build State; a non-nil error is classified by ClassifyStageResult.
type Stage func(ctx context.Context, st *State) error

// StageName identifies a build stage in logs, metrics and the report.
type StageName string

// Stage names in execution order. Validation always precedes sitemap
// generation so a failing site never gets a sitemap.
const (
	StagePrepareOutput   StageName = "prepare_output"
	StageDiscoverPages   StageName = "discover_pages"
	StageComposePages    StageName = "compose_pages"
	StageCopyAssets      StageName = "copy_assets"
	StageOptimizeImages  StageName = "optimize_images"
	StageValidateSEO     StageName = "validate_seo"
	StageGenerateSitemap StageName = "generate_sitemap"
	StageFinalizeOutput  StageName = "finalize_output"
)

// StageErrorKind says how the runner treats a stage error.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"
	StageErrorWarning  StageErrorKind = "warning"
	StageErrorCanceled StageErrorKind = "canceled"
)

// StageError ties an error to the stage that produced it.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Aborts reports whether the build stops at this error.
func (e *StageError) Aborts() bool { return e.Kind != StageErrorWarning }

// StageResult is the recorded outcome of one stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// NewFatalStageError aborts the build at stage.
func NewFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

// NewWarnStageError records err against stage and lets the build continue.
func NewWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func NewCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageDef is one entry of a pipeline. A def with a SkipReason keeps its
// place in the order but is recorded as skipped instead of run.
type StageDef struct {
	Name       StageName
	Fn         Stage
	SkipReason string
}

// Skipped reports whether the runner should skip the stage.
func (d StageDef) Skipped() bool { return d.SkipReason != "" }

// Pipeline assembles the ordered stage list of a build.
type Pipeline struct {
	defs []StageDef
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline { return &Pipeline{defs: make([]StageDef, 0, 8)} }

// Add appends a stage that always runs.
func (p *Pipeline) Add(name StageName, fn Stage) *Pipeline {
	p.defs = append(p.defs, StageDef{Name: name, Fn: fn})
	return p
}

// AddIf appends a stage that runs only when enabled; otherwise it is
// recorded as skipped with reason.
func (p *Pipeline) AddIf(enabled bool, name StageName, fn Stage, reason string) *Pipeline {
	def := StageDef{Name: name, Fn: fn}
	if !enabled {
		if reason == "" {
			reason = "disabled"
		}
		def.SkipReason = reason
	}
	p.defs = append(p.defs, def)
	return p
}

// Names lists the stages that will run, in order.
func (p *Pipeline) Names() []StageName {
	var out []StageName
	for _, d := range p.defs {
		if !d.Skipped() {
			out = append(out, d.Name)
		}
	}
	return out
}

// Build returns a copy of the stage list.
func (p *Pipeline) Build() []StageDef { return slices.Clone(p.defs) }
