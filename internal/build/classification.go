package build

import (
	"context"
	stdErrors "errors"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pages"
	"git.home.luguber.info/inful/sitebuilder/internal/seo"
)

// Sentinel causes for non-fatal stage outcomes. Stages wrap them with the
// affected names so the report carries a readable message.
var (
	ErrNoPages         = stdErrors.New("no pages discovered")
	ErrMissingPartial  = stdErrors.New("missing partials")
	ErrUnresolvedAsset = stdErrors.New("unresolved asset references")
	ErrPublicShadowed  = stdErrors.New("public files shadowed by pages")
	ErrImageSkipped    = stdErrors.New("images skipped")
	ErrImageCache      = stdErrors.New("image cache unavailable")
)

// StageOutcome normalized result of stage execution.
type StageOutcome struct {
	Stage     StageName
	Error     *StageError
	Result    StageResult
	IssueCode IssueCode
	Severity  IssueSeverity
	Abort     bool
}

func resultFromStageErrorKind(k StageErrorKind) StageResult {
	switch k {
	case StageErrorWarning:
		return StageResultWarning
	case StageErrorCanceled:
		return StageResultCanceled
	default:
		return StageResultFatal
	}
}

func severityFromStageErrorKind(k StageErrorKind) IssueSeverity {
	if k == StageErrorWarning {
		return SeverityWarning
	}
	return SeverityError
}

// ClassifyStageResult converts a raw error from a stage into a StageOutcome.
// Errors that are not StageErrors are fatal unless they stem from context
// cancellation.
func ClassifyStageResult(stage StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: StageResultSuccess}
	}

	var se *StageError
	if !stdErrors.As(err, &se) {
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			se = NewCanceledStageError(stage, err)
		} else {
			se = NewFatalStageError(stage, err)
		}
	}

	code := classifyIssueCode(se)
	if se.Kind == StageErrorCanceled {
		code = IssueCanceled
	}

	return StageOutcome{
		Stage:     stage,
		Error:     se,
		Result:    resultFromStageErrorKind(se.Kind),
		IssueCode: code,
		Severity:  severityFromStageErrorKind(se.Kind),
		Abort:     se.Aborts(),
	}
}

func classifyIssueCode(se *StageError) IssueCode {
	var violations *seo.ViolationsError
	switch {
	case stdErrors.Is(se.Err, pages.ErrDuplicateKey):
		return IssueDuplicateBuildKey
	case stdErrors.Is(se.Err, ErrNoPages):
		return IssueNoPages
	case stdErrors.Is(se.Err, ErrMissingPartial):
		return IssueMissingPartial
	case stdErrors.Is(se.Err, ErrUnresolvedAsset):
		return IssueUnresolvedAsset
	case stdErrors.Is(se.Err, ErrImageSkipped):
		return IssueImageSkipped
	case stdErrors.Is(se.Err, ErrImageCache):
		return IssueImageCache
	case stdErrors.As(se.Err, &violations):
		return IssueSEOViolations
	case errors.HasCategory(se.Err, errors.CategoryConfig):
		return IssueConfig
	case errors.HasCategory(se.Err, errors.CategoryFileSystem):
		return IssueFilesystem
	default:
		return IssueGenericStageError
	}
}
