package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
)

// RunStages executes stages in order, recording timing and stopping on the
// first fatal or canceled outcome.
func RunStages(ctx context.Context, st *State, stages []StageDef) error {
	for _, def := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(def.Name, ctx.Err())
			st.Report.StageErrorKinds[def.Name] = se.Kind
			st.Report.AddIssue(IssueCanceled, def.Name, SeverityError, se.Error(), se)
			st.Report.RecordStageResult(def.Name, StageResultCanceled, st.recorder)
			st.observer.OnStageComplete(def.Name, 0, StageResultCanceled)
			return se
		default:
		}

		sctx := observability.WithStage(ctx, string(def.Name))
		if def.Skipped() {
			st.Report.RecordStageResult(def.Name, StageResultSkipped, st.recorder)
			st.observer.OnStageComplete(def.Name, 0, StageResultSkipped)
			slog.DebugContext(sctx, "Stage skipped", "reason", def.SkipReason)
			continue
		}

		st.observer.OnStageStart(def.Name)

		t0 := time.Now()
		err := def.Fn(sctx, st)
		dur := time.Since(t0)

		st.Report.StageDurations[string(def.Name)] = dur

		out := ClassifyStageResult(def.Name, err)
		if out.Error != nil {
			st.Report.StageErrorKinds[def.Name] = out.Error.Kind
			st.Report.AddIssue(out.IssueCode, out.Stage, out.Severity, out.Error.Error(), out.Error)
			if out.Severity == SeverityWarning {
				slog.WarnContext(sctx, "Stage completed with warnings", logfields.Error(out.Error.Err))
			}
		}

		st.Report.RecordStageResult(def.Name, out.Result, st.recorder)
		st.observer.OnStageComplete(def.Name, dur, out.Result)
		slog.DebugContext(sctx, "Stage complete",
			logfields.DurationMS(float64(dur.Microseconds())/1000),
			"result", string(out.Result))

		if out.Abort {
			if out.Error != nil {
				return out.Error
			}
			return fmt.Errorf("stage %s aborted", def.Name)
		}
	}
	return nil
}
