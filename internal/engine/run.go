package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/steps"
)

// healedDefaultFix is reported on step_healed when the model returned a fix
// without an explanation.
const healedDefaultFix = "Auto-fixed by AI"

// runtime bundles a run's live backends for the step loop.
type runtime struct {
	rc   *steps.RunContext
	sess Session
	mode constants.Mode
}

// executeRun drives one run from pending to a terminal state. It owns the
// run's browser session and is the only goroutine that mutates the run and
// its step records.
//
// Per step: a conditional branch may skip it outright; otherwise it executes
// through the step interpreter. A failure walks the recovery pipeline:
// self-heal first, then a blocking operator resolution. Retry re-executes
// once; a second failure fails the run. Cancellation is honored between
// steps and inside every blocking call.
func (e *Engine) executeRun(ctx context.Context, run *domain.Run, runSteps []*domain.Step) {
	rt := e.openRuntime(ctx, run.ID)
	defer e.release(ctx, run.ID)

	now := time.Now().UTC()
	run.Status = constants.RunStatusRunning
	run.StartedAt = &now
	e.saveRun(ctx, run)
	e.bus.Publish(domain.NewRunStarted(run.ID, run.TotalSteps, rt.mode))

	skipNext := false
	for i, step := range runSteps {
		if ctx.Err() != nil {
			e.finishRun(ctx, run, constants.RunStatusCancelled, runSteps[i:])
			return
		}

		// History holds every step the loop has touched; readers filter by
		// status, so the in-flight step is invisible to them.
		rt.rc.History = append(rt.rc.History, step)

		if skipNext {
			skipNext = false
			e.skipStep(ctx, run, step, domain.SkipReasonBranch)
			continue
		}

		err := e.runStep(ctx, rt, step)
		if err == nil {
			skipNext = branchSkips(step)
			e.stepResolved(ctx, run)
			continue
		}

		e.failStep(ctx, step, err)
		if ctx.Err() != nil {
			e.finishRun(ctx, run, constants.RunStatusCancelled, runSteps[i+1:])
			return
		}

		if e.heal(ctx, rt, step, err) {
			skipNext = branchSkips(step)
			e.stepResolved(ctx, run)
			continue
		}
		if ctx.Err() != nil {
			e.finishRun(ctx, run, constants.RunStatusCancelled, runSteps[i+1:])
			return
		}

		switch e.awaitResolution(ctx, run, step) {
		case constants.DecisionSkip:
			skippedAt := time.Now().UTC()
			step.Status = constants.StepStatusSkipped
			step.CompletedAt = &skippedAt
			e.saveStep(ctx, step)
			e.stepResolved(ctx, run)
			e.bus.Publish(domain.NewStepSkipped(step, ""))

		case constants.DecisionRetry:
			step.Status = constants.StepStatusPending
			step.ErrorMessage = ""
			e.saveStep(ctx, step)
			if retryErr := e.runStep(ctx, rt, step); retryErr != nil {
				e.failStep(ctx, step, retryErr)
				status := constants.RunStatusFailed
				if ctx.Err() != nil {
					status = constants.RunStatusCancelled
				}
				e.finishRun(ctx, run, status, runSteps[i+1:])
				return
			}
			skipNext = branchSkips(step)
			e.stepResolved(ctx, run)

		default: // abort, by decision, timeout, or cancellation
			status := constants.RunStatusFailed
			if ctx.Err() != nil {
				status = constants.RunStatusCancelled
			}
			e.finishRun(ctx, run, status, runSteps[i+1:])
			return
		}
	}

	e.finishRun(ctx, run, constants.RunStatusCompleted, nil)
}

// runStep drives one execution attempt of a step: running status,
// step_started, executor dispatch, then result persistence, screenshot
// capture, and step_completed. Failure handling belongs to the caller.
func (e *Engine) runStep(ctx context.Context, rt *runtime, step *domain.Step) error {
	started := time.Now().UTC()
	step.Status = constants.StepStatusRunning
	step.StartedAt = &started
	e.saveStep(ctx, step)
	e.bus.Publish(domain.NewStepStarted(step, rt.mode))

	executor, err := e.registry.Get(step.Action)
	if err != nil {
		return err
	}

	result, err := executor.Execute(ctx, rt.rc, step)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return webrunerrors.Wrap(err, "encode step result")
	}

	done := time.Now().UTC()
	step.Status = constants.StepStatusCompleted
	step.ResultData = string(payload)
	step.ScreenshotB64 = e.screenshot(ctx, rt.sess)
	step.CompletedAt = &done
	e.saveStep(ctx, step)
	e.bus.Publish(domain.NewStepCompleted(step, payload, step.ScreenshotB64))

	zerolog.Ctx(ctx).Info().
		Int("step_number", step.StepNumber).
		Str("action", string(step.Action)).
		Int64("duration_ms", done.Sub(started).Milliseconds()).
		Msg("step completed")
	return nil
}

// failStep persists a failed execution attempt and makes it visible on the
// stream. Every failed attempt emits step_failed, including heal and retry
// re-executions, so subscribers never miss a failure.
func (e *Engine) failStep(ctx context.Context, step *domain.Step, cause error) {
	now := time.Now().UTC()
	step.Status = constants.StepStatusFailed
	step.ErrorMessage = cause.Error()
	step.CompletedAt = &now
	e.saveStep(ctx, step)
	e.bus.Publish(domain.NewStepFailed(step, step.ErrorMessage))

	zerolog.Ctx(ctx).Warn().
		Err(cause).
		Int("step_number", step.StepNumber).
		Str("action", string(step.Action)).
		Msg("step failed")
}

// skipStep finalizes a step bypassed by a conditional branch.
func (e *Engine) skipStep(ctx context.Context, run *domain.Run, step *domain.Step, reason string) {
	now := time.Now().UTC()
	step.Status = constants.StepStatusSkipped
	step.CompletedAt = &now
	e.saveStep(ctx, step)
	e.stepResolved(ctx, run)
	e.bus.Publish(domain.NewStepSkipped(step, reason))

	zerolog.Ctx(ctx).Info().
		Int("step_number", step.StepNumber).
		Str("reason", reason).
		Msg("step skipped")
}

// heal asks the model for a target/value rewrite and re-executes the step
// once. The re-execution emits its own step_started/step_completed pair;
// step_healed follows on success, carrying the model's explanation.
// Returns false when healing is disabled or unavailable, when no fix could
// be produced, or when the re-execution fails again.
func (e *Engine) heal(ctx context.Context, rt *runtime, step *domain.Step, cause error) bool {
	if !e.cfg.HealEnabled || e.ai == nil || !e.ai.Available() {
		return false
	}
	log := zerolog.Ctx(ctx)

	fix, err := e.ai.Heal(ctx, string(step.Action), step.Target, step.Description, cause.Error())
	if err != nil {
		log.Warn().Err(err).Int("step_number", step.StepNumber).Msg("self-heal produced no fix")
		return false
	}

	if fix.FixedTarget != "" {
		step.Target = fix.FixedTarget
	}
	if fix.FixedValue != "" {
		step.Value = fix.FixedValue
	}
	step.Status = constants.StepStatusPending
	step.ErrorMessage = ""
	e.saveStep(ctx, step)

	if execErr := e.runStep(ctx, rt, step); execErr != nil {
		log.Warn().Err(execErr).Int("step_number", step.StepNumber).Msg("self-heal re-execution failed")
		e.failStep(ctx, step, execErr)
		return false
	}

	explanation := fix.Explanation
	if explanation == "" {
		explanation = healedDefaultFix
	}
	e.bus.Publish(domain.NewStepHealed(step, explanation))

	log.Info().
		Int("step_number", step.StepNumber).
		Str("fix", explanation).
		Msg("step self-healed")
	return true
}

// awaitResolution blocks the run on an operator decision for the failed
// step. Timeouts and cancellation resolve to abort.
func (e *Engine) awaitResolution(ctx context.Context, run *domain.Run, step *domain.Step) constants.Decision {
	log := zerolog.Ctx(ctx)
	log.Info().
		Int("step_number", step.StepNumber).
		Str("step_id", step.ID).
		Msg("step awaiting resolution")

	decision, err := e.broker.Wait(ctx, run.ID, step.ID)
	if err != nil {
		log.Error().Err(err).Str("step_id", step.ID).Msg("resolution wait rejected")
		return constants.DecisionAbort
	}

	log.Info().
		Str("decision", string(decision)).
		Int("step_number", step.StepNumber).
		Msg("step resolution applied")
	return decision
}

// stepResolved counts a step that reached completed or skipped state and
// checkpoints the run's progress.
func (e *Engine) stepResolved(ctx context.Context, run *domain.Run) {
	run.CompletedSteps++
	e.saveRun(ctx, run)
}

// finishRun seals the run. Steps the loop never reached are marked skipped
// so a terminal run leaves no record in a non-terminal state, and they
// count toward the run's progress like any other skipped step. The stream
// closes with run_completed or run_failed; a cancelled run closes with
// run_failed, and the stored status records the distinction. Bookkeeping
// runs on a detached context so an abort landing mid-run still persists.
func (e *Engine) finishRun(ctx context.Context, run *domain.Run, status constants.RunStatus, remaining []*domain.Step) {
	ctx = context.WithoutCancel(ctx)

	now := time.Now().UTC()
	for _, step := range remaining {
		if step.Status != constants.StepStatusPending {
			continue
		}
		step.Status = constants.StepStatusSkipped
		step.CompletedAt = &now
		e.saveStep(ctx, step)
		run.CompletedSteps++
	}

	run.Status = status
	run.CompletedAt = &now
	e.saveRun(ctx, run)

	if status == constants.RunStatusCompleted {
		e.bus.Publish(domain.NewRunCompleted(run.ID))
	} else {
		e.bus.Publish(domain.NewRunFailed(run.ID))
	}

	zerolog.Ctx(ctx).Info().
		Str("status", string(status)).
		Int("completed_steps", run.CompletedSteps).
		Int("total_steps", run.TotalSteps).
		Msg("run finished")
}

// openRuntime acquires the run's backends. Browser acquisition failure is
// not fatal: the run downgrades to simulation mode, which run_started
// reports to subscribers.
func (e *Engine) openRuntime(ctx context.Context, runID string) *runtime {
	rt := &runtime{
		rc:   &steps.RunContext{RunID: runID},
		mode: constants.ModeSimulation,
	}
	if e.ai != nil {
		rt.rc.AI = e.ai
	}
	if e.sessions == nil {
		return rt
	}

	sess, err := e.sessions.NewSession(ctx)
	if err != nil || sess == nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("browser unavailable, run downgraded to simulation")
		return rt
	}

	rt.sess = sess
	rt.rc.Session = sess
	rt.mode = constants.ModeBrowser

	e.mu.Lock()
	if entry, ok := e.active[runID]; ok {
		entry.session = sess
	}
	e.mu.Unlock()
	return rt
}

// release drops the run from the active registry, discards its buffered
// resolution decisions and closes its session. After this the screen
// streamer no longer sees the run.
func (e *Engine) release(ctx context.Context, runID string) {
	e.mu.Lock()
	entry := e.active[runID]
	delete(e.active, runID)
	e.mu.Unlock()

	e.broker.Forget(runID)

	if entry != nil && entry.session != nil {
		entry.session.Close()
		zerolog.Ctx(ctx).Debug().Msg("browser session released")
	}
}

// screenshot captures the page state after a completed step, best effort.
func (e *Engine) screenshot(ctx context.Context, sess Session) string {
	if sess == nil {
		return ""
	}
	shot, err := sess.Screenshot(ctx, e.cfg.ScreenshotQuality)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("step screenshot unavailable")
		return ""
	}
	return base64.StdEncoding.EncodeToString(shot)
}

// saveRun checkpoints the run record. Persistence failures are logged and
// execution continues; the next checkpoint repairs the record.
func (e *Engine) saveRun(ctx context.Context, run *domain.Run) {
	if err := e.store.UpdateRun(ctx, run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to save run state")
	}
}

// saveStep checkpoints a step record.
func (e *Engine) saveStep(ctx context.Context, step *domain.Step) {
	if err := e.store.UpdateStep(ctx, step); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("step_id", step.ID).Msg("failed to save step state")
	}
}

// branchSkips reports whether a completed conditional step directs the run
// to bypass the following step. Result data that does not parse never skips.
func branchSkips(step *domain.Step) bool {
	if step.Action != constants.ActionConditional || step.ResultData == "" {
		return false
	}
	var verdict struct {
		EvaluatedTo *bool  `json:"evaluated_to"`
		BranchTaken string `json:"branch_taken"`
	}
	if err := json.Unmarshal([]byte(step.ResultData), &verdict); err != nil {
		return false
	}
	if verdict.BranchTaken == domain.BranchSkipNext {
		return true
	}
	return verdict.EvaluatedTo != nil && !*verdict.EvaluatedTo
}
