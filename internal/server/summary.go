package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// resultDataClip bounds how much of a step's result JSON is quoted in the
// model's summary context.
const resultDataClip = 300

// summaryBody is the run summary response.
type summaryBody struct {
	Summary     string `json:"summary"`
	AIGenerated bool   `json:"ai_generated"`
}

// suggestionBody is the failure fix suggestion response.
type suggestionBody struct {
	Suggestion  string `json:"suggestion"`
	AIGenerated bool   `json:"ai_generated"`
}

// handleRunSummary narrates a run for a non-technical reader. The model
// writes it when available; otherwise a deterministic summary is composed
// from the step records.
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	steps, err := s.store.ListSteps(r.Context(), run.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := s.workflowName(r, run.WorkflowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if name == "" {
		name = "Workflow"
	}

	if s.ai != nil && s.ai.Available() {
		text, err := s.ai.SummarizeRun(r.Context(), name, string(run.Status),
			run.CompletedSteps, run.TotalSteps, stepDetails(steps))
		if err == nil {
			writeJSON(w, http.StatusOK, summaryBody{Summary: text, AIGenerated: true})
			return
		}
		s.logger.Debug().
			Err(err).
			Str("run_id", run.ID).
			Msg("model summary failed, composing locally")
	}

	writeJSON(w, http.StatusOK, summaryBody{Summary: localSummary(name, run, steps)})
}

// handleStepSuggestions proposes a fix for a failed step. The model answers
// when available; otherwise the suggestion comes from the static error
// category table.
func (s *Server) handleStepSuggestions(w http.ResponseWriter, r *http.Request) {
	step, err := s.store.GetStep(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "stepID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if step.ErrorMessage == "" {
		writeDetail(w, http.StatusBadRequest, "step has no recorded error")
		return
	}

	if s.ai != nil && s.ai.Available() {
		text, err := s.ai.SuggestFix(r.Context(), string(step.Action), step.Description,
			step.Target, step.ErrorMessage)
		if err == nil {
			writeJSON(w, http.StatusOK, suggestionBody{Suggestion: text, AIGenerated: true})
			return
		}
		s.logger.Debug().
			Err(err).
			Str("step_id", step.ID).
			Msg("model suggestion failed, using static table")
	}

	writeJSON(w, http.StatusOK, suggestionBody{Suggestion: ai.StaticSuggestion(step.ErrorMessage)})
}

// stepDetails renders one context line per step for the summary prompt.
func stepDetails(steps []*domain.Step) []string {
	lines := make([]string, 0, len(steps))
	for _, step := range steps {
		var status string
		switch step.Status {
		case constants.StepStatusCompleted:
			status = "passed"
		case constants.StepStatusFailed:
			status = "FAILED"
		case constants.StepStatusSkipped:
			status = "skipped"
		default:
			status = string(step.Status)
		}

		line := fmt.Sprintf("Step %d (%s) - %s: %s", step.StepNumber, step.Action, step.Description, status)
		if step.ResultData != "" {
			data := step.ResultData
			if len(data) > resultDataClip {
				data = data[:resultDataClip]
			}
			line += " | Data: " + data
		}
		if step.ErrorMessage != "" {
			line += " | Error: " + step.ErrorMessage
		}
		lines = append(lines, line)
	}
	return lines
}

// localSummary composes a readable run summary without the model.
func localSummary(name string, run *domain.Run, steps []*domain.Step) string {
	var duration string
	if run.StartedAt != nil && run.CompletedAt != nil {
		duration = fmt.Sprintf(" in %.1fs", run.CompletedAt.Sub(*run.StartedAt).Seconds())
	}

	var extracted, failed int
	for _, step := range steps {
		if step.Action == constants.ActionExtract && step.Status == constants.StepStatusCompleted {
			extracted++
		}
		if step.Status == constants.StepStatusFailed {
			failed++
		}
	}

	parts := []string{fmt.Sprintf("**%s** completed %d/%d steps%s.",
		name, run.CompletedSteps, run.TotalSteps, duration)}
	if extracted > 0 {
		parts = append(parts, fmt.Sprintf("Successfully extracted data from %d source(s).", extracted))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d step(s) failed during execution.", failed))
	}
	if run.Status == constants.RunStatusCompleted {
		parts = append(parts, "All objectives were achieved successfully.")
	}
	return strings.Join(parts, " ")
}
