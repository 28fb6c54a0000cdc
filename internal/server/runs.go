package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// runView decorates a run with its workflow's name and, on detail reads,
// its step records.
type runView struct {
	*domain.Run
	WorkflowName string         `json:"workflow_name,omitempty"`
	Steps        []*domain.Step `json:"steps,omitempty"`
}

// resolveBody carries the operator's decision for a failed step.
type resolveBody struct {
	Decision constants.Decision `json:"decision"`
}

// handleListRuns returns run history, newest first. A workflow_id query
// narrows it to one workflow. Step records are omitted from list views.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("workflow_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	names := make(map[string]string)
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		name, ok := names[run.WorkflowID]
		if !ok {
			name, err = s.workflowName(r, run.WorkflowID)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			names[run.WorkflowID] = name
		}
		views = append(views, runView{Run: run, WorkflowName: name})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetRun returns one run with its steps in execution order.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, runView{Run: run, WorkflowName: name, Steps: steps})
}

// handleListRunSteps returns the run's step records in execution order.
func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, r, err)
		return
	}
	steps, err := s.store.ListSteps(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

// handleResolveStep submits an operator decision for a failed step. Only
// retry and skip come through this endpoint; aborting a run has its own.
func (s *Server) handleResolveStep(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Decision != constants.DecisionRetry && body.Decision != constants.DecisionSkip {
		s.writeError(w, r, webrunerrors.Wrapf(webrunerrors.ErrInvalidDecision, "%q", body.Decision))
		return
	}

	runID := chi.URLParam(r, "runID")
	stepID := chi.URLParam(r, "stepID")
	if err := s.engine.Resolve(r.Context(), runID, stepID, body.Decision); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("step_id", stepID).
		Str("decision", string(body.Decision)).
		Msg("step resolution submitted")
	writeDetail(w, http.StatusOK, string(body.Decision)+" requested")
}

// handleAbortRun cancels an active run.
func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.engine.Abort(r.Context(), runID); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info().Str("run_id", runID).Msg("run abort submitted")
	writeDetail(w, http.StatusOK, "abort requested")
}

// workflowName resolves a run's workflow name. Runs outlive their workflow,
// so a missing workflow yields an empty name rather than an error.
func (s *Server) workflowName(r *http.Request, workflowID string) (string, error) {
	wf, err := s.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, webrunerrors.ErrWorkflowNotFound) {
			return "", nil
		}
		return "", err
	}
	return wf.Name, nil
}
