package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/scheduler"
)

// runRef is the compact last-run summary embedded in workflow views.
type runRef struct {
	ID        string              `json:"id"`
	Status    constants.RunStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// workflowView decorates a workflow with its run history digest.
type workflowView struct {
	*domain.Workflow
	LastRun  *runRef `json:"last_run,omitempty"`
	RunCount int     `json:"run_count"`
}

// workflowPayload is the create body. Empty trigger and status fall back
// to manual/active.
type workflowPayload struct {
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Steps        []domain.StepDefinition    `json:"steps"`
	Variables    map[string]domain.Variable `json:"variables"`
	TriggerType  constants.Trigger          `json:"trigger_type"`
	ScheduleCron string                     `json:"schedule_cron"`
	Status       constants.WorkflowStatus   `json:"status"`
}

// workflowUpdate is the partial-update body; only non-null fields are
// applied.
type workflowUpdate struct {
	Name         *string                     `json:"name"`
	Description  *string                     `json:"description"`
	Steps        *[]domain.StepDefinition    `json:"steps"`
	Variables    *map[string]domain.Variable `json:"variables"`
	TriggerType  *constants.Trigger          `json:"trigger_type"`
	ScheduleCron *string                     `json:"schedule_cron"`
	Status       *constants.WorkflowStatus   `json:"status"`
}

// runStartedBody acknowledges an accepted run trigger.
type runStartedBody struct {
	RunID   string              `json:"run_id"`
	Status  constants.RunStatus `json:"status"`
	Trigger constants.Trigger   `json:"trigger,omitempty"`
}

// handleListWorkflows returns every workflow, newest first, each with its
// run count and most recent run.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]workflowView, 0, len(workflows))
	for _, wf := range workflows {
		view, err := s.workflowView(r.Context(), wf)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleCreateWorkflow validates and persists a new workflow, registering
// its schedule when one applies.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload workflowPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:           uuid.NewString(),
		Name:         payload.Name,
		Description:  payload.Description,
		Steps:        payload.Steps,
		Variables:    payload.Variables,
		TriggerType:  payload.TriggerType,
		ScheduleCron: payload.ScheduleCron,
		Status:       payload.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if wf.TriggerType == "" {
		wf.TriggerType = constants.TriggerManual
	}
	if wf.Status == "" {
		wf.Status = constants.WorkflowStatusActive
	}

	if err := validateWorkflow(wf); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.CreateWorkflow(r.Context(), wf); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncSchedule(wf)

	s.logger.Info().
		Str("workflow_id", wf.ID).
		Str("name", wf.Name).
		Msg("workflow created")
	writeJSON(w, http.StatusCreated, workflowView{Workflow: wf})
}

// handleGetWorkflow returns one workflow with its run history digest.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.GetWorkflow(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.workflowView(r.Context(), wf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateWorkflow applies a partial update, re-validates the result
// and re-syncs the schedule.
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.GetWorkflow(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var patch workflowUpdate
	if !decodeBody(w, r, &patch) {
		return
	}
	applyUpdate(wf, &patch)
	wf.UpdatedAt = time.Now().UTC()

	if err := validateWorkflow(wf); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateWorkflow(r.Context(), wf); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncSchedule(wf)

	view, err := s.workflowView(r.Context(), wf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteWorkflow removes the workflow and cancels its schedule. Run
// history is kept.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.scheduler != nil {
		s.scheduler.Remove(id)
	}

	s.logger.Info().Str("workflow_id", id).Msg("workflow deleted")
	writeDetail(w, http.StatusOK, "workflow deleted")
}

// handleTriggerRun starts a manual run and acknowledges it immediately;
// progress is streamed separately.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.StartRun(r.Context(), chi.URLParam(r, "workflowID"), constants.TriggerManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runStartedBody{RunID: run.ID, Status: run.Status})
}

// handleWebhookTrigger starts a run from an inbound webhook. The body is
// ignored; the workflow's stored variables drive the run.
func (s *Server) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.StartRun(r.Context(), chi.URLParam(r, "workflowID"), constants.TriggerWebhook)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runStartedBody{
		RunID:   run.ID,
		Status:  run.Status,
		Trigger: constants.TriggerWebhook,
	})
}

// workflowView attaches run_count and last_run to the workflow. Stores
// return runs newest first, so the digest is the head of the list.
func (s *Server) workflowView(ctx context.Context, wf *domain.Workflow) (workflowView, error) {
	runs, err := s.store.ListRuns(ctx, wf.ID)
	if err != nil {
		return workflowView{}, err
	}
	view := workflowView{Workflow: wf, RunCount: len(runs)}
	if len(runs) > 0 {
		view.LastRun = &runRef{
			ID:        runs[0].ID,
			Status:    runs[0].Status,
			CreatedAt: runs[0].CreatedAt,
		}
	}
	return view, nil
}

// validateWorkflow runs definition validation plus a cron parse for
// scheduled workflows, so bad expressions are rejected before they reach
// the scheduler.
func validateWorkflow(wf *domain.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	if wf.TriggerType == constants.TriggerScheduled {
		return scheduler.ValidateSpec(wf.ScheduleCron)
	}
	return nil
}

// applyUpdate copies the patch's set fields onto the workflow.
func applyUpdate(wf *domain.Workflow, patch *workflowUpdate) {
	if patch.Name != nil {
		wf.Name = *patch.Name
	}
	if patch.Description != nil {
		wf.Description = *patch.Description
	}
	if patch.Steps != nil {
		wf.Steps = *patch.Steps
	}
	if patch.Variables != nil {
		wf.Variables = *patch.Variables
	}
	if patch.TriggerType != nil {
		wf.TriggerType = *patch.TriggerType
	}
	if patch.ScheduleCron != nil {
		wf.ScheduleCron = *patch.ScheduleCron
	}
	if patch.Status != nil {
		wf.Status = *patch.Status
	}
}

// syncSchedule aligns the scheduler with a saved workflow. Expressions are
// validated at save time, so a sync failure here is only logged.
func (s *Server) syncSchedule(wf *domain.Workflow) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Sync(wf); err != nil {
		s.logger.Warn().
			Err(err).
			Str("workflow_id", wf.ID).
			Msg("schedule sync failed")
	}
}
