// Package scheduler fires runs for cron-triggered workflows.
//
// Every workflow with trigger_type=scheduled, status=active and a 5-field
// cron expression gets one job, keyed workflow_<id>. Adding a schedule for
// a workflow that already has one replaces it. Jobs re-read the workflow at
// fire time, so a pause, edit, or delete between fires is honored without
// touching the job registry.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/store, standard library
//   - MUST NOT import: internal/engine, internal/server, internal/cli
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/store"
)

// Dispatcher starts workflow runs. *engine.Engine implements it.
type Dispatcher interface {
	// StartRun creates and begins a run for the workflow.
	StartRun(ctx context.Context, workflowID string, trigger constants.Trigger) (*domain.Run, error)
}

// Scheduler owns the cron runner and its job registry.
type Scheduler struct {
	store      store.Store
	dispatcher Dispatcher
	cron       *cron.Cron
	logger     zerolog.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler over the store and dispatcher. Call Start to
// begin firing jobs.
func New(st store.Store, dispatcher Dispatcher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		dispatcher: dispatcher,
		cron:       cron.New(cron.WithLogger(cronLogger{logger})),
		logger:     logger,
		jobs:       make(map[string]cron.EntryID),
	}
}

// Start begins firing registered jobs at their scheduled times.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop ends job firing. The returned context completes once in-flight jobs
// have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info().Msg("scheduler stopping")
	return s.cron.Stop()
}

// LoadAll registers a job for every schedulable workflow in the store.
// Called once at startup. Workflows with invalid cron expressions are
// logged and skipped. Returns the number of jobs registered.
func (s *Scheduler) LoadAll(ctx context.Context) (int, error) {
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		return 0, webrunerrors.Wrap(err, "load scheduled workflows")
	}

	n := 0
	for _, wf := range workflows {
		if !wf.Schedulable() {
			continue
		}
		if err := s.Add(wf.ID, wf.ScheduleCron); err != nil {
			s.logger.Warn().Err(err).
				Str("workflow_id", wf.ID).
				Msg("skipping workflow with invalid schedule")
			continue
		}
		n++
	}

	s.logger.Info().Int("scheduled_workflows", n).Msg("schedules loaded")
	return n, nil
}

// ValidateSpec checks expr against the standard 5-field cron parser
// without registering anything. Save paths call it so a bad expression
// is rejected before the workflow is persisted.
func ValidateSpec(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return webrunerrors.Wrapf(webrunerrors.ErrInvalidCron, "%q: %v", expr, err)
	}
	return nil
}

// Add registers a cron job for the workflow, replacing any existing job
// with the same key. Returns ErrInvalidCron for expressions the 5-field
// parser rejects; the registry is untouched in that case.
func (s *Scheduler) Add(workflowID, expr string) error {
	id, err := s.cron.AddFunc(expr, func() { s.fire(workflowID) })
	if err != nil {
		return webrunerrors.Wrapf(webrunerrors.ErrInvalidCron, "%q: %v", expr, err)
	}

	key := jobKey(workflowID)
	s.mu.Lock()
	if old, ok := s.jobs[key]; ok {
		s.cron.Remove(old)
	}
	s.jobs[key] = id
	s.mu.Unlock()

	s.logger.Info().
		Str("workflow_id", workflowID).
		Str("cron", expr).
		Msg("workflow scheduled")
	return nil
}

// Remove cancels the workflow's job. Removing a workflow without a job is
// a no-op.
func (s *Scheduler) Remove(workflowID string) {
	key := jobKey(workflowID)

	s.mu.Lock()
	id, ok := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.cron.Remove(id)
	s.logger.Info().Str("workflow_id", workflowID).Msg("workflow unscheduled")
}

// Sync aligns the workflow's job with its current definition: schedulable
// workflows are (re)registered, everything else is removed. Workflow save
// and delete paths call this so the registry tracks the store.
func (s *Scheduler) Sync(wf *domain.Workflow) error {
	if wf.Schedulable() {
		return s.Add(wf.ID, wf.ScheduleCron)
	}
	s.Remove(wf.ID)
	return nil
}

// Scheduled reports whether the workflow currently has a registered job.
func (s *Scheduler) Scheduled(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobKey(workflowID)]
	return ok
}

// fire dispatches one scheduled run. The workflow is re-read from the
// store so its current steps, variables, and status apply.
func (s *Scheduler) fire(workflowID string) {
	ctx := context.Background()
	log := s.logger.With().Str("workflow_id", workflowID).Logger()

	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, webrunerrors.ErrWorkflowNotFound) {
			log.Warn().Msg("scheduled workflow deleted, removing job")
			s.Remove(workflowID)
			return
		}
		log.Warn().Err(err).Msg("scheduled workflow unreadable, skipping fire")
		return
	}
	if !wf.Schedulable() || len(wf.Steps) == 0 {
		log.Warn().
			Str("status", string(wf.Status)).
			Int("steps", len(wf.Steps)).
			Msg("scheduled workflow not runnable, skipping fire")
		return
	}

	run, err := s.dispatcher.StartRun(ctx, workflowID, constants.TriggerScheduled)
	if err != nil {
		log.Error().Err(err).Msg("scheduled run failed to start")
		return
	}
	log.Info().Str("run_id", run.ID).Msg("scheduled run started")
}

func jobKey(workflowID string) string {
	return "workflow_" + workflowID
}

// cronLogger adapts zerolog to the cron runner's logger. The runner's
// routine chatter lands at debug; its errors keep their level.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
