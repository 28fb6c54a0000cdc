package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/steps"
	"github.com/webrunhq/webrun/internal/store"
)

// Session is the engine's view of a run's browser session: the surface the
// step interpreter drives, plus screenshot capture and teardown.
// *browser.Session implements it.
type Session interface {
	steps.Session

	// Screenshot captures the viewport as a JPEG at the given quality.
	Screenshot(ctx context.Context, quality int) ([]byte, error)

	// Close releases the browsing context. Called exactly once per run.
	Close()
}

// SessionSource supplies browser sessions for runs. A source error is not
// fatal: the run proceeds in simulation mode.
type SessionSource interface {
	NewSession(ctx context.Context) (Session, error)
}

// BrowserSource adapts the browser manager to the engine's session source.
type BrowserSource struct {
	Manager *browser.Manager
}

// NewSession launches or reuses the managed browser and opens a fresh
// stealth page. Returns ErrBrowserUnavailable when no browser can serve.
func (b *BrowserSource) NewSession(ctx context.Context) (Session, error) {
	if b == nil || b.Manager == nil {
		return nil, webrunerrors.ErrBrowserUnavailable
	}
	sess, err := b.Manager.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Healer is the AI surface the engine consumes: the step interpreter's
// assistant operations plus the self-heal fix generator. *ai.Client
// implements it, including as a nil pointer whose Available reports false.
type Healer interface {
	steps.Assistant

	// Heal proposes a target/value fix for a failed step.
	Heal(ctx context.Context, action, target, description, errMsg string) (*ai.HealFix, error)
}

// activeRun tracks a live run's cancellation handle and browser session.
type activeRun struct {
	cancel  context.CancelFunc
	session Session
}

// Engine owns the run state machine. It creates run and step records,
// executes each run on its own goroutine, fans progress out through the
// event bus, and recovers step failures through self-healing and the
// resolution broker.
type Engine struct {
	store    store.Store
	registry *steps.Registry
	sessions SessionSource
	ai       Healer
	bus      *Bus
	broker   *Broker
	cfg      config.EngineConfig
	logger   zerolog.Logger

	mu     sync.RWMutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessions sets the browser session source. Without one, every run
// executes in simulation mode.
func WithSessions(src SessionSource) Option {
	return func(e *Engine) {
		e.sessions = src
	}
}

// WithAI sets the model client used for self-healing and the AI-backed
// step fallbacks.
func WithAI(client Healer) Option {
	return func(e *Engine) {
		e.ai = client
	}
}

// New creates a run engine. The store persists run and step records, and
// the registry supplies a step executor per action. Zero-value config
// fields fall back to their defaults.
func New(st store.Store, registry *steps.Registry, cfg config.EngineConfig, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = constants.EventQueueSize
	}
	if cfg.ResolutionTimeout <= 0 {
		cfg.ResolutionTimeout = constants.ResolutionTimeout
	}
	if cfg.ScreenshotQuality <= 0 || cfg.ScreenshotQuality > 100 {
		cfg.ScreenshotQuality = constants.StepScreenshotQuality
	}

	e := &Engine{
		store:    st,
		registry: registry,
		bus:      NewBus(cfg.EventQueueSize),
		broker:   NewBroker(cfg.ResolutionTimeout),
		cfg:      cfg,
		logger:   logger,
		active:   make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the engine's event bus for live-stream subscriptions.
func (e *Engine) Events() *Bus {
	return e.bus
}

// StartRun creates a run for the workflow and begins executing it on its
// own goroutine. Step definitions are interpolated and persisted as per-run
// step records before this returns, so the caller can list them immediately.
//
// Returns the created run. If persistence fails partway through, the run is
// returned alongside the error so the caller can inspect its state.
func (e *Engine) StartRun(ctx context.Context, workflowID string, trigger constants.Trigger) (*domain.Run, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(wf.Steps) == 0 {
		return nil, webrunerrors.Wrapf(webrunerrors.ErrWorkflowNoSteps, "workflow %s", workflowID)
	}

	registerSecrets(wf.Variables)

	now := time.Now().UTC()
	run := &domain.Run{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     constants.RunStatusPending,
		Trigger:    trigger,
		TotalSteps: len(wf.Steps),
		CreatedAt:  now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return run, err
	}

	records := materializeSteps(run.ID, wf, now)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StepNumber < records[j].StepNumber
	})
	for _, step := range records {
		if err := e.store.CreateStep(ctx, step); err != nil {
			return run, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = e.injectLoggerContext(runCtx, wf.ID, run.ID)

	e.mu.Lock()
	e.active[run.ID] = &activeRun{cancel: cancel}
	e.mu.Unlock()

	e.logger.Info().
		Str("workflow_id", wf.ID).
		Str("run_id", run.ID).
		Str("trigger", string(trigger)).
		Int("total_steps", run.TotalSteps).
		Msg("run starting")

	// The run goroutine owns the record from here; hand the caller a
	// snapshot so reads never race the state machine.
	snapshot := *run

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.executeRun(runCtx, run, records)
	}()

	return &snapshot, nil
}

// Abort cancels an active run. Outstanding resolution waiters are resolved
// with abort and the run's context is canceled so in-flight browser and
// model calls land promptly. The run finishes with status cancelled.
//
// Returns ErrRunNotFound for unknown runs and ErrRunNotActive when the run
// already reached a terminal state.
func (e *Engine) Abort(ctx context.Context, runID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	e.mu.RLock()
	entry, ok := e.active[runID]
	e.mu.RUnlock()

	if !ok {
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return webrunerrors.Wrapf(webrunerrors.ErrRunNotActive, "run %s is %s", runID, run.Status)
	}

	unblocked := e.broker.AbortAll(runID)
	entry.cancel()

	e.logger.Info().
		Str("run_id", runID).
		Int("unblocked_waiters", unblocked).
		Msg("run abort requested")
	return nil
}

// Resolve delivers an operator decision for a failed step. A decision that
// arrives before the step blocks is buffered for its next wait. The public
// resolve surface sends retry or skip; abort is accepted for completeness
// and fails the run like a timeout would.
func (e *Engine) Resolve(ctx context.Context, runID, stepID string, decision constants.Decision) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := e.store.GetStep(ctx, runID, stepID); err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		// Nothing is waiting and nothing will: accept the decision as a
		// no-op instead of buffering it forever.
		e.logger.Debug().
			Str("run_id", runID).
			Str("step_id", stepID).
			Msg("resolution for terminal run discarded")
		return nil
	}

	if err := e.broker.Resolve(runID, stepID, decision); err != nil {
		return err
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("step_id", stepID).
		Str("decision", string(decision)).
		Msg("step resolution received")
	return nil
}

// SessionFor returns the run's live browser session for screen streaming.
// The second return is false when the run has no session: not started,
// already terminal, or executing in simulation mode.
func (e *Engine) SessionFor(runID string) (Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.active[runID]
	if !ok || entry.session == nil {
		return nil, false
	}
	return entry.session, true
}

// Close aborts every active run and waits for their goroutines to finish.
// Runs interrupted this way persist as cancelled.
func (e *Engine) Close() {
	e.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(e.active))
	for _, entry := range e.active {
		cancels = append(cancels, entry.cancel)
	}
	e.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
	e.wg.Wait()
}

// injectLoggerContext enriches the run goroutine's context with a logger
// carrying the workflow and run IDs. Step executors retrieve it with
// zerolog.Ctx(ctx) so every log line correlates to its run.
func (e *Engine) injectLoggerContext(ctx context.Context, workflowID, runID string) context.Context {
	logger := e.logger.With().
		Str("workflow_id", workflowID).
		Str("run_id", runID).
		Logger()
	return logger.WithContext(ctx)
}
