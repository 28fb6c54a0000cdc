// Package steps provides the per-action executors for the webrun engine.
//
// Each workflow action (navigate, click, type, extract, wait, conditional)
// has one Executor. An executor picks the best backend the run has: the
// live browser session first, the AI assistant for data-oriented actions
// when no page can serve them, and a simulated result as the final
// fallback so runs always make progress.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/ai, internal/browser, internal/ctxutil
//   - MUST NOT import: internal/engine, internal/store, internal/server
package steps

import (
	"context"
	"fmt"
	"sync"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// Executor runs a single workflow action and returns its result record.
//
// All Execute implementations must:
//   - Check ctx.Done() at the start and honor cancellation mid-step
//   - Pick the backend from the run context (browser, AI, simulation)
//   - Return a JSON-marshalable result record on success
type Executor interface {
	// Execute runs the step and returns its result record. The engine
	// marshals the record into the step and the step_completed event.
	// rc provides the run's backends and history.
	Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error)

	// Action returns the workflow action this executor handles.
	Action() constants.Action
}

// Registry maps workflow actions to their executors.
// It is safe for concurrent read access after initialization.
// Use NewRegistry() to create and Register() to add executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[constants.Action]Executor
}

// NewRegistry creates a new empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[constants.Action]Executor),
	}
}

// Register adds an executor to the registry.
// If an executor for the same action already exists, it will be replaced.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Action()] = e
}

// Get retrieves the executor for an action.
// Returns ErrInvalidAction if no executor is registered for it.
func (r *Registry) Get(action constants.Action) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", webrunerrors.ErrInvalidAction, action)
	}
	return e, nil
}

// Has checks if an executor is registered for the given action.
func (r *Registry) Has(action constants.Action) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[action]
	return ok
}

// Actions returns all registered actions.
func (r *Registry) Actions() []constants.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]constants.Action, 0, len(r.executors))
	for a := range r.executors {
		actions = append(actions, a)
	}
	return actions
}

// NewDefaultRegistry creates a registry with every workflow action wired to
// its built-in executor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewNavigateExecutor())
	r.Register(NewClickExecutor())
	r.Register(NewTypeExecutor())
	r.Register(NewExtractExecutor())
	r.Register(NewWaitExecutor())
	r.Register(NewConditionalExecutor())

	return r
}
