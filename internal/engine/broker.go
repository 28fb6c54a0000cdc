package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/errors"
)

// Broker matches a failed step's wait with an external retry/skip/abort
// decision. Each {run, step} pair has at most one outstanding wait. A
// decision that arrives before its wait is buffered and consumed by the
// next Wait for the same step.
type Broker struct {
	mu      sync.Mutex
	waiters map[string]chan constants.Decision
	pending map[string]constants.Decision
	timeout time.Duration
}

// NewBroker creates a resolution broker. Waits that receive no decision
// within timeout resolve to abort. A non-positive timeout falls back to
// the default.
func NewBroker(timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = constants.ResolutionTimeout
	}
	return &Broker{
		waiters: make(map[string]chan constants.Decision),
		pending: make(map[string]constants.Decision),
		timeout: timeout,
	}
}

// Wait blocks until an external decision arrives for the step. The timeout
// and context cancellation both resolve to abort. Returns
// ErrResolutionPending if the step already has a waiter.
func (b *Broker) Wait(ctx context.Context, runID, stepID string) (constants.Decision, error) {
	key := brokerKey(runID, stepID)

	b.mu.Lock()
	if d, ok := b.pending[key]; ok {
		delete(b.pending, key)
		b.mu.Unlock()
		return d, nil
	}
	if _, ok := b.waiters[key]; ok {
		b.mu.Unlock()
		return constants.DecisionAbort, errors.Wrapf(errors.ErrResolutionPending, "step %s", stepID)
	}
	ch := make(chan constants.Decision, 1)
	b.waiters[key] = ch
	b.mu.Unlock()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var decision constants.Decision
	select {
	case decision = <-ch:
	case <-timer.C:
		decision = constants.DecisionAbort
	case <-ctx.Done():
		decision = constants.DecisionAbort
	}

	b.mu.Lock()
	if b.waiters[key] == ch {
		delete(b.waiters, key)
	}
	b.mu.Unlock()

	return decision, nil
}

// Resolve delivers a decision for the step. If a waiter is blocked it is
// unblocked immediately; otherwise the decision is buffered for the step's
// next Wait. Returns ErrInvalidDecision for decisions outside the
// retry/skip/abort set.
func (b *Broker) Resolve(runID, stepID string, decision constants.Decision) error {
	if !decision.IsValid() {
		return errors.Wrapf(errors.ErrInvalidDecision, "%q", decision)
	}

	key := brokerKey(runID, stepID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.waiters[key]; ok {
		delete(b.waiters, key)
		ch <- decision
		return nil
	}
	b.pending[key] = decision
	return nil
}

// AbortAll resolves every outstanding waiter of the run with abort and
// drops the run's buffered decisions. Returns the number of waiters
// unblocked.
func (b *Broker) AbortAll(runID string) int {
	prefix := runID + ":"

	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for key, ch := range b.waiters {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		delete(b.waiters, key)
		ch <- constants.DecisionAbort
		n++
	}
	for key := range b.pending {
		if strings.HasPrefix(key, prefix) {
			delete(b.pending, key)
		}
	}
	return n
}

// Forget drops the run's buffered decisions without touching its waiters.
// The engine calls it when the run reaches a terminal state so a decision
// submitted after the step stopped waiting is not retained for the process
// lifetime.
func (b *Broker) Forget(runID string) {
	prefix := runID + ":"

	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.pending {
		if strings.HasPrefix(key, prefix) {
			delete(b.pending, key)
		}
	}
}

// Waiting reports whether the step currently has a blocked waiter.
func (b *Broker) Waiting(runID, stepID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.waiters[brokerKey(runID, stepID)]
	return ok
}

func brokerKey(runID, stepID string) string {
	return runID + ":" + stepID
}
