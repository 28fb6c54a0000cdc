// Package signal provides graceful shutdown handling for webrun commands.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages (to avoid circular dependencies)
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// forcedExitCode is the conventional exit status for death by interrupt
// (128 + SIGINT).
const forcedExitCode = 130

// osExit is a test seam for the second-signal path.
var osExit = os.Exit

// Handler turns SIGINT and SIGTERM into context cancellation. The first
// signal starts a graceful drain: the wrapped context cancels and the
// Interrupted channel closes. A second signal abandons the drain and exits
// the process with status 130.
type Handler struct {
	ctx         context.Context //nolint:containedctx // intentional: handler manages context lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{} // signals listen() to exit cleanly
	once        sync.Once
	stopOnce    sync.Once
	sigChan     chan os.Signal
}

// NewHandler starts listening for SIGINT and SIGTERM.
//
// Usage:
//
//	h := signal.NewHandler(ctx)
//	defer h.Stop()
//	ctx = h.Context()
//
//	// ... drain on ctx cancellation ...
//
//	select {
//	case <-h.Interrupted():
//	    // the cancellation came from an interrupt
//	default:
//	}
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		// Buffer of 2 so the graceful and the force signal can land back
		// to back without blocking delivery.
		sigChan: make(chan os.Signal, 2),
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()

	return h
}

// Context returns the cancellable context. Work that should stop on the
// first interrupt runs under it.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns a channel that closes when an interrupt arrived.
// External cancellation of the parent context leaves it open, so callers
// can tell the two apart.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Stop unregisters the signal handler and cancels the context. Safe to
// call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done) // let listen() exit before sigChan goes quiet
		h.cancel()
	})
}

// interrupt records the first signal: cancel the context and close the
// Interrupted channel, exactly once.
func (h *Handler) interrupt() {
	h.once.Do(func() {
		h.cancel()
		close(h.interrupted)
	})
}

// listen waits for the first signal, then arms the force-exit path. Stop
// and external context cancellation both end the watch; only a real
// signal arms the second stage.
func (h *Handler) listen() {
	select {
	case <-h.done:
		return
	case <-h.ctx.Done():
		return
	case <-h.sigChan:
		h.interrupt()
	}

	select {
	case <-h.done:
	case <-h.sigChan:
		osExit(forcedExitCode)
	}
}
