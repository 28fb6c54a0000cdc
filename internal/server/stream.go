package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// waitingFrameInterval is the poll cadence while a run has no live browser
// session to capture yet.
const waitingFrameInterval = time.Second

// handleLiveEvents streams run events as Server-Sent Events. The stream
// closes after the terminal event; idle periods carry heartbeat frames. A
// run that already finished gets a single synthesized terminal frame so
// late watchers see closure instead of an idle stream.
func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before reading the record. Terminal status is persisted
	// before its event publishes, so either the store shows the run
	// finished or the subscription will carry the terminal event.
	ch := s.engine.Events().Subscribe(runID)
	defer s.engine.Events().Unsubscribe(runID, ch)

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if run.Status.IsTerminal() {
		ev := domain.NewRunFailed(runID)
		if run.Status == constants.RunStatusCompleted {
			ev = domain.NewRunCompleted(runID)
		}
		_ = writeEventFrame(w, flusher, ev)
		return
	}

	heartbeat := time.NewTimer(s.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEventFrame(w, flusher, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
			if !heartbeat.Stop() {
				select {
				case <-heartbeat.C:
				default:
				}
			}
			heartbeat.Reset(s.heartbeatEvery)

		case <-heartbeat.C:
			if err := writeEventFrame(w, flusher, domain.NewHeartbeat(runID)); err != nil {
				return
			}
			heartbeat.Reset(s.heartbeatEvery)
		}
	}
}

// writeEventFrame renders one SSE frame and flushes it to the client.
func writeEventFrame(w io.Writer, flusher http.Flusher, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleLiveScreen streams the run's viewport over a WebSocket as binary
// JPEG frames at roughly three per second. Before the browser session
// exists (and after it closes) the stream carries JSON status messages
// instead, at a slower cadence.
func (s *Server) handleLiveScreen(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error.
		return
	}
	defer func() { _ = conn.Close() }()

	// The read pump only services close frames; any read error means the
	// client is gone.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		waiting, err := s.writeScreenFrame(r.Context(), conn, runID)
		if err != nil {
			return
		}

		delay := constants.StreamFrameInterval
		if waiting {
			delay = waitingFrameInterval
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}
}

// writeScreenFrame sends one JPEG frame, or a JSON status message when no
// live session exists or the capture fails. The waiting return slows the
// poll cadence until a session appears.
func (s *Server) writeScreenFrame(ctx context.Context, conn *websocket.Conn, runID string) (bool, error) {
	sess, ok := s.engine.SessionFor(runID)
	if !ok {
		return true, conn.WriteJSON(map[string]string{"status": "waiting"})
	}

	frame, err := sess.Screenshot(ctx, constants.StreamScreenshotQuality)
	if err != nil {
		return false, conn.WriteJSON(map[string]string{"status": "capturing"})
	}
	return false, conn.WriteMessage(websocket.BinaryMessage, frame)
}
