// Package server exposes the workflow engine over HTTP.
//
// The API is JSON under /api: workflow CRUD and triggering, run inspection,
// a Server-Sent Events stream of run events, a WebSocket stream of live
// screen frames, and the operator resolution endpoints that unblock a run
// stopped on a failed step. Mutating a workflow keeps the cron scheduler in
// sync when one is attached.
//
// Import rules:
//   - CAN import: internal/ai, internal/config, internal/constants,
//     internal/domain, internal/engine, internal/errors, internal/scheduler,
//     internal/store, standard library
//   - MUST NOT import: internal/browser, internal/cli, internal/steps
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/engine"
	"github.com/webrunhq/webrun/internal/scheduler"
	"github.com/webrunhq/webrun/internal/store"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers. Streaming responses are unaffected.
const readHeaderTimeout = 10 * time.Second

// Summarizer is the model surface for run summaries and failure fix
// suggestions. *ai.Client implements it; handlers fall back to local
// composition when it is absent or unavailable.
type Summarizer interface {
	Available() bool
	SummarizeRun(ctx context.Context, workflowName, status string, completed, total int, stepDetails []string) (string, error)
	SuggestFix(ctx context.Context, action, description, target, errMsg string) (string, error)
}

// Server routes the HTTP API onto the store, engine and scheduler.
type Server struct {
	store     store.Store
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	ai        Summarizer
	cfg       config.ServerConfig
	logger    zerolog.Logger

	httpSrv  *http.Server
	upgrader websocket.Upgrader

	// heartbeatEvery is the SSE idle heartbeat cadence. Tests shorten it.
	heartbeatEvery time.Duration
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithScheduler attaches a cron scheduler. Workflow saves and deletes then
// keep its job registry in sync.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithAI attaches the model client used for run summaries and fix
// suggestions.
func WithAI(client Summarizer) Option {
	return func(s *Server) {
		s.ai = client
	}
}

// New assembles the router and returns a server ready to Start.
func New(st store.Store, eng *engine.Engine, cfg config.ServerConfig, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  st,
		engine: eng,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		heartbeatEvery: constants.HeartbeatInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// routes assembles the chi router for the full API surface.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Post("/", s.handleCreateWorkflow)
			r.Post("/webhook/{workflowID}", s.handleWebhookTrigger)
			r.Route("/{workflowID}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkflow)
				r.Put("/", s.handleUpdateWorkflow)
				r.Delete("/", s.handleDeleteWorkflow)
				r.Post("/run", s.handleTriggerRun)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/steps", s.handleListRunSteps)
				r.Get("/live", s.handleLiveEvents)
				r.Get("/screen", s.handleLiveScreen)
				r.Get("/summary", s.handleRunSummary)
				r.Post("/abort", s.handleAbortRun)
				r.Route("/steps/{stepID}", func(r chi.Router) {
					r.Post("/resolve", s.handleResolveStep)
					r.Get("/suggestions", s.handleStepSuggestions)
				})
			})
		})
	})

	return r
}

// Handler returns the assembled router. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens on the configured address and serves until Shutdown is
// called. A closed-server return is reported as nil.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.cfg.Addr).
		Msg("api server listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener. Streams that
// outlive ctx are cut when it expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("api server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger emits one structured line per completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "webrun",
	})
}
