// Package browser drives headless Chromium for live workflow runs. It owns
// the shared browser process, hands out isolated incognito sessions, resolves
// natural-language target descriptions to page elements, and harvests page
// content into normalized extraction shapes.
//
// This package follows strict import rules:
//   - CAN import: internal/ai, internal/config, internal/constants,
//     internal/ctxutil, internal/domain, internal/errors, standard library
//   - MUST NOT import: internal/engine, internal/server, internal/steps,
//     internal/store
package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/errors"
)

// VisionPicker chooses an element from a screenshot when every DOM strategy
// has failed. *ai.Client satisfies it; a nil picker disables the fallback.
type VisionPicker interface {
	Available() bool
	Throttled() bool
	PickElement(ctx context.Context, png []byte, target, action string, elements []ai.ElementInfo) (*ai.ElementPick, error)
}

// Manager owns the shared browser process. The process is launched lazily on
// the first session request and reused afterwards; each session gets its own
// incognito context so concurrent runs never share cookies or storage.
type Manager struct {
	cfg    *config.BrowserConfig
	vision VisionPicker
	logger zerolog.Logger

	mu     sync.Mutex
	lc     *launcher.Launcher
	shared *rod.Browser
	closed bool
}

// NewManager creates a browser manager. No browser process is started until
// the first session is requested.
func NewManager(cfg *config.BrowserConfig, vision VisionPicker, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		vision: vision,
		logger: logger.With().Str("component", "browser").Logger(),
	}
}

// Available reports whether a live browser can serve runs. The first call
// launches the browser; later calls probe the existing process and drop it
// when the probe fails so the next session triggers a relaunch.
func (m *Manager) Available(ctx context.Context) bool {
	if m.cfg == nil || !m.cfg.Enabled {
		return false
	}
	if err := ctxutil.Canceled(ctx); err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.browserLocked()
	if err != nil {
		m.logger.Warn().Err(err).Msg("browser unavailable, runs fall back to simulation")
		return false
	}
	if _, err := b.Version(); err != nil {
		m.logger.Warn().Err(err).Msg("browser health check failed, dropping process")
		m.dropLocked()
		return false
	}
	return true
}

// NewSession creates an isolated browsing context with one prepared page.
// The caller must Close the session exactly once.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	b, err := m.browserLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrBrowserUnavailable, "incognito context: %v", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, errors.Wrapf(errors.ErrBrowserUnavailable, "create page: %v", err)
	}

	s := &Session{
		cfg:       m.cfg,
		vision:    m.vision,
		logger:    m.logger,
		incognito: incognito,
		page:      page,
	}
	if err := s.prepare(); err != nil {
		s.Close()
		return nil, err
	}

	m.logger.Debug().Msg("browser session created")
	return s, nil
}

// Close shuts down the shared browser process. Sessions created earlier
// become unusable. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if m.shared != nil {
		err = m.shared.Close()
		m.shared = nil
	}
	if m.lc != nil {
		m.lc.Kill()
		m.lc.Cleanup()
		m.lc = nil
	}
	return err
}

// browserLocked returns the shared browser, launching it if needed.
// Callers must hold m.mu.
func (m *Manager) browserLocked() (*rod.Browser, error) {
	if m.closed {
		return nil, errors.Wrap(errors.ErrBrowserUnavailable, "manager closed")
	}
	if m.shared != nil {
		return m.shared, nil
	}

	lc := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled")
	if m.cfg.BinPath != "" {
		lc = lc.Bin(m.cfg.BinPath)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrBrowserUnavailable, "launch: %v", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Kill()
		return nil, errors.Wrapf(errors.ErrBrowserUnavailable, "connect: %v", err)
	}

	m.lc = lc
	m.shared = b
	m.logger.Info().Bool("headless", m.cfg.Headless).Msg("browser launched")
	return b, nil
}

// dropLocked discards the shared browser so the next request relaunches.
// Callers must hold m.mu.
func (m *Manager) dropLocked() {
	if m.shared != nil {
		_ = m.shared.Close()
		m.shared = nil
	}
	if m.lc != nil {
		m.lc.Kill()
		m.lc = nil
	}
}
