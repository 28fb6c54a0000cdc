package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
	"github.com/ysmood/gson"

	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
)

// defaultUserAgent matches current desktop Chrome on Linux, large enough a
// population for automated sessions to hide in.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// fingerprintJS papers over the automation signals that remain after
// stealth.JS: webdriver flag, empty plugin and language lists, the
// notification permission probe, and toString inspection of patched
// functions.
const fingerprintJS = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

	const origQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (params) =>
		params.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: origQuery(params);

	const origToString = Function.prototype.toString;
	Function.prototype.toString = function() {
		if (this === navigator.permissions.query) return 'function query() { [native code] }';
		return origToString.call(this);
	};
})();`

// fallbackReason is the canonical explanation attached to results that were
// rescued by the DuckDuckGo fallback.
const fallbackReason = "Bot detection bypassed via DuckDuckGo"

// blockSignals are the phrases that identify a CAPTCHA or bot wall in page
// text. Two compound signals (blocked + your request, please verify + human)
// are checked separately in blockedText.
var blockSignals = []string{ //nolint:gochecknoglobals // Fixed fingerprint list
	"unusual traffic",
	"are not a robot",
	"i'm not a robot",
	"captcha",
	"sorry, you have been blocked",
	"recaptcha",
}

// Session is one isolated browsing context with a single prepared page. A
// session belongs to exactly one run; the engine releases it when the run
// reaches a terminal state.
type Session struct {
	cfg       *config.BrowserConfig
	vision    VisionPicker
	logger    zerolog.Logger
	incognito *rod.Browser
	page      *rod.Page
	closeOnce sync.Once
}

// Page exposes the underlying page for the locator and extractor.
func (s *Session) Page() *rod.Page {
	return s.page
}

// prepare applies the stealth scripts, viewport, user agent and headers to a
// freshly created page, before anything is loaded in it.
func (s *Session) prepare() error {
	if _, err := s.page.EvalOnNewDocument(stealth.JS); err != nil {
		return errors.Wrapf(errors.ErrBrowserUnavailable, "stealth script: %v", err)
	}
	if _, err := s.page.EvalOnNewDocument(fingerprintJS); err != nil {
		return errors.Wrapf(errors.ErrBrowserUnavailable, "fingerprint script: %v", err)
	}

	if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      defaultUserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "Linux x86_64",
	}); err != nil {
		return errors.Wrapf(errors.ErrBrowserUnavailable, "user agent: %v", err)
	}

	if err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return errors.Wrapf(errors.ErrBrowserUnavailable, "viewport: %v", err)
	}

	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: clientHintHeaders()}).Call(s.page); err != nil {
		return errors.Wrapf(errors.ErrBrowserUnavailable, "headers: %v", err)
	}
	return nil
}

// clientHintHeaders converts the fixed client-hint set to the gson map the
// CDP call requires.
func clientHintHeaders() proto.NetworkHeaders {
	plain := map[string]string{
		"Accept-Language":    "en-US,en;q=0.9",
		"Sec-CH-UA":          `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		"Sec-CH-UA-Mobile":   "?0",
		"Sec-CH-UA-Platform": `"Linux"`,
	}
	headers := make(proto.NetworkHeaders, len(plain))
	for k, v := range plain {
		headers[k] = gson.New(v)
	}
	return headers
}

// Navigate loads a URL and returns the navigate result record. A bare host
// gets an https scheme. After DOM-ready the session waits for the network to
// go quiet, capped by the configured idle timeout; cap expiry is not an
// error. When the landed page shows a bot wall and the target was a Google
// host, the session re-navigates to DuckDuckGo preserving the original query
// and flags the result as a fallback. Load time covers the whole flow.
func (s *Session) Navigate(ctx context.Context, rawURL string) (*domain.NavigateResult, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	target := ensureScheme(rawURL)
	start := time.Now()

	res, err := s.navigateOnce(ctx, target)
	if err != nil {
		return nil, err
	}

	if s.Blocked(ctx) {
		fallback := searchFallbackURL(target)
		if fallback == "" {
			s.logger.Warn().Str("url", target).Msg("bot wall detected, no fallback for host")
		} else {
			s.logger.Warn().Str("url", target).Str("fallback", fallback).
				Msg("bot wall detected, retrying via DuckDuckGo")
			res, err = s.navigateOnce(ctx, fallback)
			if err != nil {
				return nil, err
			}
			res.Fallback = true
			res.OriginalURL = target
			res.FallbackReason = fallbackReason
		}
	}

	res.LoadTimeMS = time.Since(start).Milliseconds()
	return res, nil
}

// navigateOnce performs a single load: hard DOM-ready wait, then best-effort
// network idle.
func (s *Session) navigateOnce(ctx context.Context, target string) (*domain.NavigateResult, error) {
	p := s.page.Context(ctx)

	if err := p.Timeout(s.cfg.NavigationTimeout).Navigate(target); err != nil {
		return nil, errors.Wrapf(errors.ErrNavigationTimeout, "navigate %s: %v", target, err)
	}
	if err := p.Timeout(s.cfg.NavigationTimeout).WaitLoad(); err != nil {
		return nil, errors.Wrapf(errors.ErrNavigationTimeout, "dom ready %s: %v", target, err)
	}

	waitIdle := p.Timeout(s.cfg.NetworkIdleTimeout).WaitRequestIdle(constants.RequestIdleWindow, nil, nil, nil)
	waitIdle()

	info, err := p.Info()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSessionClosed, "page info: %v", err)
	}

	return &domain.NavigateResult{
		URL:        info.URL,
		StatusCode: s.statusCode(ctx),
		PageTitle:  info.Title,
		DOMReady:   true,
		Live:       true,
	}, nil
}

// WaitIdle waits for the network to go quiet, up to the given limit. Used by
// steps that settle the page without navigating. Never fails.
func (s *Session) WaitIdle(ctx context.Context, limit time.Duration) {
	p := s.page.Context(ctx).Timeout(limit)
	waitIdle := p.WaitRequestIdle(constants.RequestIdleWindow, nil, nil, nil)
	waitIdle()
}

// WaitDOMReady waits for the load event after an in-page transition (click,
// search submit), up to the given limit.
func (s *Session) WaitDOMReady(ctx context.Context, limit time.Duration) error {
	if err := s.page.Context(ctx).Timeout(limit).WaitLoad(); err != nil {
		return errors.Wrapf(errors.ErrNavigationTimeout, "dom ready: %v", err)
	}
	return nil
}

// Blocked reports whether the current page is a CAPTCHA or bot wall. Only
// the first 2000 characters of body text are inspected.
func (s *Session) Blocked(ctx context.Context) bool {
	p := s.page.Context(ctx).Timeout(constants.BlockProbeTimeout)
	res, err := p.Eval(`() => document.body?.innerText?.substring(0, 2000) || ''`)
	if err != nil || res == nil {
		return false
	}
	return blockedText(res.Value.Str())
}

// Back returns to the previous page, used when a click landed on a bot wall.
func (s *Session) Back(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	if err := p.NavigateBack(); err != nil {
		return errors.Wrapf(errors.ErrNavigationTimeout, "navigate back: %v", err)
	}
	_ = p.Timeout(constants.PostClickLoadTimeout).WaitLoad()
	return nil
}

// Screenshot captures the viewport as a JPEG at the given quality.
func (s *Session) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(quality),
	})
	if err != nil {
		return nil, errors.Wrap(err, "capture screenshot")
	}
	return data, nil
}

// screenshotPNG captures lossless input for the vision fallback.
func (s *Session) screenshotPNG(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "capture screenshot")
	}
	return data, nil
}

// CurrentURL returns the page's current URL, empty when unreadable.
func (s *Session) CurrentURL(ctx context.Context) string {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Title returns the page's current title, empty when unreadable.
func (s *Session) Title(ctx context.Context) string {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// Close releases the page and its incognito context. Safe to call more than
// once; only the first call does the work.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.incognito != nil {
			_ = s.incognito.Close()
		}
		s.logger.Debug().Msg("browser session closed")
	})
}

// statusCode reads the HTTP status of the last navigation from the
// performance timeline. Pages without a navigation entry report 200.
func (s *Session) statusCode(ctx context.Context) int {
	p := s.page.Context(ctx).Timeout(constants.BlockProbeTimeout)
	res, err := p.Eval(`() => {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0 && entries[0].responseStatus) {
			return entries[0].responseStatus;
		}
		return 200;
	}`)
	if err != nil || res == nil {
		return 200
	}
	return res.Value.Int()
}

// blockedText applies the bot-wall fingerprint to lowercased page text.
func blockedText(text string) bool {
	lower := strings.ToLower(text)
	for _, signal := range blockSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	if strings.Contains(lower, "blocked") && strings.Contains(lower, "your request") {
		return true
	}
	if strings.Contains(lower, "please verify") && strings.Contains(lower, "human") {
		return true
	}
	return false
}

// ensureScheme defaults bare hosts to https.
func ensureScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// searchFallbackURL maps a Google URL to its DuckDuckGo equivalent,
// preserving the q parameter. Non-Google hosts have no fallback.
func searchFallbackURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !strings.HasPrefix(host, "google.") {
		return ""
	}
	if q := u.Query().Get("q"); q != "" {
		return "https://duckduckgo.com/?q=" + url.QueryEscape(q)
	}
	return "https://duckduckgo.com"
}
