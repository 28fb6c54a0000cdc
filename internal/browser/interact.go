package browser

import (
	"context"
	stderrors "errors"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/logging"
)

// ClickElement locates the described element and clicks it. The element is
// scrolled into view first; after the click the session waits for DOM-ready
// (best effort) and backs out of any bot wall the click landed on. Response
// time covers locate through recovery.
func (s *Session) ClickElement(ctx context.Context, target string) (*domain.ClickResult, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	el, err := s.FindElement(ctx, target, constants.ActionClick)
	if err != nil {
		return nil, err
	}

	if err := s.clickOnce(ctx, el); err != nil {
		return nil, errors.Wrapf(classifyInteraction(err), "click %q", target)
	}

	// In-page apps never fire a load event, so expiry here is normal.
	_ = s.WaitDOMReady(ctx, constants.PostClickLoadTimeout)

	if s.Blocked(ctx) {
		s.logger.Warn().Str("target", logging.SafeValue("target", target)).Msg("bot wall after click, navigating back")
		if err := s.Back(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("recovery navigation failed")
		}
	}

	return &domain.ClickResult{
		Element:        target,
		Clicked:        true,
		CurrentURL:     s.CurrentURL(ctx),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Live:           true,
	}, nil
}

// TypeText locates the described input, focuses it and replaces its content
// with value. When the target or step description reads like a search, the
// session presses Enter, waits out the resulting navigation and falls back
// to a DuckDuckGo query for the typed text if a bot wall appears.
func (s *Session) TypeText(ctx context.Context, target, value, description string) (*domain.TypeResult, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	el, err := s.FindElement(ctx, target, constants.ActionType)
	if err != nil {
		return nil, err
	}

	if err := s.fillElement(ctx, el, value); err != nil {
		return nil, errors.Wrapf(classifyInteraction(err), "fill %q", target)
	}

	if hasSearchIntent(target + " " + description) {
		s.submitSearch(ctx, value)
	}

	return &domain.TypeResult{
		Element:        target,
		TextEntered:    value,
		Characters:     utf8.RuneCountInString(value),
		CurrentURL:     s.CurrentURL(ctx),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Live:           true,
	}, nil
}

// clickOnce scrolls the element into view and clicks it. A disabled control
// is rejected before the pointer moves.
func (s *Session) clickOnce(ctx context.Context, el *rod.Element) error {
	if s.elementDisabled(el) {
		return errors.ErrElementDisabled
	}
	scoped := el.Context(ctx)
	if err := scoped.Timeout(constants.ScrollTimeout).ScrollIntoView(); err != nil {
		return err
	}
	return scoped.Timeout(constants.ClickTimeout).Click(proto.InputMouseButtonLeft, 1)
}

// fillElement focuses the input with a click, clears whatever it holds and
// types the new value.
func (s *Session) fillElement(ctx context.Context, el *rod.Element, value string) error {
	if s.elementDisabled(el) {
		return errors.ErrElementDisabled
	}
	scoped := el.Context(ctx).Timeout(constants.FillTimeout)
	if err := scoped.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := scoped.SelectAllText(); err == nil {
		_ = scoped.Input("")
	}
	return scoped.Input(value)
}

// submitSearch presses Enter after a short settle pause and rides out the
// navigation it triggers. A bot wall on the results page reroutes the query
// to DuckDuckGo. Every wait in here is best effort: a search that never
// navigates still counts as submitted.
func (s *Session) submitSearch(ctx context.Context, query string) {
	_ = ctxutil.Sleep(ctx, constants.SearchSubmitPause)

	if err := s.page.Keyboard.Press(input.Enter); err != nil {
		s.logger.Warn().Err(err).Msg("search submit keypress failed")
		return
	}

	_ = s.WaitDOMReady(ctx, constants.SearchNavigateTimeout)
	s.WaitIdle(ctx, constants.SearchIdleTimeout)

	if !s.Blocked(ctx) {
		return
	}

	fallback := "https://duckduckgo.com/?q=" + url.QueryEscape(query)
	s.logger.Warn().Str("fallback", fallback).Msg("bot wall after search, rerouting to DuckDuckGo")

	p := s.page.Context(ctx)
	if err := p.Timeout(constants.SearchNavigateTimeout).Navigate(fallback); err != nil {
		s.logger.Warn().Err(err).Msg("search fallback navigation failed")
		return
	}
	_ = p.Timeout(constants.SearchNavigateTimeout).WaitLoad()
	s.WaitIdle(ctx, constants.SearchIdleTimeout)
}

// elementDisabled reads the disabled property; unreadable counts as enabled.
func (s *Session) elementDisabled(el *rod.Element) bool {
	prop, err := el.Timeout(constants.ElementProbeTimeout).Property("disabled")
	if err != nil {
		return false
	}
	return prop.Bool()
}

// classifyInteraction maps driver failures onto the typed element errors the
// fix-suggestion table keys on. Anything unrecognized stays as-is so the raw
// cause lands in the step error message.
func classifyInteraction(err error) error {
	var covered *rod.CoveredError
	if stderrors.As(err, &covered) {
		return errors.ErrElementObscured
	}
	var invisible *rod.InvisibleShapeError
	if stderrors.As(err, &invisible) {
		return errors.ErrElementObscured
	}
	var noPointer *rod.NoPointerEventsError
	if stderrors.As(err, &noPointer) {
		return errors.ErrElementDisabled
	}
	var notInteractable *rod.NotInteractableError
	if stderrors.As(err, &notInteractable) {
		return errors.ErrElementObscured
	}
	var objectGone *rod.ObjectNotFoundError
	if stderrors.As(err, &objectGone) {
		return errors.ErrStaleElement
	}
	var elementGone *rod.ElementNotFoundError
	if stderrors.As(err, &elementGone) {
		return errors.ErrStaleElement
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrNavigationTimeout
	}
	return err
}
