package browser

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/logging"
)

// probe is one locator attempt: a CSS selector, optionally narrowed to
// elements whose text contains a lowercase needle.
type probe struct {
	selector string
	text     string
}

// selectorPatterns maps descriptive target vocabulary to ordered probe lists.
// Search inputs try textarea first, Google serves its box as one now.
var selectorPatterns = []struct { //nolint:gochecknoglobals // Fixed locator table
	re     *regexp.Regexp
	probes []probe
}{
	{re: regexp.MustCompile(`search\s*(bar|input|box|field)?`), probes: []probe{
		{selector: `textarea[name="q"]`},
		{selector: `textarea[aria-label*="earch" i]`},
		{selector: `textarea[role="combobox"]`},
		{selector: `input[type="search"]`},
		{selector: `input[name="q"]`},
		{selector: `input[name="query"]`},
		{selector: `input[name="search"]`},
		{selector: `[role="searchbox"]`},
		{selector: `input[placeholder*="earch" i]`},
		{selector: `#search-input`},
		{selector: `#searchbox`},
		{selector: `form input[type="text"]`},
	}},
	{re: regexp.MustCompile(`submit|send\s*(button)?`), probes: []probe{
		{selector: `button[type="submit"]`},
		{selector: `input[type="submit"]`},
		{selector: `button`, text: "submit"},
		{selector: `button`, text: "send"},
	}},
	{re: regexp.MustCompile(`(user\s*name|email)\s*(input|field)?`), probes: []probe{
		{selector: `input[type="email"]`},
		{selector: `input[name="email"]`},
		{selector: `input[name="username"]`},
		{selector: `input[autocomplete="email"]`},
		{selector: `input[autocomplete="username"]`},
		{selector: `input[id*="email" i]`},
		{selector: `input[id*="user" i]`},
		{selector: `input[placeholder*="email" i]`},
	}},
	{re: regexp.MustCompile(`password\s*(input|field)?`), probes: []probe{
		{selector: `input[type="password"]`},
		{selector: `input[name="password"]`},
	}},
	{re: regexp.MustCompile(`(next|load\s*more)\s*(page|button)?`), probes: []probe{
		{selector: `a`, text: "next"},
		{selector: `button`, text: "next"},
		{selector: `button`, text: "load more"},
		{selector: `button`, text: "show more"},
		{selector: `[aria-label="Next"]`},
		{selector: `a[rel="next"]`},
		{selector: `.pagination a:last-child`},
	}},
	{re: regexp.MustCompile(`first\s*(search\s*)?(result|link|item|match|profile)`), probes: []probe{
		{selector: `#search h3 a`},
		{selector: `.g a`},
		{selector: `#rso a`},
		{selector: `.search-result a`},
		{selector: `main a`},
		{selector: `article a`},
		{selector: `.results a`},
		{selector: `h3 a`},
	}},
	{re: regexp.MustCompile(`(log\s*in|sign\s*in)\s*(button)?`), probes: []probe{
		{selector: `button`, text: "log in"},
		{selector: `button`, text: "sign in"},
		{selector: `a`, text: "log in"},
		{selector: `a`, text: "sign in"},
		{selector: `input[type="submit"]`},
	}},
	{re: regexp.MustCompile(`name\s*(field|input)?`), probes: []probe{
		{selector: `input[name="name"]`},
		{selector: `input[autocomplete="name"]`},
		{selector: `input[id*="name" i]`},
		{selector: `input[placeholder*="name" i]`},
	}},
	{re: regexp.MustCompile(`(message|detail|comment|note)\s*(field|input|area)?`), probes: []probe{
		{selector: `textarea`},
		{selector: `textarea[name="message"]`},
		{selector: `input[name="message"]`},
	}},
}

// inputProbes resolve input-like intents that the pattern table missed.
var inputProbes = []probe{ //nolint:gochecknoglobals // Fixed locator table
	{selector: `[role="searchbox"]`},
	{selector: `[role="textbox"]`},
	{selector: `input[placeholder*="search" i]`},
	{selector: `input[placeholder*="find" i]`},
	{selector: `input[placeholder*="query" i]`},
	{selector: `input[placeholder*="type to search" i]`},
	{selector: `input[placeholder*="what are you looking for" i]`},
	{selector: `[aria-label*="search" i]`},
	{selector: `input`},
	{selector: `textarea`},
}

// searchToggleSelectors are icons that reveal a hidden search input.
var searchToggleSelectors = []string{ //nolint:gochecknoglobals // Fixed locator table
	`button[aria-label*="earch" i]`,
	`a[aria-label*="earch" i]`,
	`[role="search"] button`,
	`.search-toggle`,
	`.search-icon`,
	`button.search`,
	`a.search`,
	`svg.search-icon`,
}

const buttonSelector = `button, [role="button"], input[type="submit"], input[type="button"]`

// stopWords are description words that describe the locating task rather
// than the element, so they are useless as text-search needles.
var stopWords = map[string]struct{}{ //nolint:gochecknoglobals // Fixed vocabulary
	"from": {}, "with": {}, "that": {}, "this": {}, "into": {}, "them": {},
	"first": {}, "click": {}, "open": {}, "find": {}, "page": {}, "button": {},
	"input": {}, "field": {}, "link": {}, "extract": {}, "search": {},
	"type": {}, "enter": {},
}

var (
	quotedRe      = regexp.MustCompile(`"([^"]+)"`)
	buttonNoiseRe = regexp.MustCompile(`\b(button|btn|click|press|the|a|an)\b`)
)

// textSearchJS collects elements whose own text contains the needle. Leafy
// tags only, so container elements don't swallow every match.
const textSearchJS = `(needle, max) => {
	const q = needle.toLowerCase();
	const els = document.querySelectorAll(
		'a, button, [role="button"], h1, h2, h3, h4, h5, p, li, span, label, td, th'
	);
	const out = [];
	for (const el of els) {
		const text = (el.innerText || el.textContent || '').trim().toLowerCase();
		if (!text || !text.includes(q)) continue;
		out.push(el);
		if (out.length >= max) break;
	}
	return out;
}`

// elementCensusJS mirrors the ai.ElementInfo field names so the evaluate
// result unmarshals directly.
const elementCensusJS = `() => {
	const els = document.querySelectorAll(
		'input, textarea, button, select, a, [role="button"], [role="searchbox"], [role="textbox"]'
	);
	return Array.from(els).slice(0, 30).map((el, i) => ({
		idx: i,
		tag: el.tagName.toLowerCase(),
		type: el.type || '',
		name: el.name || '',
		id: el.id || '',
		placeholder: el.placeholder || '',
		ariaLabel: el.getAttribute('aria-label') || '',
		className: (el.className || '').toString().substring(0, 80),
		visible: el.offsetWidth > 0 && el.offsetHeight > 0,
		text: (el.innerText || el.value || '').substring(0, 50),
	}));
}`

// honeypotAttrsJS reads the attributes the honeypot rules inspect. Regular
// function form so this binds to the element.
const honeypotAttrsJS = `function () {
	const rect = this.getBoundingClientRect ? this.getBoundingClientRect() : { width: 1, height: 1 };
	return {
		ariaHidden: this.getAttribute('aria-hidden') || '',
		tabIndex: this.tabIndex,
		className: (this.className || '').toString(),
		autocomplete: this.getAttribute('autocomplete') || '',
		width: (typeof this.offsetWidth === 'number') ? this.offsetWidth : rect.width,
		height: (typeof this.offsetHeight === 'number') ? this.offsetHeight : rect.height,
	};
}`

// honeypotAttrs is the decoded form of honeypotAttrsJS.
type honeypotAttrs struct {
	AriaHidden   string  `json:"ariaHidden"`
	TabIndex     int     `json:"tabIndex"`
	ClassName    string  `json:"className"`
	Autocomplete string  `json:"autocomplete"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
}

// FindElement resolves a natural-language target description to a visible,
// non-honeypot element. The action hint gates the last-resort fallbacks so a
// type step never lands on a link. When every DOM strategy fails, the page
// gets time to settle (plus a search-toggle click for search intents) and the
// cascade runs once more; the vision fallback is the final resort.
func (s *Session) FindElement(ctx context.Context, target string, action constants.Action) (*rod.Element, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if el := s.findInner(ctx, target, action); el != nil {
		return el, nil
	}

	// Late-rendering pages deserve a second pass.
	s.logger.Debug().Str("target", logging.SafeValue("target", target)).Msg("element not found, settling and retrying")
	s.WaitIdle(ctx, constants.ElementSettleTimeout)
	_ = ctxutil.Sleep(ctx, constants.ElementSettleDelay)

	if hasSearchIntent(target) {
		s.clickSearchToggle(ctx)
	}

	if el := s.findInner(ctx, target, action); el != nil {
		return el, nil
	}

	if el := s.findByVision(ctx, target, action); el != nil {
		return el, nil
	}

	return nil, errors.Wrapf(errors.ErrElementNotFound, "no element matched %q", target)
}

// findInner is one pass over the DOM strategies, in priority order.
func (s *Session) findInner(ctx context.Context, target string, action constants.Action) *rod.Element {
	desc := strings.TrimSpace(target)
	lower := strings.ToLower(desc)

	// 1. Pattern table.
	for _, entry := range selectorPatterns {
		if !entry.re.MatchString(lower) {
			continue
		}
		for _, pr := range entry.probes {
			if el := s.findVisible(ctx, pr); el != nil {
				return el
			}
		}
	}

	searchIntent := hasSearchIntent(lower)
	inputIntent := containsAny(lower, "input", "field", "text", "type", "enter", "search")
	buttonIntent := containsAny(lower, "button", "btn", "click", "submit", "press")
	linkIntent := containsAny(lower, "link", "result", "anchor")

	// 2. Role and placeholder probes for input-like intents.
	if searchIntent || inputIntent {
		for _, pr := range inputProbes {
			if el := s.findVisible(ctx, pr); el != nil {
				return el
			}
		}
	}

	// 3. Quoted literals name the element text directly.
	for _, quoted := range quotedLiterals(desc) {
		if el := s.findByText(ctx, quoted); el != nil {
			return el
		}
	}

	// 4. Buttons, by cleaned text first.
	if buttonIntent {
		if btnText := cleanButtonText(lower); btnText != "" {
			if el := s.findVisible(ctx, probe{selector: buttonSelector, text: btnText}); el != nil {
				return el
			}
		}
		if el := s.findVisible(ctx, probe{selector: `button`}); el != nil {
			return el
		}
	}

	// 5. Links.
	if linkIntent {
		if el := s.findVisible(ctx, probe{selector: `a`}); el != nil {
			return el
		}
	}

	// 6. Longest meaningful words from the description.
	for _, word := range meaningfulWords(desc) {
		if el := s.findByText(ctx, word); el != nil {
			return el
		}
	}

	// 7. Last resort, gated by the action.
	for _, sel := range actionFallbacks(action) {
		if el := s.findVisible(ctx, probe{selector: sel}); el != nil {
			return el
		}
	}

	return nil
}

// findVisible returns the first visible, non-honeypot element matching the
// probe, or nil. At most MaxLocatorMatches candidates are checked, each with
// a short timeout so one stale handle cannot stall the cascade.
func (s *Session) findVisible(ctx context.Context, pr probe) *rod.Element {
	p := s.page.Context(ctx)
	els, err := p.Elements(pr.selector)
	if err != nil {
		return nil
	}

	probed := 0
	for _, el := range els {
		if probed >= constants.MaxLocatorMatches {
			break
		}
		probeEl := el.Timeout(constants.ElementProbeTimeout)
		if pr.text != "" {
			txt, terr := probeEl.Text()
			if terr != nil || !strings.Contains(strings.ToLower(txt), pr.text) {
				continue
			}
		}
		probed++
		if visible, verr := probeEl.Visible(); verr != nil || !visible {
			continue
		}
		if rule := s.honeypotHeuristic(probeEl); rule != "" {
			s.logger.Debug().Str("selector", pr.selector).Str("rule", rule).Msg("honeypot rejected")
			continue
		}
		return el
	}
	return nil
}

// findByText locates an element by the text it renders.
func (s *Session) findByText(ctx context.Context, needle string) *rod.Element {
	p := s.page.Context(ctx)
	els, err := p.ElementsByJS(rod.Eval(textSearchJS, needle, constants.MaxLocatorMatches))
	if err != nil {
		return nil
	}
	for _, el := range els {
		probeEl := el.Timeout(constants.ElementProbeTimeout)
		if visible, verr := probeEl.Visible(); verr != nil || !visible {
			continue
		}
		if rule := s.honeypotHeuristic(probeEl); rule != "" {
			continue
		}
		return el
	}
	return nil
}

// findByVision is the final fallback: screenshot plus an element census go to
// the vision model, which answers with a CSS selector.
func (s *Session) findByVision(ctx context.Context, target string, action constants.Action) *rod.Element {
	if s.vision == nil || !s.vision.Available() || s.vision.Throttled() {
		return nil
	}

	png, err := s.screenshotPNG(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("vision fallback skipped, screenshot failed")
		return nil
	}
	census, err := s.elementCensus(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("vision fallback skipped, element census failed")
		return nil
	}

	pick, err := s.vision.PickElement(ctx, png, target, string(action), census)
	if err != nil || pick == nil || pick.Selector == "" {
		s.logger.Warn().Err(err).Str("target", logging.SafeValue("target", target)).Msg("vision fallback produced no selector")
		return nil
	}
	s.logger.Info().Str("selector", pick.Selector).Str("reason", pick.Reason).
		Msg("vision fallback suggested selector")

	if el := s.findVisible(ctx, probe{selector: pick.Selector}); el != nil {
		return el
	}

	// The model sees the rendered page, so trust its selector even when the
	// visibility probe disagrees.
	els, err := s.page.Context(ctx).Elements(pick.Selector)
	if err == nil && len(els) > 0 {
		return els[0]
	}
	return nil
}

// clickSearchToggle clicks the first visible search-reveal icon, then pauses
// so the revealed input can mount.
func (s *Session) clickSearchToggle(ctx context.Context) {
	for _, sel := range searchToggleSelectors {
		el := s.findVisible(ctx, probe{selector: sel})
		if el == nil {
			continue
		}
		if err := el.Timeout(constants.ToggleClickTimeout).Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		s.logger.Debug().Str("selector", sel).Msg("clicked search toggle")
		_ = ctxutil.Sleep(ctx, constants.SearchTogglePause)
		return
	}
}

// elementCensus collects up to 30 interactive elements for the vision prompt.
func (s *Session) elementCensus(ctx context.Context) ([]ai.ElementInfo, error) {
	res, err := s.page.Context(ctx).Eval(elementCensusJS)
	if err != nil {
		return nil, errors.Wrap(err, "element census")
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "element census")
	}
	var census []ai.ElementInfo
	if err := json.Unmarshal(raw, &census); err != nil {
		return nil, errors.Wrap(err, "element census")
	}
	return census, nil
}

// honeypotHeuristic returns the name of the first honeypot rule the element
// matches, or "" for a real element. Unreadable attributes count as real,
// matching the visibility probe's bias.
func (s *Session) honeypotHeuristic(el *rod.Element) string {
	res, err := el.Eval(honeypotAttrsJS)
	if err != nil {
		return ""
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return ""
	}
	var attrs honeypotAttrs
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return ""
	}
	return classifyHoneypot(attrs)
}

// classifyHoneypot applies the honeypot rules in order and names the first
// match: trap fields are invisible to users but present in the DOM, and
// filling or clicking one flags the session as a bot.
func classifyHoneypot(attrs honeypotAttrs) string {
	cls := strings.ToLower(attrs.ClassName)
	switch {
	case attrs.AriaHidden == "true":
		return "aria-hidden"
	case attrs.TabIndex == -1 && strings.Contains(cls, "hidden"):
		return "tabindex-hidden-class"
	case containsAny(cls, "visually-hidden", "sr-only", "hidden", "honeypot", "trap"):
		return "hidden-class-word"
	case attrs.Width < 2 || attrs.Height < 2:
		return "sub-2px-box"
	case attrs.Autocomplete == "off" && attrs.TabIndex == -1:
		return "autocomplete-off"
	default:
		return ""
	}
}

// hasSearchIntent reports whether a target description is search-like.
func hasSearchIntent(text string) bool {
	return containsAny(strings.ToLower(text), "search", "query", "find")
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// quotedLiterals pulls double-quoted phrases out of a description, e.g.
// `click "Apply Now"`.
func quotedLiterals(desc string) []string {
	matches := quotedRe.FindAllStringSubmatch(desc, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// cleanButtonText strips locator vocabulary from a description, leaving the
// words likely printed on the button itself.
func cleanButtonText(lower string) string {
	return strings.TrimSpace(buttonNoiseRe.ReplaceAllString(lower, ""))
}

// meaningfulWords returns up to three description words worth a text search,
// longest first. Short words and locator vocabulary are skipped.
func meaningfulWords(desc string) []string {
	var words []string
	for _, w := range strings.Fields(desc) {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[strings.ToLower(w)]; stop {
			continue
		}
		words = append(words, w)
	}
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	if len(words) > 3 {
		words = words[:3]
	}
	return words
}

// actionFallbacks is the last-resort selector list, gated by the step action
// so a type step only ever lands on something fillable.
func actionFallbacks(action constants.Action) []string {
	switch action {
	case constants.ActionType:
		return []string{`input`, `textarea`, `select`, `[contenteditable]`}
	case constants.ActionClick:
		return []string{`a`, `button`, `[role="button"]`}
	default:
		return []string{`a`, `button`, `input`}
	}
}
