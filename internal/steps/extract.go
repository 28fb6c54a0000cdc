package steps

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// ExtractExecutor handles extract steps. Backend order: harvest the live
// page and structure it (AI first, local normalizer as the quiet fallback);
// with no page, ask the AI to generate data from run context; as a last
// resort return a simulated extraction.
type ExtractExecutor struct{}

// NewExtractExecutor creates a new extract executor.
func NewExtractExecutor() *ExtractExecutor {
	return &ExtractExecutor{}
}

// Execute pulls structured data out of the current page.
func (e *ExtractExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)

	if rc.Live() {
		raw, err := rc.Session.Harvest(ctx)
		if err == nil {
			return e.structure(ctx, rc, raw, step), nil
		}
		log.Warn().Err(err).
			Int("step_number", step.StepNumber).
			Msg("page harvest failed, trying next backend")
		if cerr := ctxutil.Canceled(ctx); cerr != nil {
			return nil, cerr
		}
	}

	if rc.aiUsable() {
		m, err := rc.AI.GenerateExtract(ctx, extractContext(rc.History), step.Description, step.Target)
		if err == nil {
			return m, nil
		}
		log.Warn().Err(err).
			Int("step_number", step.StepNumber).
			Msg("generative extraction failed, trying next backend")
		if cerr := ctxutil.Canceled(ctx); cerr != nil {
			return nil, cerr
		}
	}

	return simulateExtract(ctx, step)
}

// structure shapes harvested content, preferring the AI and falling back to
// the local normalizer. The record always carries the live source URL.
func (e *ExtractExecutor) structure(ctx context.Context, rc *RunContext, raw *browser.RawContent, step *domain.Step) map[string]any {
	if rc.aiUsable() {
		m, err := rc.AI.StructureContent(ctx, raw.PageTitle, raw.URL, browser.PageText(raw), step.Description, step.Target)
		if err == nil {
			if m == nil {
				m = make(map[string]any)
			}
			m["live"] = true
			m["source_url"] = raw.URL
			return m
		}
		zerolog.Ctx(ctx).Warn().Err(err).
			Int("step_number", step.StepNumber).
			Msg("content structuring failed, using local normalizer")
	}

	m := resultMap(browser.Normalize(raw, step.Description, step.Target))
	m["live"] = true
	m["source_url"] = raw.URL
	return m
}

// Action returns the workflow action this executor handles.
func (e *ExtractExecutor) Action() constants.Action {
	return constants.ActionExtract
}

// resultMap converts a typed result record into a generic map so extra keys
// can be attached before marshaling.
func resultMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return make(map[string]any)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return make(map[string]any)
	}
	return m
}
