package steps

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
)

// defaultAIReason fills the verdict reason when the model omits one.
const defaultAIReason = "Evaluated by AI"

// prevDataPromptCap bounds the previous-result JSON handed to the model.
const prevDataPromptCap = 500

// ConditionalExecutor handles conditional steps: it evaluates the step's
// expression against the most recent completed step's result and reports
// which branch the run takes. The AI evaluates when available; a live run
// falls back to rule-based evaluation, a dark one to a simulated verdict.
type ConditionalExecutor struct{}

// NewConditionalExecutor creates a new conditional executor.
func NewConditionalExecutor() *ConditionalExecutor {
	return &ConditionalExecutor{}
}

// Execute evaluates the step's condition.
func (e *ConditionalExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (any, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	condition := step.Condition
	if condition == "" {
		condition = step.Target
	}
	if condition == "" {
		condition = "true"
	}
	prevJSON := prevCompletedData(rc.History)

	if rc.aiUsable() {
		verdict, err := rc.AI.EvaluateCondition(ctx, condition, clip(prevJSON, prevDataPromptCap))
		if err == nil {
			reason := verdict.Reason
			if reason == "" {
				reason = defaultAIReason
			}
			return &domain.ConditionalResult{
				Expression:  condition,
				EvaluatedTo: verdict.EvaluatedTo,
				BranchTaken: branchFor(verdict.EvaluatedTo),
				Reason:      reason,
				AIPowered:   true,
				Live:        true,
			}, nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).
			Int("step_number", step.StepNumber).
			Msg("condition evaluation via model failed, using rules")
		if cerr := ctxutil.Canceled(ctx); cerr != nil {
			return nil, cerr
		}
	}

	if rc.Live() {
		evaluated := evalCondition(condition, decodeResult(prevJSON))
		return &domain.ConditionalResult{
			Expression:  condition,
			EvaluatedTo: evaluated,
			BranchTaken: branchFor(evaluated),
			Live:        true,
		}, nil
	}

	return simulateConditional(ctx, condition)
}

// Action returns the workflow action this executor handles.
func (e *ConditionalExecutor) Action() constants.Action {
	return constants.ActionConditional
}

// branchFor maps a verdict to the branch the run takes.
func branchFor(evaluated bool) string {
	if evaluated {
		return domain.BranchContinue
	}
	return domain.BranchSkipNext
}

// conditionDataKeys are the result fields whose presence marks the previous
// step as having produced data.
var conditionDataKeys = []string{
	"content", "items_extracted", "products", "articles",
	"profiles", "results", "posts", "tables",
}

// conditionQualityWords are the expression keywords that tie the verdict to
// data presence.
var conditionQualityWords = []string{"valid", "exists", "found", "quality", "success"}

var conditionNumberRE = regexp.MustCompile(`\d+`)

// evalCondition is the rule-based fallback. A previous step that produced
// data makes the condition true, except that an expression carrying two
// numbers and a comparison operator is read as a literal first>second
// check. Quality keywords tie the verdict to data presence; anything else
// defaults to true so runs keep moving.
func evalCondition(condition string, prevData map[string]any) bool {
	for _, k := range conditionDataKeys {
		if _, ok := prevData[k]; !ok {
			continue
		}
		if strings.ContainsAny(condition, "<>") {
			if nums := conditionNumberRE.FindAllString(condition, -1); len(nums) >= 2 {
				first, errA := strconv.Atoi(nums[0])
				second, errB := strconv.Atoi(nums[1])
				if errA == nil && errB == nil {
					return first > second
				}
			}
		}
		return true
	}

	lower := strings.ToLower(condition)
	for _, w := range conditionQualityWords {
		if strings.Contains(lower, w) {
			return len(prevData) > 0
		}
	}
	return true
}

// decodeResult parses a step's result JSON into a map, returning nil on
// absent or malformed data.
func decodeResult(data string) map[string]any {
	if data == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil
	}
	return m
}
