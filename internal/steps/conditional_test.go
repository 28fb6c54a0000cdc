package steps

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// TestConditionalAIVerdict verifies the model's verdict drives the branch
// and the record carries the reasoning.
func TestConditionalAIVerdict(t *testing.T) {
	assistant := &mockAssistant{
		available: true,
		verdict:   &ai.ConditionalVerdict{EvaluatedTo: false, Reason: "only two results found"},
	}
	rc := &RunContext{
		AI: assistant,
		History: []*domain.Step{
			completedStep(1, constants.ActionExtract, "Collect results", `{"results":[1,2]}`),
		},
	}

	step := newStep(constants.ActionConditional)
	step.Condition = "more than 5 results"

	got, err := NewConditionalExecutor().Execute(context.Background(), rc, step)
	require.NoError(t, err)

	result, ok := got.(*domain.ConditionalResult)
	require.True(t, ok)
	assert.Equal(t, "more than 5 results", result.Expression)
	assert.False(t, result.EvaluatedTo)
	assert.Equal(t, domain.BranchSkipNext, result.BranchTaken)
	assert.Equal(t, "only two results found", result.Reason)
	assert.True(t, result.AIPowered)
	assert.True(t, result.Live)

	assert.Equal(t, "more than 5 results", assistant.lastCondition)
	assert.Equal(t, `{"results":[1,2]}`, assistant.lastPrevJSON)
}

// TestConditionalAIDefaultReason verifies an omitted reason is filled in.
func TestConditionalAIDefaultReason(t *testing.T) {
	assistant := &mockAssistant{
		available: true,
		verdict:   &ai.ConditionalVerdict{EvaluatedTo: true},
	}
	rc := &RunContext{AI: assistant}

	got, err := NewConditionalExecutor().Execute(context.Background(), rc, newStep(constants.ActionConditional))
	require.NoError(t, err)

	result := got.(*domain.ConditionalResult)
	assert.True(t, result.EvaluatedTo)
	assert.Equal(t, domain.BranchContinue, result.BranchTaken)
	assert.Equal(t, "Evaluated by AI", result.Reason)
}

// TestConditionalPrevDataClipped verifies the previous-result JSON handed
// to the model is bounded.
func TestConditionalPrevDataClipped(t *testing.T) {
	assistant := &mockAssistant{
		available: true,
		verdict:   &ai.ConditionalVerdict{EvaluatedTo: true, Reason: "ok"},
	}
	long := `{"content":"` + strings.Repeat("x", 900) + `"}`
	rc := &RunContext{
		AI:      assistant,
		History: []*domain.Step{completedStep(1, constants.ActionExtract, "big", long)},
	}

	_, err := NewConditionalExecutor().Execute(context.Background(), rc, newStep(constants.ActionConditional))
	require.NoError(t, err)
	assert.Len(t, assistant.lastPrevJSON, 500)
}

// TestConditionalAIFailureFallsBackToRules verifies a live run degrades to
// rule-based evaluation when the model errs.
func TestConditionalAIFailureFallsBackToRules(t *testing.T) {
	assistant := &mockAssistant{available: true, verdictErr: webrunerrors.ErrAIParse}
	rc := &RunContext{
		Session: &mockSession{},
		AI:      assistant,
		History: []*domain.Step{
			completedStep(1, constants.ActionExtract, "Collect", `{"results":[1,2,3]}`),
		},
	}

	step := newStep(constants.ActionConditional)
	step.Condition = "results found"

	got, err := NewConditionalExecutor().Execute(context.Background(), rc, step)
	require.NoError(t, err)

	result := got.(*domain.ConditionalResult)
	assert.True(t, result.EvaluatedTo)
	assert.Equal(t, domain.BranchContinue, result.BranchTaken)
	assert.True(t, result.Live)
	assert.False(t, result.AIPowered)
	assert.Empty(t, result.Reason)
}

// TestConditionalRuleComparison verifies a live run without a model reads
// numeric comparisons literally.
func TestConditionalRuleComparison(t *testing.T) {
	rc := &RunContext{
		Session: &mockSession{},
		History: []*domain.Step{
			completedStep(1, constants.ActionExtract, "Collect", `{"items_extracted":12}`),
		},
	}

	step := newStep(constants.ActionConditional)
	step.Condition = "3 > 5"

	got, err := NewConditionalExecutor().Execute(context.Background(), rc, step)
	require.NoError(t, err)

	result := got.(*domain.ConditionalResult)
	assert.False(t, result.EvaluatedTo)
	assert.Equal(t, domain.BranchSkipNext, result.BranchTaken)
	assert.True(t, result.Live)
}

// TestConditionalExpressionFallbacks verifies condition resolution order:
// condition field, then target, then the literal "true".
func TestConditionalExpressionFallbacks(t *testing.T) {
	stubSleep(t)

	t.Run("target stands in for condition", func(t *testing.T) {
		step := newStep(constants.ActionConditional)
		step.Target = "page has content"

		got, err := NewConditionalExecutor().Execute(context.Background(), &RunContext{}, step)
		require.NoError(t, err)
		assert.Equal(t, "page has content", got.(*domain.ConditionalResult).Expression)
	})

	t.Run("bare step defaults to true", func(t *testing.T) {
		got, err := NewConditionalExecutor().Execute(context.Background(), &RunContext{}, newStep(constants.ActionConditional))
		require.NoError(t, err)
		assert.Equal(t, "true", got.(*domain.ConditionalResult).Expression)
	})
}

// TestConditionalSimulated verifies a dark run's verdict always continues.
func TestConditionalSimulated(t *testing.T) {
	rec := stubSleep(t)

	step := newStep(constants.ActionConditional)
	step.Condition = "results are valid"

	got, err := NewConditionalExecutor().Execute(context.Background(), &RunContext{}, step)
	require.NoError(t, err)

	result := got.(*domain.ConditionalResult)
	assert.Equal(t, "results are valid", result.Expression)
	assert.True(t, result.EvaluatedTo)
	assert.Equal(t, domain.BranchContinue, result.BranchTaken)
	assert.True(t, result.Simulated)
	assert.False(t, result.Live)

	require.Len(t, rec.durations(), 1)
}

// TestEvalCondition verifies the rule matrix: data presence, literal
// comparisons and quality keywords.
func TestEvalCondition(t *testing.T) {
	withData := map[string]any{"results": []any{"a"}, "items_extracted": float64(3)}

	tests := []struct {
		name      string
		condition string
		prevData  map[string]any
		want      bool
	}{
		{
			name:      "data present defaults true",
			condition: "page loaded",
			prevData:  withData,
			want:      true,
		},
		{
			name:      "comparison true",
			condition: "12 > 5 items",
			prevData:  withData,
			want:      true,
		},
		{
			name:      "comparison false",
			condition: "3 > 5",
			prevData:  withData,
			want:      false,
		},
		{
			name:      "less-than still compares first against second",
			condition: "7 < 2",
			prevData:  withData,
			want:      true,
		},
		{
			name:      "single number comparison defaults true",
			condition: "more than 5 results",
			prevData:  withData,
			want:      true,
		},
		{
			name:      "operator with one number defaults true",
			condition: "count > 5",
			prevData:  withData,
			want:      true,
		},
		{
			name:      "quality keyword with data",
			condition: "extraction is valid",
			prevData:  map[string]any{"anything": 1},
			want:      true,
		},
		{
			name:      "quality keyword without data",
			condition: "extraction is valid",
			prevData:  nil,
			want:      false,
		},
		{
			name:      "success keyword without data",
			condition: "Success achieved",
			prevData:  map[string]any{},
			want:      false,
		},
		{
			name:      "no keywords no data defaults true",
			condition: "continue anyway",
			prevData:  nil,
			want:      true,
		},
		{
			name:      "nested data key does not arm the comparison",
			condition: "3 > 5",
			prevData:  map[string]any{"other": map[string]any{"results": 1}},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalCondition(tt.condition, tt.prevData))
		})
	}
}

// TestDecodeResult verifies result JSON parsing tolerates absent and
// malformed data.
func TestDecodeResult(t *testing.T) {
	assert.Nil(t, decodeResult(""))
	assert.Nil(t, decodeResult("{broken"))
	assert.Nil(t, decodeResult(`[1,2,3]`))

	m := decodeResult(`{"results":[1]}`)
	require.NotNil(t, m)
	assert.Contains(t, m, "results")
}

// TestPrevCompletedData verifies the most recent completed step's result is
// picked over later non-completed steps.
func TestPrevCompletedData(t *testing.T) {
	history := []*domain.Step{
		completedStep(1, constants.ActionNavigate, "open", `{"url":"a"}`),
		completedStep(2, constants.ActionExtract, "collect", `{"results":[1]}`),
		{StepNumber: 3, Action: constants.ActionClick, Status: constants.StepStatusFailed, ResultData: `{"ignored":true}`},
		{StepNumber: 4, Action: constants.ActionWait, Status: constants.StepStatusSkipped},
	}

	assert.Equal(t, `{"results":[1]}`, prevCompletedData(history))
	assert.Empty(t, prevCompletedData(nil))
	assert.Empty(t, prevCompletedData([]*domain.Step{
		{StepNumber: 1, Status: constants.StepStatusFailed},
	}))
}
