package ai

import (
	"context"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// TestClient_Heal verifies fix decoding, including fenced model output.
func TestClient_Heal(t *testing.T) {
	t.Run("decodes a plain fix", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{
			{text: `{"fixed_target": "#login-btn", "fixed_value": "", "explanation": "The selector changed after a redesign"}`},
		}}
		c := newTestClient(t, mock, newStubClock())

		fix, err := c.Heal(context.Background(), "click", ".old-login", "Click the login button", "ElementNotFound: Could not locate '.old-login' on the page")
		require.NoError(t, err)
		assert.Equal(t, "#login-btn", fix.FixedTarget)
		assert.Empty(t, fix.FixedValue)
		assert.Equal(t, "The selector changed after a redesign", fix.Explanation)
	})

	t.Run("decodes a fenced fix", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{
			{text: "```json\n{\"fixed_target\": \"input[name=q]\", \"fixed_value\": \"golang\", \"explanation\": \"Use the name attribute\"}\n```"},
		}}
		c := newTestClient(t, mock, newStubClock())

		fix, err := c.Heal(context.Background(), "type", "#search", "Type the query", "TimeoutError")
		require.NoError(t, err)
		assert.Equal(t, "input[name=q]", fix.FixedTarget)
		assert.Equal(t, "golang", fix.FixedValue)
	})

	t.Run("malformed output is a parse error", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{{text: "I think you should use a different selector."}}}
		c := newTestClient(t, mock, newStubClock())

		_, err := c.Heal(context.Background(), "click", "#x", "desc", "err")
		require.ErrorIs(t, err, webrunerrors.ErrAIParse)
	})

	t.Run("throttled attempts are retried", func(t *testing.T) {
		stubSleep(t)

		mock := &mockRuntime{results: []mockResult{
			{err: throttleErr()},
			{text: `{"fixed_target": "#ok", "fixed_value": "", "explanation": "retried"}`},
		}}
		c := newTestClient(t, mock, newStubClock())

		fix, err := c.Heal(context.Background(), "click", "#x", "desc", "err")
		require.NoError(t, err)
		assert.Equal(t, "#ok", fix.FixedTarget)
		assert.Equal(t, 2, mock.callCount())
	})
}

// TestClient_StructureContent verifies extraction decoding and the top-level
// object contract.
func TestClient_StructureContent(t *testing.T) {
	t.Run("decodes structured data", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{
			{text: `{"products": [{"name": "Widget", "price": "$9.99"}], "total": 1}`},
		}}
		c := newTestClient(t, mock, newStubClock())

		data, err := c.StructureContent(context.Background(), "Shop", "https://shop.test", "Widget $9.99", "extract products", "")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, data["total"], 0.0001)
		assert.Contains(t, data, "products")
	})

	t.Run("top-level array is a parse error", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{{text: `[{"name": "Widget"}]`}}}
		c := newTestClient(t, mock, newStubClock())

		_, err := c.StructureContent(context.Background(), "Shop", "https://shop.test", "text", "desc", "")
		require.ErrorIs(t, err, webrunerrors.ErrAIParse)
	})
}

// TestClient_GenerateExtract verifies synthesis from prior step context.
func TestClient_GenerateExtract(t *testing.T) {
	mock := &mockRuntime{results: []mockResult{
		{text: `{"items_extracted": 3, "content": []}`},
	}}
	c := newTestClient(t, mock, newStubClock())

	ctxLines := []string{"Step 1 (navigate): Open the store", "  Result: {\"url\": \"https://shop.test\"}"}
	data, err := c.GenerateExtract(context.Background(), ctxLines, "extract products", "")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, data["items_extracted"], 0.0001)

	prompt := promptText(t, mock)
	assert.Contains(t, prompt, "Step 1 (navigate): Open the store")
	assert.Contains(t, prompt, "extract products")
}

// TestClient_EvaluateCondition verifies verdict decoding.
func TestClient_EvaluateCondition(t *testing.T) {
	t.Run("true verdict", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{
			{text: `{"evaluated_to": true, "reason": "items_extracted is 12, above the threshold"}`},
		}}
		c := newTestClient(t, mock, newStubClock())

		verdict, err := c.EvaluateCondition(context.Background(), "items_extracted > 5", `{"items_extracted": 12}`)
		require.NoError(t, err)
		assert.True(t, verdict.EvaluatedTo)
		assert.Equal(t, "items_extracted is 12, above the threshold", verdict.Reason)
	})

	t.Run("false verdict", func(t *testing.T) {
		mock := &mockRuntime{results: []mockResult{
			{text: `{"evaluated_to": false, "reason": "no data present"}`},
		}}
		c := newTestClient(t, mock, newStubClock())

		verdict, err := c.EvaluateCondition(context.Background(), "results exist", `{}`)
		require.NoError(t, err)
		assert.False(t, verdict.EvaluatedTo)
	})
}

// TestClient_PickElement verifies the vision locate call carries the
// screenshot and decodes the selector choice.
func TestClient_PickElement(t *testing.T) {
	mock := &mockRuntime{results: []mockResult{
		{text: `{"selector": "textarea[name=q]", "reason": "Primary search box"}`},
	}}
	c := newTestClient(t, mock, newStubClock())

	elements := []ElementInfo{
		{Idx: 0, Tag: "textarea", Name: "q", Visible: true, Text: ""},
		{Idx: 1, Tag: "input", Type: "hidden", Visible: false},
	}
	pick, err := c.PickElement(context.Background(), []byte{0x89}, "search box", "type", elements)
	require.NoError(t, err)
	assert.Equal(t, "textarea[name=q]", pick.Selector)
	assert.Equal(t, "Primary search box", pick.Reason)

	content := mock.lastInput().Messages[0].Content
	require.Len(t, content, 2, "vision call should carry image plus prompt")
}

// TestClient_SummarizeRun verifies free-text summaries are trimmed.
func TestClient_SummarizeRun(t *testing.T) {
	mock := &mockRuntime{results: []mockResult{
		{text: "\nThe run extracted 12 products from the storefront.  \n"},
	}}
	c := newTestClient(t, mock, newStubClock())

	out, err := c.SummarizeRun(context.Background(), "Price Monitor", "completed", 4, 4, []string{"Step 1 (navigate): ok"})
	require.NoError(t, err)
	assert.Equal(t, "The run extracted 12 products from the storefront.", out)
}

// TestClient_SuggestFix verifies free-text suggestions are trimmed and the
// prompt carries the failure details.
func TestClient_SuggestFix(t *testing.T) {
	mock := &mockRuntime{results: []mockResult{
		{text: "  Root cause: the selector is stale.\n"},
	}}
	c := newTestClient(t, mock, newStubClock())

	out, err := c.SuggestFix(context.Background(), "click", "Press checkout", "#checkout", "ElementNotFound: Could not locate '#checkout' on the page")
	require.NoError(t, err)
	assert.Equal(t, "Root cause: the selector is stale.", out)

	prompt := promptText(t, mock)
	assert.Contains(t, prompt, "Press checkout")
	assert.Contains(t, prompt, "#checkout")
}

// TestStaticSuggestion verifies the canned advice table and its
// case-insensitive matching.
func TestStaticSuggestion(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   string
	}{
		{
			name:   "element not found",
			errMsg: "ElementNotFound: Could not locate '#q' on the page",
			want:   staticSuggestions["ElementNotFound"],
		},
		{
			name:   "timeout",
			errMsg: "TimeoutError: navigation exceeded 30s",
			want:   staticSuggestions["TimeoutError"],
		},
		{
			name:   "access denied",
			errMsg: "AccessDenied: login required",
			want:   staticSuggestions["AccessDenied"],
		},
		{
			name:   "element obscured",
			errMsg: "ElementObscured: overlay intercepts pointer events",
			want:   staticSuggestions["ElementObscured"],
		},
		{
			name:   "element disabled",
			errMsg: "ElementDisabled: submit is not enabled",
			want:   staticSuggestions["ElementDisabled"],
		},
		{
			name:   "stale element",
			errMsg: "StaleElement: node detached",
			want:   staticSuggestions["StaleElement"],
		},
		{
			name:   "parse error",
			errMsg: "ParseError: no rows matched",
			want:   staticSuggestions["ParseError"],
		},
		{
			name:   "case insensitive match",
			errMsg: "elementnotfound: lowercase variant",
			want:   staticSuggestions["ElementNotFound"],
		},
		{
			name:   "unknown error falls back",
			errMsg: "something unexpected happened",
			want:   defaultSuggestion,
		},
		{
			name:   "empty message falls back",
			errMsg: "",
			want:   defaultSuggestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StaticSuggestion(tt.errMsg))
		})
	}
}

// promptText extracts the text block from the last captured request.
func promptText(t *testing.T, mock *mockRuntime) string {
	t.Helper()

	input := mock.lastInput()
	require.NotNil(t, input)
	require.NotEmpty(t, input.Messages)
	for _, block := range input.Messages[0].Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			return text.Value
		}
	}
	return ""
}
