package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// TestInterpolate verifies placeholder substitution against the workflow's
// variable map.
func TestInterpolate(t *testing.T) {
	vars := map[string]domain.Variable{
		"base_url": {Value: "https://demo.example.com"},
		"user":     {Value: "alice"},
		"password": {Value: "hunter2", Secret: true},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single placeholder", in: "{{base_url}}/login", want: "https://demo.example.com/login"},
		{name: "multiple placeholders", in: "{{user}}:{{password}}", want: "alice:hunter2"},
		{name: "whitespace inside braces", in: "{{ user }}", want: "alice"},
		{name: "unknown variable kept verbatim", in: "{{missing}}/x", want: "{{missing}}/x"},
		{name: "no placeholders", in: "plain text", want: "plain text"},
		{name: "empty string", in: "", want: ""},
		{name: "adjacent placeholders", in: "{{user}}{{user}}", want: "alicealice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interpolate(tt.in, vars))
		})
	}
}

// TestInterpolateNoVariables verifies input passes through untouched when
// the workflow defines no variables.
func TestInterpolateNoVariables(t *testing.T) {
	assert.Equal(t, "{{user}}", interpolate("{{user}}", nil))
}

// TestMaterializeSteps verifies workflow definitions become pending step
// records with interpolated fields and the source workflow stays intact.
func TestMaterializeSteps(t *testing.T) {
	wf := &domain.Workflow{
		ID:   "wf-1",
		Name: "login check",
		Variables: map[string]domain.Variable{
			"base_url": {Value: "https://demo.example.com"},
			"user":     {Value: "alice"},
		},
		Steps: []domain.StepDefinition{
			{StepNumber: 1, Action: constants.ActionNavigate, Target: "{{base_url}}/login", Description: "open {{base_url}}"},
			{StepNumber: 2, Action: constants.ActionType, Target: "username field", Value: "{{user}}"},
			{StepNumber: 3, Action: constants.ActionConditional, Condition: "user {{user}} is logged in"},
		},
	}

	now := time.Now().UTC()
	records := materializeSteps("run-1", wf, now)
	require.Len(t, records, 3)

	ids := make(map[string]bool, len(records))
	for i, step := range records {
		assert.NotEmpty(t, step.ID)
		assert.False(t, ids[step.ID], "step IDs must be unique")
		ids[step.ID] = true

		assert.Equal(t, "run-1", step.RunID)
		assert.Equal(t, wf.Steps[i].StepNumber, step.StepNumber)
		assert.Equal(t, wf.Steps[i].Action, step.Action)
		assert.Equal(t, constants.StepStatusPending, step.Status)
		assert.Equal(t, now, step.CreatedAt)
	}

	assert.Equal(t, "https://demo.example.com/login", records[0].Target)
	assert.Equal(t, "open https://demo.example.com", records[0].Description)
	assert.Equal(t, "alice", records[1].Value)
	assert.Equal(t, "user alice is logged in", records[2].Condition)

	// The definitions keep their placeholders.
	assert.Equal(t, "{{base_url}}/login", wf.Steps[0].Target)
	assert.Equal(t, "{{user}}", wf.Steps[1].Value)
}
