package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/logging"
)

// placeholderRE matches {{name}} occurrences. The name may carry whitespace,
// which is trimmed before lookup.
var placeholderRE = regexp.MustCompile(`\{\{(.+?)\}\}`)

// interpolate substitutes {{name}} placeholders from the workflow's variable
// map. Placeholders naming an absent variable are left verbatim.
func interpolate(s string, vars map[string]domain.Variable) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	return placeholderRE.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := vars[name]
		if !ok {
			return match
		}
		return v.Value
	})
}

// materializeSteps copies the workflow's step definitions into per-run Step
// records, substituting variables into target, value, description, and
// condition. The workflow definition itself is never mutated; self-heal
// rewrites land on these records only.
func materializeSteps(runID string, wf *domain.Workflow, now time.Time) []*domain.Step {
	records := make([]*domain.Step, 0, len(wf.Steps))
	for i := range wf.Steps {
		def := &wf.Steps[i]
		records = append(records, &domain.Step{
			ID:          uuid.NewString(),
			RunID:       runID,
			StepNumber:  def.StepNumber,
			Action:      def.Action,
			Target:      interpolate(def.Target, wf.Variables),
			Value:       interpolate(def.Value, wf.Variables),
			Description: interpolate(def.Description, wf.Variables),
			Condition:   interpolate(def.Condition, wf.Variables),
			Status:      constants.StepStatusPending,
			CreatedAt:   now,
		})
	}
	return records
}

// registerSecrets teaches the log redaction filter every secret variable
// value, so interpolated step fields never leak secrets into log output.
func registerSecrets(vars map[string]domain.Variable) {
	for _, v := range vars {
		if v.Secret && v.Value != "" {
			logging.RegisterSecret(v.Value)
		}
	}
}
