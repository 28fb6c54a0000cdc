package steps

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// mockSession scripts the live-browser surface and captures call arguments
// for assertions.
type mockSession struct {
	navigateResult *domain.NavigateResult
	navigateErr    error
	clickResult    *domain.ClickResult
	clickErr       error
	typeResult     *domain.TypeResult
	typeErr        error
	harvestRaw     *browser.RawContent
	harvestErr     error
	currentURL     string

	navigateTarget string
	clickTarget    string
	typeTarget     string
	typeValue      string
	typeDesc       string
	idleLimit      time.Duration
	idleCalls      int
	harvestCalls   int
}

func (m *mockSession) Navigate(_ context.Context, rawURL string) (*domain.NavigateResult, error) {
	m.navigateTarget = rawURL
	return m.navigateResult, m.navigateErr
}

func (m *mockSession) ClickElement(_ context.Context, target string) (*domain.ClickResult, error) {
	m.clickTarget = target
	return m.clickResult, m.clickErr
}

func (m *mockSession) TypeText(_ context.Context, target, value, description string) (*domain.TypeResult, error) {
	m.typeTarget = target
	m.typeValue = value
	m.typeDesc = description
	return m.typeResult, m.typeErr
}

func (m *mockSession) Harvest(_ context.Context) (*browser.RawContent, error) {
	m.harvestCalls++
	return m.harvestRaw, m.harvestErr
}

func (m *mockSession) WaitIdle(_ context.Context, limit time.Duration) {
	m.idleCalls++
	m.idleLimit = limit
}

func (m *mockSession) CurrentURL(_ context.Context) string {
	return m.currentURL
}

// mockAssistant scripts the model surface and captures call arguments.
type mockAssistant struct {
	available bool

	structureResult map[string]any
	structureErr    error
	generateResult  map[string]any
	generateErr     error
	verdict         *ai.ConditionalVerdict
	verdictErr      error

	structureCalls int
	generateCalls  int
	verdictCalls   int
	lastPageTitle  string
	lastPageText   string
	lastContext    []string
	lastCondition  string
	lastPrevJSON   string
}

func (m *mockAssistant) Available() bool {
	return m.available
}

func (m *mockAssistant) StructureContent(_ context.Context, pageTitle, _, pageText, _, _ string) (map[string]any, error) {
	m.structureCalls++
	m.lastPageTitle = pageTitle
	m.lastPageText = pageText
	return m.structureResult, m.structureErr
}

func (m *mockAssistant) GenerateExtract(_ context.Context, contextLines []string, _, _ string) (map[string]any, error) {
	m.generateCalls++
	m.lastContext = contextLines
	return m.generateResult, m.generateErr
}

func (m *mockAssistant) EvaluateCondition(_ context.Context, condition, prevDataJSON string) (*ai.ConditionalVerdict, error) {
	m.verdictCalls++
	m.lastCondition = condition
	m.lastPrevJSON = prevDataJSON
	return m.verdict, m.verdictErr
}

// sleepRecorder captures the durations handed to the stubbed timeSleep.
type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

// stubSleep replaces timeSleep with a recorder that returns immediately and
// restores the original on cleanup.
func stubSleep(t *testing.T) *sleepRecorder {
	t.Helper()

	rec := &sleepRecorder{}
	original := timeSleep
	timeSleep = func(ctx context.Context, d time.Duration) error {
		rec.mu.Lock()
		rec.slept = append(rec.slept, d)
		rec.mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { timeSleep = original })
	return rec
}

// newStep builds a pending step with the given action.
func newStep(action constants.Action) *domain.Step {
	return &domain.Step{
		ID:         "step-1",
		RunID:      "run-1",
		StepNumber: 1,
		Action:     action,
		Status:     constants.StepStatusPending,
	}
}

// completedStep builds a completed history entry.
func completedStep(number int, action constants.Action, description, resultData string) *domain.Step {
	return &domain.Step{
		ID:          "step-hist",
		RunID:       "run-1",
		StepNumber:  number,
		Action:      action,
		Description: description,
		Status:      constants.StepStatusCompleted,
		ResultData:  resultData,
	}
}
