package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubClock is a Clock whose current time only moves when a test advances it.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
}

// Now returns the stubbed instant.
func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the elapsed time from t to the stubbed instant.
func (c *stubClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the stubbed instant forward by d.
func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockResult scripts one Converse response.
type mockResult struct {
	text string
	err  error
}

// mockRuntime is a RuntimeAPI that replays scripted results and captures the
// last request for assertions. The final result repeats once the script is
// exhausted.
type mockRuntime struct {
	mu       sync.Mutex
	results  []mockResult
	calls    int
	captured *bedrockruntime.ConverseInput
}

func (m *mockRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captured = params

	idx := m.calls
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	m.calls++

	res := m.results[idx]
	if res.err != nil {
		return nil, res.err
	}
	return textResponse(res.text), nil
}

func (m *mockRuntime) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockRuntime) lastInput() *bedrockruntime.ConverseInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captured
}

// textResponse builds a Converse output carrying a single text block.
func textResponse(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
	}
}

// throttleErr fabricates the provider error shape Bedrock returns when it
// rate-limits a caller.
func throttleErr() error {
	return &smithy.GenericAPIError{Code: "ThrottlingException", Message: "too many requests"}
}

// newTestClient builds a Client over the mock runtime. All tests in this
// package use mocks; no real provider calls are made.
func newTestClient(t *testing.T, runtime *mockRuntime, clk *stubClock) *Client {
	t.Helper()

	c, err := NewWithRuntime(runtime, Options{
		ModelID:     "amazon.nova-lite-v1:0",
		MaxTokens:   1024,
		Temperature: 0.3,
		Clock:       clk,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

// stubSleep replaces timeSleep with a channel that fires immediately and
// restores the original on cleanup.
func stubSleep(t *testing.T) {
	t.Helper()

	originalSleep := timeSleep
	timeSleep = func(_ interface{ Nanoseconds() int64 }) <-chan time.Time {
		ch := make(chan time.Time)
		close(ch)
		return ch
	}
	t.Cleanup(func() { timeSleep = originalSleep })
}
