// Package ai provides the Bedrock-backed model client used for element
// location, content structuring, conditional evaluation, self-healing and
// run summaries.
//
// The client carries a throttle gate: when the provider rate-limits a call,
// every subsequent call fails fast with ErrThrottled until the backoff window
// expires. Callers that can degrade (extraction, conditionals, healing) check
// Available() and fall back to local logic instead of queueing work behind a
// gated client.
package ai

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"

	"github.com/webrunhq/webrun/internal/clock"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/errors"
)

// RuntimeAPI mirrors the subset of the AWS Bedrock runtime client required by
// webrun. It matches *bedrockruntime.Client so callers can pass either the
// real client or a mock in tests.
type RuntimeAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures a Client.
type Options struct {
	// Runtime provides access to the Bedrock runtime. Required.
	Runtime RuntimeAPI

	// ModelID is the text model identifier. Required.
	ModelID string

	// VisionModelID is the multimodal model identifier. Falls back to ModelID
	// when empty.
	VisionModelID string

	// MaxTokens is the default completion cap for calls that do not set their
	// own budget.
	MaxTokens int

	// Temperature is applied to every call.
	Temperature float32

	// ThrottleBackoff is how long the gate stays closed after a rate limit.
	ThrottleBackoff time.Duration

	// MaxRetryAttempts bounds InvokeWithRetry.
	MaxRetryAttempts int

	// Clock drives the throttle gate. Defaults to the system clock.
	Clock clock.Clock

	// Logger is used for call diagnostics. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// Client invokes Bedrock models through the Converse API.
type Client struct {
	runtime       RuntimeAPI
	modelID       string
	visionModelID string
	maxTokens     int
	temperature   float32
	backoff       time.Duration
	maxAttempts   int
	clk           clock.Clock
	logger        zerolog.Logger

	// throttledUntil holds the unix-nano timestamp when the gate reopens.
	// Zero means not throttled.
	throttledUntil atomic.Int64
}

// New constructs a Client from application configuration, loading AWS
// credentials from the environment. Returns nil without error when AI is
// disabled so callers can carry a nil-checked client.
func New(ctx context.Context, cfg *config.AIConfig, logger zerolog.Logger) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return NewWithRuntime(bedrockruntime.NewFromConfig(awsCfg), Options{
		ModelID:          cfg.ModelID,
		VisionModelID:    cfg.VisionModelID,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      float32(cfg.Temperature),
		ThrottleBackoff:  cfg.ThrottleBackoff,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		Logger:           logger,
	})
}

// NewWithRuntime constructs a Client over an existing runtime. Used by New
// and by tests that substitute a mock runtime.
func NewWithRuntime(runtime RuntimeAPI, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.Wrap(errors.ErrAIUnavailable, "bedrock runtime client is required")
	}
	if opts.ModelID == "" {
		return nil, errors.Wrap(errors.ErrConfigInvalidAI, "model identifier is required")
	}
	if opts.VisionModelID == "" {
		opts.VisionModelID = opts.ModelID
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = constants.AIDefaultMaxTokens
	}
	if opts.ThrottleBackoff <= 0 {
		opts.ThrottleBackoff = constants.AIThrottleBackoff
	}
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = constants.AIMaxRetryAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	return &Client{
		runtime:       runtime,
		modelID:       opts.ModelID,
		visionModelID: opts.VisionModelID,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		backoff:       opts.ThrottleBackoff,
		maxAttempts:   opts.MaxRetryAttempts,
		clk:           opts.Clock,
		logger:        opts.Logger,
	}, nil
}

// Available reports whether the client can accept a call right now. A nil
// client and a throttled client both report false.
func (c *Client) Available() bool {
	return c != nil && !c.Throttled()
}

// Throttled reports whether the throttle gate is closed.
func (c *Client) Throttled() bool {
	if c == nil {
		return true
	}
	until := c.throttledUntil.Load()
	return until != 0 && c.clk.Now().UnixNano() < until
}

// markThrottled closes the gate for the configured backoff window.
func (c *Client) markThrottled() {
	until := c.clk.Now().Add(c.backoff)
	c.throttledUntil.Store(until.UnixNano())
	c.logger.Warn().
		Dur("backoff", c.backoff).
		Time("until", until).
		Msg("model provider throttled, backing off")
}

// ClearThrottle reopens the gate. The retry wrapper calls this after its
// linear wait so the next attempt is not rejected by the client itself.
func (c *Client) ClearThrottle() {
	c.throttledUntil.Store(0)
}

// Invoke sends a text prompt to the text model and returns the raw completion.
// When the gate is closed it fails immediately with ErrThrottled. maxTokens
// of zero uses the client default.
func (c *Client) Invoke(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	content := []brtypes.ContentBlock{
		&brtypes.ContentBlockMemberText{Value: prompt},
	}
	return c.converse(ctx, c.modelID, content, system, maxTokens)
}

// InvokeVision sends a PNG screenshot plus a text prompt to the vision model.
// The image block precedes the text block, matching the model's expected
// multimodal ordering.
func (c *Client) InvokeVision(ctx context.Context, prompt, system string, png []byte, maxTokens int) (string, error) {
	content := []brtypes.ContentBlock{
		&brtypes.ContentBlockMemberImage{
			Value: brtypes.ImageBlock{
				Format: brtypes.ImageFormatPng,
				Source: &brtypes.ImageSourceMemberBytes{Value: png},
			},
		},
		&brtypes.ContentBlockMemberText{Value: prompt},
	}
	return c.converse(ctx, c.visionModelID, content, system, maxTokens)
}

// converse performs the gated Converse call and extracts the first text block
// from the response.
func (c *Client) converse(ctx context.Context, modelID string, content []brtypes.ContentBlock, system string, maxTokens int) (string, error) {
	if c == nil {
		return "", errors.ErrAIUnavailable
	}
	if c.Throttled() {
		return "", errors.Wrap(errors.ErrThrottled, "waiting for cooldown")
	}
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []brtypes.Message{
			{Role: brtypes.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)), //nolint:gosec // AWS SDK requires int32
			Temperature: aws.Float32(c.temperature),
		},
	}
	if system != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			c.markThrottled()
			return "", errors.Wrap(errors.ErrThrottled, err.Error())
		}
		return "", errors.Wrapf(err, "converse %s", modelID)
	}

	c.logger.Debug().Str("model", modelID).Msg("model invoked successfully")
	return extractText(output)
}

// extractText pulls the first non-empty text block out of a Converse response.
func extractText(output *bedrockruntime.ConverseOutput) (string, error) {
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.Wrap(errors.ErrAIParse, "response carries no message output")
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok && text.Value != "" {
			return text.Value, nil
		}
	}
	return "", errors.Wrap(errors.ErrAIParse, "response carries no text content")
}

// isRateLimited reports whether err represents a provider rate limiting
// condition. It treats both HTTP 429 responses and provider error codes like
// ThrottlingException as rate-limited signals.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}
