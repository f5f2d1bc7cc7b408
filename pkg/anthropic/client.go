// Package anthropic is the Claude client used to read lender policy
// documents. It exposes a single-turn CreateMessage so callers can be
// tested against a fake.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client sends one prompt and returns the model's reply.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single user turn with optional system blocks.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Prompt      string
	Temperature *float64
}

// SystemBlock is one system prompt block, optionally cached.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures prompt caching for a block. TTL is "5m" or "1h";
// empty uses the API default.
type CacheControl struct {
	TTL string
}

// StopMaxTokens is the stop reason of a reply cut off by MaxTokens.
const StopMaxTokens = "max_tokens"

// MessageResponse holds the reply text and its token usage.
type MessageResponse struct {
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Truncated reports whether the reply stopped at the token limit.
func (r *MessageResponse) Truncated() bool {
	return r.StopReason == StopMaxTokens
}

// Usage counts the tokens billed for one request.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

type price struct {
	input, output float64 // USD per million tokens
}

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 1, output: 5},
	"claude-sonnet-4-5-20250929": {input: 3, output: 15},
}

// Cache writes bill at 1.25x the input rate and cache reads at 0.1x.
const (
	cacheWriteFactor = 1.25
	cacheReadFactor  = 0.1
)

// Cost estimates the request cost in USD. Unknown models cost 0.
func (u Usage) Cost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	input := float64(u.InputTokens) + float64(u.CacheWriteTokens)*cacheWriteFactor + float64(u.CacheReadTokens)*cacheReadFactor
	return (input*p.input + float64(u.OutputTokens)*p.output) / 1e6
}

// Log records usage and estimated cost for op.
func (u Usage) Log(model, op string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("op", op),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheWriteTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by anthropic-sdk-go. opts are passed
// to the SDK after the API key.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	return &sdkClient{
		client: sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, newParams(req))
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: create message (%s)", req.Model)
	}
	return newResponse(msg), nil
}

func newParams(req MessageRequest) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	for _, b := range req.System {
		block := sdk.TextBlockParam{Text: b.Text}
		if b.CacheControl != nil {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				block.CacheControl.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
		}
		params.System = append(params.System, block)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params
}

func newResponse(msg *sdk.Message) *MessageResponse {
	var parts []string
	for _, b := range msg.Content {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return &MessageResponse{
		Model:      string(msg.Model),
		Text:       strings.Join(parts, "\n"),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
