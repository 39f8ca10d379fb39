// Package anthropic adapts the Anthropic messages API to the completion
// contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/models"
)

// Config holds client construction settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	client anthropicsdk.Client
}

// New creates a client using the official SDK.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{cfg: cfg, client: anthropicsdk.NewClient(opts...)}
}

func (c *Client) Name() string {
	return fmt.Sprintf("anthropic:%s", c.cfg.Model)
}

const defaultMaxTokens = 2048

func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		// The messages API requires an explicit cap.
		maxTokens = defaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.cfg.Model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicsdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			// ToolSpec's JSON shape matches the messages API tool shape, so a
			// round-trip through JSON fills the SDK param.
			raw, err := json.Marshal(t)
			if err != nil {
				return models.CompletionResult{}, fmt.Errorf("marshal tool: %w", err)
			}
			var tp anthropicsdk.ToolParam
			if err := json.Unmarshal(raw, &tp); err != nil {
				return models.CompletionResult{}, fmt.Errorf("build tool param: %w", err)
			}
			tools = append(tools, anthropicsdk.ToolUnionParam{OfTool: &tp})
		}
		params.Tools = tools
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return models.CompletionResult{}, fmt.Errorf("messages: %w", err)
	}

	res := models.CompletionResult{
		FinishReason: string(msg.StopReason),
		Truncated:    string(msg.StopReason) == "max_tokens",
		Usage: models.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, content := range msg.Content {
		switch content.Type {
		case "text":
			res.Text += content.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(content.Input, &args); err != nil {
				return models.CompletionResult{}, fmt.Errorf("parse tool input: %w", err)
			}
			res.ToolCalls = append(res.ToolCalls, models.ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: args,
			})
		}
	}
	return res, nil
}
