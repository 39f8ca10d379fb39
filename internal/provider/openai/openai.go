// Package openai adapts the OpenAI chat completions API, and by extension any
// OpenAI-compatible local inference server, to the completion contract.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/models"
)

// Config holds client construction settings. BaseURL empty means the public
// OpenAI endpoint.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	client openaisdk.Client
}

// New creates a client using the official SDK.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{cfg: cfg, client: openaisdk.NewClient(opts...)}
}

func (c *Client) Name() string {
	return fmt.Sprintf("%s:%s", c.cfg.Name, c.cfg.Model)
}

func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openaisdk.ChatModel(c.cfg.Model),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}
	if len(req.Tools) > 0 {
		tools := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  openaisdk.FunctionParameters(t.InputSchema),
			}))
		}
		params.Tools = tools
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return models.CompletionResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.CompletionResult{}, fmt.Errorf("no choices returned")
	}

	choice := completion.Choices[0]
	res := models.CompletionResult{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Truncated:    string(choice.FinishReason) == "length",
		Usage: models.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if raw := tc.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return models.CompletionResult{}, fmt.Errorf("parse tool arguments: %w", err)
			}
		}
		res.ToolCalls = append(res.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return res, nil
}
