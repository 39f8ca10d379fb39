// Package gemini adapts the Gemini generateContent API to the completion
// contract over plain HTTP.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/models"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Config holds client construction settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Gemini client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (c *Client) Name() string {
	return fmt.Sprintf("gemini:%s", c.cfg.Model)
}

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
}

type geminiFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
	Tools             []geminiTools   `json:"tools,omitempty"`
}

type geminiGenCfg struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiTools struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	if req.MaxTokens > 0 || temp > 0 {
		body.GenerationConfig = &geminiGenCfg{MaxOutputTokens: req.MaxTokens, Temperature: temp}
	}
	for _, t := range req.Tools {
		decl := geminiFuncDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
		if len(body.Tools) == 0 {
			body.Tools = []geminiTools{{}}
		}
		body.Tools[0].FunctionDeclarations = append(body.Tools[0].FunctionDeclarations, decl)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return models.CompletionResult{}, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiAPIURL, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return models.CompletionResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.CompletionResult{}, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.CompletionResult{}, fmt.Errorf("read response: %w", err)
	}
	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return models.CompletionResult{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return models.CompletionResult{}, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return models.CompletionResult{}, fmt.Errorf("no candidates returned (status %d)", resp.StatusCode)
	}

	cand := parsed.Candidates[0]
	res := models.CompletionResult{
		FinishReason: cand.FinishReason,
		Truncated:    cand.FinishReason == "MAX_TOKENS",
		Usage: models.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		},
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			res.Text += part.Text
		}
		if part.FunctionCall != nil {
			res.ToolCalls = append(res.ToolCalls, models.ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	return res, nil
}
