package models

// CompletionRequest is the vendor-neutral input to one generation call.
type CompletionRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	Tools       []ToolSpec
}

// ToolSpec declares one callable tool in JSON-schema form.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CompletionResult is the vendor-neutral outcome of one generation call.
// Truncated is set when the vendor's own finish signal indicates the output
// was cut off by the token limit.
type CompletionResult struct {
	Text         string
	Truncated    bool
	FinishReason string
	ToolCalls    []ToolCall
	Usage        Usage
}
