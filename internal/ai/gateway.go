// Package ai provides a provider-agnostic model gateway with task-based routing.
package ai

import "context"

// TaskType defines the kind of generation task for routing purposes.
type TaskType int

const (
	TaskOutline TaskType = iota
	TaskPathOutline
	TaskModuleContent
	TaskMockTest
	TaskClarify
)

func (t TaskType) String() string {
	switch t {
	case TaskOutline:
		return "outline"
	case TaskPathOutline:
		return "path_outline"
	case TaskModuleContent:
		return "module_content"
	case TaskMockTest:
		return "mock_test"
	case TaskClarify:
		return "clarify"
	default:
		return "unknown"
	}
}

// ParseTaskType maps a task name back to its TaskType.
func ParseTaskType(s string) (TaskType, bool) {
	for t := TaskOutline; t <= TaskClarify; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a model completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`

	// JSON asks the provider to answer with a single JSON document.
	JSON bool `json:"json,omitempty"`

	// APIKey replaces the provider's configured key for this request.
	APIKey string `json:"-"`
}

// CompletionResponse is the output from a model completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all model providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}

// keyOr returns the per-request key when set, else the configured one.
func keyOr(req CompletionRequest, configured string) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return configured
}

// jsonInstruction is appended to the system prompt of providers without a
// native JSON response mode.
const jsonInstruction = "Respond with a single JSON document and nothing else. Do not wrap it in Markdown."
