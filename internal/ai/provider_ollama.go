package ai

import (
	"context"
	"net/http"
)

const defaultOllamaModel = "llama3:8b"

// OllamaProvider implements Provider for self-hosted Ollama.
// Ollama exposes an OpenAI-compatible API at /v1/chat/completions and needs
// no key, so per-request keys are ignored.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	models  []ModelInfo
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.client = client
	}
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL string, opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOllamaModel
	}

	var resp openaiResponse
	if err := postJSON(ctx, p.client, "ollama", p.baseURL+"/v1/chat/completions", nil, newOpenAIRequest(req, model), &resp); err != nil {
		return CompletionResponse{}, err
	}
	return openaiResult("ollama", req, resp)
}

func (p *OllamaProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: defaultOllamaModel, Name: "Llama 3 8B", MaxTokens: 8192, Description: "Free self-hosted model via Ollama"},
	}
}

// HealthCheck lists the locally pulled models.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	return getOK(ctx, p.client, "ollama", p.baseURL+"/api/tags", nil)
}
