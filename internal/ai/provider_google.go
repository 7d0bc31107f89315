package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// GoogleProvider implements Provider for Google Gemini.
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	models  []ModelInfo
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL sets the base URL (for testing).
func WithGoogleBaseURL(url string) GoogleOption {
	return func(p *GoogleProvider) {
		p.baseURL = url
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.client = client
	}
}

// NewGoogleProvider creates a new Google Gemini provider. apiKey may be empty
// when every request carries its own key.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// newGeminiRequest moves system messages into systemInstruction and renames
// the assistant role to "model".
func newGeminiRequest(req CompletionRequest) geminiRequest {
	var out geminiRequest
	var system []geminiPart
	for _, m := range req.Messages {
		role := m.Role
		switch role {
		case "system":
			system = append(system, geminiPart{Text: m.Content})
			continue
		case "assistant":
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: system}
	}

	if req.MaxTokens > 0 || req.Temperature > 0 || req.JSON {
		cfg := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature > 0 {
			temp := req.Temperature
			cfg.Temperature = &temp
		}
		if req.JSON {
			cfg.ResponseMimeType = "application/json"
		}
		out.GenerationConfig = cfg
	}
	return out
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	key := keyOr(req, p.apiKey)
	if key == "" {
		return CompletionResponse{}, fmt.Errorf("gemini: %w", errMissingKey)
	}
	model := req.Model
	if model == "" {
		model = defaultGeminiModel
	}

	header := http.Header{}
	header.Set("x-goog-api-key", key)
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	var gemResp geminiResponse
	if err := postJSON(ctx, p.client, "gemini", url, header, newGeminiRequest(req), &gemResp); err != nil {
		return CompletionResponse{}, err
	}
	if len(gemResp.Candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("gemini returned no candidates")
	}

	cand := gemResp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return CompletionResponse{}, fmt.Errorf("gemini returned no content (finish reason %q)", cand.FinishReason)
	}
	if cand.FinishReason == "MAX_TOKENS" && req.JSON {
		return CompletionResponse{}, fmt.Errorf("gemini response cut off at %d tokens", req.MaxTokens)
	}

	if gemResp.ModelVersion != "" {
		model = gemResp.ModelVersion
	}
	return CompletionResponse{
		Content:      text.String(),
		Model:        model,
		InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (p *GoogleProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", MaxTokens: 1048576, Description: "Most capable Google model"},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", MaxTokens: 1048576, Description: "Fast, affordable Google model"},
	}
}

// HealthCheck lists models with the configured key. Without a configured key
// there is nothing to check.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return nil
	}
	header := http.Header{}
	header.Set("x-goog-api-key", p.apiKey)
	return getOK(ctx, p.client, "gemini", p.baseURL+"/models", header)
}
