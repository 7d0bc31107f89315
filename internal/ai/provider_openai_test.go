package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func openaiReply(content, model string, in, out int) openaiResponse {
	resp := openaiResponse{
		Choices: []openaiChoice{{
			Message:      openaiMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Model: model,
	}
	resp.Usage.PromptTokens = in
	resp.Usage.CompletionTokens = out
	return resp
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}

		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Model != "gpt-4o" {
			t.Errorf("model = %q, want %q", req.Model, "gpt-4o")
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.ResponseFormat != nil {
			t.Errorf("response_format = %+v, want unset", req.ResponseFormat)
		}

		json.NewEncoder(w).Encode(openaiReply("Hi there!", "gpt-4o", 10, 5))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	resp, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
		Model:    "gpt-4o",
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hi there!" {
		t.Errorf("content = %q, want %q", resp.Content, "Hi there!")
	}
	if resp.InputTokens != 10 {
		t.Errorf("input_tokens = %d, want 10", resp.InputTokens)
	}
	if resp.OutputTokens != 5 {
		t.Errorf("output_tokens = %d, want 5", resp.OutputTokens)
	}
}

func TestOpenAIProvider_Complete_JSONAndUserKey(t *testing.T) {
	var gotAuth string
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(openaiReply(`{"title":"x"}`, "gpt-4o-mini", 1, 1))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("server-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "outline"}},
		JSON:     true,
		APIKey:   "user-key",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if gotAuth != "Bearer user-key" {
		t.Errorf("Authorization = %q, want the request key", gotAuth)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
}

func TestOpenAIProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Provider != "openai" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if IsUnauthorized(err) {
		t.Error("IsUnauthorized() = true for a 429")
	}
}

func TestOpenAIProvider_Complete_NoKey(t *testing.T) {
	provider := NewDeepSeekProvider("")

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if !errors.Is(err, errMissingKey) {
		t.Errorf("error = %v, want errMissingKey", err)
	}
}

func TestOpenAIProvider_Complete_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openaiReply(`{"questions": [`, "gpt-4o-mini", 10, 32)
		resp.Choices[0].FinishReason = "length"
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages:  []Message{{Role: "user", Content: "quiz"}},
		MaxTokens: 32,
		JSON:      true,
	})
	if err == nil || !strings.Contains(err.Error(), "cut off") {
		t.Errorf("error = %v, want truncation error", err)
	}

	resp, err := provider.Complete(t.Context(), CompletionRequest{
		Messages:  []Message{{Role: "user", Content: "chat"}},
		MaxTokens: 32,
	})
	if err != nil {
		t.Fatalf("plain text truncation should pass through, got %v", err)
	}
	if resp.OutputTokens != 32 {
		t.Errorf("output_tokens = %d, want 32", resp.OutputTokens)
	}
}

func TestOpenAIProvider_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{Choices: nil})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	if err == nil {
		t.Fatal("Complete() should return error when no choices")
	}
}

func TestOpenAICompatibleProviders(t *testing.T) {
	tests := []struct {
		name        string
		newProvider func(url string) *OpenAIProvider
		wantName    string
		wantModel   string
		wantHeaders map[string]string
	}{
		{
			name:        "deepseek",
			newProvider: func(url string) *OpenAIProvider { return NewDeepSeekProvider("k", WithBaseURL(url)) },
			wantName:    "deepseek",
			wantModel:   "deepseek-chat",
		},
		{
			name:        "openrouter",
			newProvider: func(url string) *OpenAIProvider { return NewOpenRouterProvider("k", WithBaseURL(url)) },
			wantName:    "openrouter",
			wantModel:   "qwen/qwen-2.5-72b-instruct",
			wantHeaders: map[string]string{"HTTP-Referer": "https://pandai.org", "X-Title": "P&AI Learn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotReq openaiRequest
			var gotHeader http.Header
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotHeader = r.Header.Clone()
				json.NewDecoder(r.Body).Decode(&gotReq)
				json.NewEncoder(w).Encode(openaiReply(tt.name+" response", gotReq.Model, 7, 15))
			}))
			defer server.Close()

			provider := tt.newProvider(server.URL)
			resp, err := provider.Complete(t.Context(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if provider.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", provider.Name(), tt.wantName)
			}
			if gotPath != "/chat/completions" {
				t.Errorf("path = %q, want /chat/completions", gotPath)
			}
			if gotReq.Model != tt.wantModel {
				t.Errorf("model = %q, want %q", gotReq.Model, tt.wantModel)
			}
			if resp.Content != tt.name+" response" {
				t.Errorf("content = %q", resp.Content)
			}
			for k, v := range tt.wantHeaders {
				if gotHeader.Get(k) != v {
					t.Errorf("header %s = %q, want %q", k, gotHeader.Get(k), v)
				}
			}
			if len(provider.Models()) == 0 {
				t.Error("Models() returned empty list")
			}
		})
	}
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))
			err := provider.HealthCheck(t.Context())

			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIProvider_HealthCheck_NoKey(t *testing.T) {
	if err := NewOpenAIProvider("").HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil without a key", err)
	}
}

func TestOpenAIProvider_CustomModels(t *testing.T) {
	custom := []ModelInfo{{ID: "custom-model", Name: "Custom"}}
	provider := NewOpenAIProvider("test-key", WithModels(custom))
	models := provider.Models()

	if len(models) != 1 || models[0].ID != "custom-model" {
		t.Errorf("Models() = %+v, want custom models", models)
	}
}

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	var receivedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		receivedModel = req.Model
		json.NewEncoder(w).Encode(openaiReply("ok", req.Model, 1, 1))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if receivedModel != "gpt-4o-mini" {
		t.Errorf("default model = %q, want %q", receivedModel, "gpt-4o-mini")
	}
}
