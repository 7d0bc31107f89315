package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaProvider_Complete(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		// Per-request keys are never forwarded to a local model.
		if r.Header.Get("Authorization") != "" {
			t.Error("Ollama should not send Authorization header")
		}

		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(openaiReply("Ollama response", got.Model, 5, 10))
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL)

	tests := []struct {
		name      string
		model     string
		wantModel string
	}{
		{"default model", "", defaultOllamaModel},
		{"routed model", "qwen2.5:7b", "qwen2.5:7b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := provider.Complete(t.Context(), CompletionRequest{
				Model:       tt.model,
				Messages:    []Message{{Role: "user", Content: "hello"}},
				Temperature: 0.2,
				JSON:        true,
				APIKey:      "ignored",
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if resp.Content != "Ollama response" || resp.InputTokens != 5 || resp.OutputTokens != 10 {
				t.Errorf("resp = %+v", resp)
			}
			if got.Model != tt.wantModel || resp.Model != tt.wantModel {
				t.Errorf("model = %q/%q, want %q", got.Model, resp.Model, tt.wantModel)
			}
			if got.Temperature == nil || *got.Temperature != 0.2 {
				t.Errorf("temperature = %v, want 0.2", got.Temperature)
			}
			if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
				t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
			}
		})
	}
}

func TestOllamaProvider_Complete_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantText   string
	}{
		{
			name: "model missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"model \"llama3:8b\" not found, try pulling it first"}`))
			},
			wantStatus: http.StatusNotFound,
			wantText:   "try pulling it first",
		},
		{
			name: "oversized error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(strings.Repeat("x", 10*maxErrorBody)))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "malformed reply",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
			wantText: "decode response",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(openaiResponse{})
			},
			wantText: "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewOllamaProvider(server.URL).Complete(t.Context(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
			})
			if err == nil {
				t.Fatal("Complete() should return error")
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantText)
			}

			var apiErr *APIError
			if isAPI := errors.As(err, &apiErr); isAPI != (tt.wantStatus != 0) {
				t.Fatalf("errors.As(*APIError) = %v, want %v", isAPI, tt.wantStatus != 0)
			}
			if apiErr != nil {
				if apiErr.StatusCode != tt.wantStatus {
					t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.wantStatus)
				}
				if len(apiErr.Body) > maxErrorBody {
					t.Errorf("body kept %d bytes, want at most %d", len(apiErr.Body), maxErrorBody)
				}
			}
		})
	}
}

func TestOllamaProvider_HealthCheck(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/tags" {
					t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(status)
				w.Write([]byte(`{"models":[]}`))
			}))
			defer server.Close()

			err := NewOllamaProvider(server.URL).HealthCheck(t.Context())
			if wantErr := status != http.StatusOK; (err != nil) != wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, wantErr)
			}
		})
	}

	// Nothing listening.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	if err := NewOllamaProvider(url).HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() should fail when the server is down")
	}
}

func TestOllamaProvider_Models(t *testing.T) {
	models := NewOllamaProvider("http://localhost:11434").Models()

	if len(models) != 1 || models[0].ID != defaultOllamaModel {
		t.Errorf("Models() = %+v, want the default model", models)
	}
}
