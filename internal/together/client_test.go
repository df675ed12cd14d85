package together

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// setTestEnv sets the TOGETHER_API_KEY env var and registers cleanup.
func setTestEnv(t *testing.T) {
	t.Helper()
	if err := os.Setenv("TOGETHER_API_KEY", "test-key"); err != nil {
		t.Fatalf("failed to set env: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("TOGETHER_API_KEY")
	})
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_ = os.Unsetenv("TOGETHER_API_KEY")

	_, err := NewClient()
	if err == nil {
		t.Error("expected error for missing API key")
	}
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_WithAPIKeyOption(t *testing.T) {
	_ = os.Unsetenv("TOGETHER_API_KEY")

	client, err := NewClient(WithAPIKey("explicit-api-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.apiKey != "explicit-api-key" {
		t.Errorf("expected apiKey to be 'explicit-api-key', got '%s'", client.apiKey)
	}
}

func TestNewClient_WithAPIKeyOptionOverridesEnv(t *testing.T) {
	setTestEnv(t)

	client, err := NewClient(WithAPIKey("explicit-api-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.apiKey != "explicit-api-key" {
		t.Errorf("expected apiKey to be 'explicit-api-key', got '%s'", client.apiKey)
	}
}

func TestSubmit_Success(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/videos" {
			t.Errorf("expected /videos, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Model != "minimax/minimax-01-director" {
			t.Errorf("expected minimax model, got %s", req.Model)
		}
		if req.Prompt != "a cat surfing" {
			t.Errorf("expected prompt 'a cat surfing', got %s", req.Prompt)
		}

		_ = json.NewEncoder(w).Encode(createResponse{ID: "vid-123"})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	videoID, err := client.Submit(context.Background(), SubmitRequest{
		Model:  "minimax/minimax-01-director",
		Prompt: "a cat surfing",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if videoID != "vid-123" {
		t.Errorf("expected vid-123, got %s", videoID)
	}
}

func TestSubmit_ErrorResponse(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(createResponse{Error: "invalid prompt"})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "m", Prompt: "p"})
	if err == nil {
		t.Error("expected error")
	}
	if !errors.Is(err, ErrSubmitFailed) {
		t.Errorf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestSubmit_Unauthorized(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("credential failures must not be retryable")
	}
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestSubmit_RetriesServerError(t *testing.T) {
	setTestEnv(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(createResponse{ID: "vid-retry"})
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithMaxRetries(2),
		WithBaseBackoff(time.Millisecond),
	)

	videoID, err := client.Submit(context.Background(), SubmitRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if videoID != "vid-retry" {
		t.Errorf("expected vid-retry, got %s", videoID)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestPoll_StatusShapes(t *testing.T) {
	setTestEnv(t)

	tests := []struct {
		name         string
		body         string
		wantStatus   string
		wantDirect   string
		wantListURL  string
		wantNested   string
		wantErrField string
	}{
		{
			name:       "running",
			body:       `{"id":"vid-1","status":"running"}`,
			wantStatus: "running",
		},
		{
			name:       "direct output_url",
			body:       `{"id":"vid-1","status":"succeeded","output_url":"https://x/v.mp4"}`,
			wantStatus: "succeeded",
			wantDirect: "https://x/v.mp4",
		},
		{
			name:        "output list",
			body:        `{"id":"vid-1","status":"succeeded","output":[{"url":"https://x/a.mp4"},{"url":"https://x/b.mp4"}]}`,
			wantStatus:  "succeeded",
			wantListURL: "https://x/a.mp4",
		},
		{
			name:       "nested result",
			body:       `{"id":"vid-1","status":"completed","result":{"url":"https://x/n.mp4"}}`,
			wantStatus: "completed",
			wantNested: "https://x/n.mp4",
		},
		{
			name:         "failed",
			body:         `{"id":"vid-1","status":"failed","error":"nsfw filter"}`,
			wantStatus:   "failed",
			wantErrField: "nsfw filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET, got %s", r.Method)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := NewClient(WithBaseURL(server.URL))

			resp, err := client.Poll(context.Background(), "vid-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, resp.Status)
			}
			if resp.OutputURL != tt.wantDirect {
				t.Errorf("expected output_url %q, got %q", tt.wantDirect, resp.OutputURL)
			}
			if tt.wantListURL != "" {
				if len(resp.Output) == 0 || resp.Output[0].URL != tt.wantListURL {
					t.Errorf("expected first output url %q, got %+v", tt.wantListURL, resp.Output)
				}
			}
			if tt.wantNested != "" {
				if resp.Result == nil || resp.Result.URL != tt.wantNested {
					t.Errorf("expected nested url %q, got %+v", tt.wantNested, resp.Result)
				}
			}
			if resp.Error != tt.wantErrField {
				t.Errorf("expected error %q, got %q", tt.wantErrField, resp.Error)
			}
			if len(resp.Raw) == 0 {
				t.Error("expected raw body to be retained")
			}
		})
	}
}

func TestPoll_EmptyVideoID(t *testing.T) {
	setTestEnv(t)

	client, _ := NewClient()

	_, err := client.Poll(context.Background(), "")
	if !errors.Is(err, ErrVideoIDRequired) {
		t.Errorf("expected ErrVideoIDRequired, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/videos/vid-1/cancel" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(cancelResponse{ID: "vid-1", Cancelled: true})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	ok, err := client.Cancel(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected cancellation to be acknowledged")
	}
}

func TestDownload(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer server.Close()

	client, _ := NewClient()

	rc, err := client.Download(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("expected video-bytes, got %s", data)
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second) // Simulate slow response
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Submit(ctx, SubmitRequest{Model: "m", Prompt: "p"})
	if err == nil {
		t.Error("expected error due to context cancellation")
	}
}
