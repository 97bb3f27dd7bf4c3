package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

func TestEmbedOrdersByIndexAndSendsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", got)
		}
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Model != "text-embedding-ada-002" || len(payload.Input) != 2 {
			t.Errorf("unexpected payload: %+v", payload)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "sk-test", "gpt-3.5-turbo", "text-embedding-ada-002", nil))
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestChatModelGenerate(t *testing.T) {
	var gotContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if len(payload.Messages) == 1 && payload.Messages[0].Role == "user" {
			gotContent = payload.Messages[0].Content
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris."}}]}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "", "gpt-3.5-turbo", "", nil))
	answer, err := model.Generate(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Paris." || gotContent != "capital of France?" {
		t.Fatalf("unexpected answer=%q content=%q", answer, gotContent)
	}
}

func TestChatModelNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	if _, err := NewChatModel(New(server.URL, "", "m", "", nil)).Generate(context.Background(), "p"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestRateLimitIsTemporaryAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	_, err := NewChatModel(New(server.URL, "", "m", "", exec)).Generate(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrTemporary) || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected temporary rate limit error, got %v", err)
	}
}
