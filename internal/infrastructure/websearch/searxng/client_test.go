package searxng

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

func TestSearchSummarizesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" || r.URL.Query().Get("q") != "go generics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Tutorial","url":"https://go.dev/doc/tutorial/generics","content":"Getting started\n  with generics."},
			{"title":"","url":"https://empty","content":""},
			{"title":"Spec","url":"https://go.dev/ref/spec","content":"Type parameters."},
			{"title":"Third","url":"https://x","content":"dropped by limit"}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, 2, nil)
	got, err := client.Search(context.Background(), "go generics")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := "1. Tutorial (https://go.dev/doc/tutorial/generics): Getting started with generics.\n" +
		"2. Spec (https://go.dev/ref/spec): Type parameters."
	if got != want {
		t.Fatalf("unexpected summary:\n%s", got)
	}
}

func TestSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	got, err := New(server.URL, time.Second, 5, nil).Search(context.Background(), "nothing")
	if err != nil || got != "" {
		t.Fatalf("expected empty summary, got %q err=%v", got, err)
	}
}

func TestSearchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	_, err := New(server.URL, 20*time.Millisecond, 5, nil).Search(context.Background(), "slow")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestSearchUpstreamFailureIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1})
	_, err := New(server.URL, time.Second, 5, exec).Search(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrTemporary) || !strings.Contains(err.Error(), "engine down") {
		t.Fatalf("expected temporary error with body, got %v", err)
	}
}
