package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

type queryEmbedder struct{}

func (queryEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (queryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func testEntries(hash string) []domain.IndexedEntry {
	return []domain.IndexedEntry{
		{Chunk: domain.Chunk{Text: "a", ContentHash: hash, ChunkIndex: 0}, Vector: []float32{0.1, 0.2}},
		{Chunk: domain.Chunk{Text: "b", ContentHash: hash, ChunkIndex: 1}, Vector: []float32{0.3, 0.4}},
	}
}

func TestAddEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls, indexCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/index":
			atomic.AddInt32(&indexCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			if r.URL.Query().Get("wait") != "true" {
				t.Errorf("expected wait=true on upsert")
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	for i := 0; i < 2; i++ {
		if err := client.Add(context.Background(), testEntries("h")); err != nil {
			t.Fatalf("Add() #%d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if got := atomic.LoadInt32(&indexCalls); got != 1 {
		t.Fatalf("expected payload index created once, got %d", got)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	err := client.Add(context.Background(), testEntries("h"))
	if !domain.IsKind(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestAddFailureDeletesPartialPoints(t *testing.T) {
	var deletedHash atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && (r.URL.Path == "/collections/docs" || r.URL.Path == "/collections/docs/index"):
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			http.Error(w, "disk full", http.StatusInternalServerError)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/delete":
			var body struct {
				Filter struct {
					Must []struct {
						Key   string `json:"key"`
						Match struct {
							Value string `json:"value"`
						} `json:"match"`
					} `json:"must"`
				} `json:"filter"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.Filter.Must) == 1 && body.Filter.Must[0].Key == "content_hash" {
				deletedHash.Store(body.Filter.Must[0].Match.Value)
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	if err := client.Add(context.Background(), testEntries("abc")); err == nil {
		t.Fatalf("expected add error")
	}
	if got, _ := deletedHash.Load().(string); got != "abc" {
		t.Fatalf("expected compensating delete for abc, got %q", got)
	}
}

func TestExistsUsesCountFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/count" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Filter map[string]any `json:"filter"`
			Exact  bool           `json:"exact"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body.Filter)
		count := 0
		if strings.Contains(string(raw), `"present"`) {
			count = 3
		}
		_, _ = w.Write([]byte(`{"result":{"count":` + strconv.Itoa(count) + `}}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	if ok, err := client.Exists(context.Background(), "present"); err != nil || !ok {
		t.Fatalf("expected present hash, ok=%v err=%v", ok, err)
	}
	if ok, err := client.Exists(context.Background(), "absent"); err != nil || ok {
		t.Fatalf("expected absent hash, ok=%v err=%v", ok, err)
	}
}

func TestMissingCollectionMeansEmptyIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	if ok, err := client.Exists(context.Background(), "h"); err != nil || ok {
		t.Fatalf("expected false without error, ok=%v err=%v", ok, err)
	}
	got, err := client.SimilaritySearch(context.Background(), "q", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty search, got %v err=%v", got, err)
	}
	if err := client.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
}

func TestSimilaritySearchDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Limit int `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Limit != 4 {
			t.Errorf("expected default limit 4, got %d", body.Limit)
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.9,"payload":{"text":"hello","content_hash":"h","chunk_index":2,"metadata":{"source":"a.pdf","page":"1"}}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", queryEmbedder{})
	got, err := client.SimilaritySearch(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one passage, got %d", len(got))
	}
	p := got[0]
	if p.Text != "hello" || p.ContentHash != "h" || p.ChunkIndex != 2 || p.Metadata[domain.MetaSource] != "a.pdf" || p.Score != 0.9 {
		t.Fatalf("unexpected passage: %+v", p)
	}
}
