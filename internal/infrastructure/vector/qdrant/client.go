package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

const defaultK = 4

var errCollectionMissing = errors.New("qdrant collection does not exist")

// Client is a VectorIndex backed by a Qdrant collection over its REST API.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, embedder ports.Embedder) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
	}
}

func (c *Client) Exists(ctx context.Context, contentHash string) (bool, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionPath("/points/count"), map[string]any{
		"filter": hashFilter(contentHash),
		"exact":  true,
	}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreFailure, "qdrant exists", err)
	}
	return resp.Result.Count > 0, nil
}

// Add upserts all entries with wait=true. If the upsert fails, points that
// may have been written for the same content hashes are deleted again so
// Exists never observes a partial document.
func (c *Client) Add(ctx context.Context, entries []domain.IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(entries[0].Vector)); err != nil {
		return domain.WrapError(domain.ErrStoreFailure, "qdrant add", err)
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(entries))
	hashes := make(map[string]struct{})
	for _, entry := range entries {
		hashes[entry.Chunk.ContentHash] = struct{}{}
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: entry.Vector,
			Payload: map[string]any{
				"content_hash": entry.Chunk.ContentHash,
				"chunk_index":  entry.Chunk.ChunkIndex,
				"text":         entry.Chunk.Text,
				"metadata":     entry.Chunk.Metadata,
			},
		})
	}

	err := c.do(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
	if err == nil {
		return nil
	}
	for hash := range hashes {
		if delErr := c.deleteByHash(context.WithoutCancel(ctx), hash); delErr != nil {
			slog.Error("qdrant_compensating_delete_failed", "content_hash", hash, "error", delErr)
		}
	}
	return domain.WrapError(domain.ErrStoreFailure, "qdrant add", err)
}

func (c *Client) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k <= 0 {
		k = defaultK
	}
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed query", err)
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err = c.do(ctx, http.MethodPost, c.collectionPath("/points/search"), map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return []domain.Passage{}, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, "qdrant search", err)
	}

	out := make([]domain.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.Passage{
			Text:        getStringPayload(r.Payload, "text"),
			ContentHash: getStringPayload(r.Payload, "content_hash"),
			ChunkIndex:  getIntPayload(r.Payload, "chunk_index"),
			Metadata:    getMapPayload(r.Payload, "metadata"),
			Score:       r.Score,
		})
	}
	return out, nil
}

// Clear drops the whole collection; it is recreated on the next Add.
func (c *Client) Clear(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, c.collectionPath(""), nil, nil)
	if err != nil && !errors.Is(err, errCollectionMissing) {
		return domain.WrapError(domain.ErrStoreFailure, "qdrant clear", err)
	}
	c.ensureMu.Lock()
	c.ensuredCollection = false
	c.ensuredVectorSize = 0
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) deleteByHash(ctx context.Context, contentHash string) error {
	return c.do(ctx, http.MethodPost, c.collectionPath("/points/delete?wait=true"), map[string]any{
		"filter": hashFilter(contentHash),
	}, nil)
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	err := c.do(ctx, http.MethodPut, c.collectionPath(""), map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}, nil)
	// 409 if it already exists (depends on version/config).
	var statusErr *statusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.code == http.StatusConflict) {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	// Keyword index keeps Exists cheap on large collections.
	err = c.do(ctx, http.MethodPut, c.collectionPath("/index?wait=true"), map[string]any{
		"field_name":   "content_hash",
		"field_schema": "keyword",
	}, nil)
	if err != nil {
		return fmt.Errorf("qdrant ensure payload index: %w", err)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("qdrant status %d", e.code)
	}
	return fmt.Sprintf("qdrant status %d: %s", e.code, e.msg)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, msg: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.collection + suffix
}

func hashFilter(contentHash string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "content_hash", "match": map[string]any{"value": contentHash}},
		},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func getMapPayload(payload map[string]any, key string) map[string]string {
	raw, ok := payload[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
