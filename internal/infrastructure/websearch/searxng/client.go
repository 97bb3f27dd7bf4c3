package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxResults = 5
	maxSnippetRunes   = 400
)

// Client queries a SearxNG instance through its JSON API and condenses the
// hits into a numbered plain-text summary.
type Client struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, maxResults int, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search returns "" when the engine has no results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	var results []result
	err := c.executor.Call(ctx, "searxng", resilience.OpSearchWeb, func(ctx context.Context) error {
		var err error
		results, err = c.fetch(ctx, query)
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", err
	}
	return summarize(results, c.maxResults), nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("safesearch", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("searxng", "search", resp)
	}

	var payload struct {
		Results []result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Results, nil
}

func summarize(results []result, limit int) string {
	var sb strings.Builder
	n := 0
	for _, r := range results {
		if n == limit {
			break
		}
		title := strings.TrimSpace(r.Title)
		snippet := truncateRunes(strings.Join(strings.Fields(r.Content), " "), maxSnippetRunes)
		if title == "" && snippet == "" {
			continue
		}
		n++
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(n) + ". " + title)
		if r.URL != "" {
			sb.WriteString(" (" + r.URL + ")")
		}
		if snippet != "" {
			sb.WriteString(": " + snippet)
		}
	}
	return sb.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
