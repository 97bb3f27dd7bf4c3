package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.7
)

// Client talks to any OpenAI-compatible API (/embeddings, /chat/completions).
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, chatModel, embedModel string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.call(ctx, "/embeddings", request, &response, resilience.OpEmbed); err != nil {
		return nil, err
	}

	sort.Slice(response.Data, func(i, j int) bool { return response.Data[i].Index < response.Data[j].Index })
	out := make([][]float32, 0, len(response.Data))
	for _, item := range response.Data {
		out = append(out, item.Embedding)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

type ChatModel struct {
	client      *Client
	temperature float64
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client, temperature: defaultTemperature}
}

// Generate sends prompt as a single user message and returns the first choice.
func (m *ChatModel) Generate(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model": m.client.chatModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": m.temperature,
	}
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := m.client.call(ctx, "/chat/completions", request, &response, resilience.OpGenerate); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
