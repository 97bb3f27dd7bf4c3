package ports

import (
	"context"
	"io"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// DocumentLoader normalizes a file path or URL into documents.
type DocumentLoader interface {
	Load(ctx context.Context, locator string) ([]domain.Document, error)
}

// Chunker splits documents into overlapping windows.
type Chunker interface {
	Split(docs []domain.Document) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex persists embedded chunks and answers similarity queries.
type VectorIndex interface {
	Exists(ctx context.Context, contentHash string) (bool, error)
	Add(ctx context.Context, entries []domain.IndexedEntry) error
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.Passage, error)
	Clear(ctx context.Context) error
}

// LanguageModel turns a prompt into a completion.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WebSearcher returns a text summary of live search results.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Summarizer condenses a passage before it is placed in the prompt.
type Summarizer interface {
	Summarize(text string, maxSentences int) string
}

// IndexLedger records create-index runs.
type IndexLedger interface {
	Upsert(ctx context.Context, record domain.IndexRecord) error
	GetByHash(ctx context.Context, contentHash string) (*domain.IndexRecord, error)
	List(ctx context.Context, limit int) ([]domain.IndexRecord, error)
	DeleteAll(ctx context.Context) error
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Clear(ctx context.Context) error
}

// MessageQueue publishes/consumes asynchronous index requests.
type MessageQueue interface {
	PublishIndexRequest(ctx context.Context, locator string) error
	SubscribeIndexRequests(ctx context.Context, handler func(context.Context, string) error) error
}
