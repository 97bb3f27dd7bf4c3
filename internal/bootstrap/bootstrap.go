package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/rag-chatbot/internal/config"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
	"github.com/kirillkom/rag-chatbot/internal/core/usecase"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/chunking"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/llm/openai"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/loader"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/summarizer"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/vector/sqlite"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/websearch/searxng"
)

type App struct {
	Config config.Config

	// Queue is nil when NATS_URL is empty or the queue was disabled.
	Queue *nats.Queue

	IndexUC  *usecase.IndexingUseCase
	AnswerUC *usecase.AnswerUseCase
	UploadUC *usecase.UploadUseCase
	AdminUC  *usecase.AdminUseCase

	closers []func()
}

type Option func(*options)

type options struct {
	embedder ports.Embedder
	model    ports.LanguageModel
	searcher ports.WebSearcher
	noQueue  bool
}

// WithEmbedder replaces the configured provider's embedder.
func WithEmbedder(e ports.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithLanguageModel replaces the configured provider's chat model.
func WithLanguageModel(m ports.LanguageModel) Option {
	return func(o *options) { o.model = m }
}

func WithWebSearcher(s ports.WebSearcher) Option {
	return func(o *options) { o.searcher = s }
}

// WithoutQueue forces inline indexing even when NATS_URL is set.
func WithoutQueue() Option {
	return func(o *options) { o.noQueue = true }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	built := &App{Config: cfg}
	defer func() {
		if err != nil {
			built.Close()
		}
	}()

	executor := resilience.NewExecutor(cfg.Resilience.Executor())

	embedder, model := newProvider(cfg, executor)
	if o.embedder != nil {
		embedder = o.embedder
	}
	if o.model != nil {
		model = o.model
	}

	index, err := built.newVectorIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	var ledger ports.IndexLedger
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		built.closers = append(built.closers, func() { _ = db.Close() })
		repo := postgres.NewIndexRecordRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		ledger = repo
	}

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}

	// Left as a nil interface when disabled so use cases see no queue.
	var queue ports.MessageQueue
	if cfg.NATSURL != "" && !o.noQueue {
		q, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		built.closers = append(built.closers, q.Close)
		built.Queue = q
		queue = q
	}

	var searcher ports.WebSearcher
	switch {
	case o.searcher != nil:
		searcher = o.searcher
	case cfg.RAGWebSearchEnabled:
		searcher = searxng.New(cfg.SearxNGURL, cfg.WebSearchTimeout, cfg.WebSearchMaxResults, executor)
	}

	var condense ports.Summarizer
	if cfg.RAGSummarizeContext {
		condense = summarizer.NewFrequency()
	}

	docLoader := loader.New(loader.Options{
		Encoding:    cfg.LoaderEncoding,
		HTTPTimeout: cfg.LoaderHTTPTimeout,
	})
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	hashMode := usecase.ParseHashMode(cfg.IndexHashMode)
	built.IndexUC = usecase.NewIndexingUseCase(docLoader, chunker, embedder, index, ledger, hashMode)
	built.AnswerUC = usecase.NewAnswerUseCase(index, searcher, model, condense, usecase.AnswerOptions{
		TopK:             cfg.RAGTopK,
		WebSearch:        cfg.RAGWebSearchEnabled || o.searcher != nil,
		SummarySentences: cfg.RAGSummarySentences,
	})
	var uploadOpts []usecase.UploadOption
	if hashMode == usecase.HashByLocator {
		uploadOpts = append(uploadOpts, usecase.WithStableUploadNames())
	}
	built.UploadUC = usecase.NewUploadUseCase(storage, built.IndexUC, queue, uploadOpts...)
	built.AdminUC = usecase.NewAdminUseCase(index, ledger, storage)

	slog.Info("app_initialized",
		"llm_provider", cfg.LLMProvider,
		"vector_backend", cfg.VectorBackend,
		"pipeline", built.AnswerUC.Stages(),
		"ledger_enabled", ledger != nil,
		"queue_enabled", queue != nil,
	)
	return built, nil
}

func newProvider(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.LanguageModel) {
	switch cfg.LLMProvider {
	case "openai":
		client := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, executor)
		return openai.NewEmbedder(client), openai.NewChatModel(client)
	default:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		return ollama.NewEmbedder(client), ollama.NewGenerator(client)
	}
}

func (a *App) newVectorIndex(ctx context.Context, cfg config.Config, embedder ports.Embedder) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.VectorCollection, embedder), nil
	default:
		store, err := sqlite.Open(ctx, cfg.VectorPersistDir, embedder)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		slog.Info("vector_index_opened", "backend", "sqlite", "path", store.Path())
		return store, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
