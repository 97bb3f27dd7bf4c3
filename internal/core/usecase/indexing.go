package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

const embedBatchSize = 64

type IndexingUseCase struct {
	loader   ports.DocumentLoader
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
	ledger   ports.IndexLedger
	hashMode HashMode
	locks    *keyedMutex
}

func NewIndexingUseCase(
	loader ports.DocumentLoader,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	ledger ports.IndexLedger,
	hashMode HashMode,
) *IndexingUseCase {
	if ledger == nil {
		ledger = noopLedger{}
	}
	if hashMode == "" {
		hashMode = HashByContent
	}
	return &IndexingUseCase{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		ledger:   ledger,
		hashMode: hashMode,
		locks:    newKeyedMutex(),
	}
}

// CreateIndex loads, chunks, embeds and stores the document behind locator
// unless an entry with the same content hash is already indexed.
func (uc *IndexingUseCase) CreateIndex(ctx context.Context, locator string) (*domain.IndexReport, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create index", errors.New("empty path or url"))
	}
	op := fmt.Sprintf("create index %q", locator)

	unlockLocator := uc.locks.Lock("locator:" + locator)
	defer unlockLocator()

	var (
		docs []domain.Document
		hash string
		err  error
	)
	if uc.hashMode == HashByLocator {
		hash = HashLocator(locator)
	} else {
		docs, err = uc.load(ctx, op, locator)
		if err != nil {
			return nil, err
		}
		hash = HashContent(docs)
	}

	unlockHash := uc.locks.Lock("hash:" + hash)
	defer unlockHash()

	exists, err := uc.index.Exists(ctx, hash)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, op+": exists", err)
	}
	if exists {
		slog.Info("index_skipped", "locator", locator, "content_hash", hash)
		uc.record(ctx, domain.IndexRecord{ContentHash: hash, Locator: locator, Status: domain.IndexStatusSkipped})
		return &domain.IndexReport{Locator: locator, ContentHash: hash, Skipped: true}, nil
	}

	uc.record(ctx, domain.IndexRecord{ContentHash: hash, Locator: locator, Status: domain.IndexStatusProcessing})

	if docs == nil {
		docs, err = uc.load(ctx, op, locator)
		if err != nil {
			uc.markFailed(ctx, locator, hash, err)
			return nil, err
		}
	}

	chunks, err := uc.indexDocuments(ctx, op, hash, docs)
	if err != nil {
		uc.markFailed(ctx, locator, hash, err)
		return nil, err
	}

	uc.record(ctx, domain.IndexRecord{ContentHash: hash, Locator: locator, Status: domain.IndexStatusReady, Chunks: chunks})
	slog.Info("index_completed", "locator", locator, "content_hash", hash, "chunks", chunks)

	return &domain.IndexReport{Locator: locator, ContentHash: hash, Chunks: chunks}, nil
}

func (uc *IndexingUseCase) load(ctx context.Context, op, locator string) ([]domain.Document, error) {
	docs, err := uc.loader.Load(ctx, locator)
	if err != nil {
		kind := domain.ErrLoadFailure
		if domain.IsKind(err, domain.ErrInvalidInput) {
			kind = domain.ErrInvalidInput
		}
		return nil, domain.WrapError(kind, op+": load", err)
	}
	if !hasText(docs) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op+": load", errors.New("document has no text content"))
	}
	return docs, nil
}

func (uc *IndexingUseCase) indexDocuments(ctx context.Context, op, hash string, docs []domain.Document) (int, error) {
	tagged := make([]domain.Document, len(docs))
	for i, doc := range docs {
		doc.ContentHash = hash
		tagged[i] = doc
	}

	chunks := uc.chunker.Split(tagged)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, op+": chunk", errors.New("chunking produced zero chunks"))
	}
	for i := range chunks {
		tagChunk(&chunks[i], hash)
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return 0, domain.WrapError(domain.ErrEmbeddingFailure, op+": embed", err)
	}

	entries := make([]domain.IndexedEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexedEntry{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := uc.index.Add(ctx, entries); err != nil {
		return 0, domain.WrapError(domain.ErrStoreFailure, op+": add", err)
	}
	return len(chunks), nil
}

func (uc *IndexingUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (uc *IndexingUseCase) markFailed(ctx context.Context, locator, hash string, cause error) {
	uc.record(ctx, domain.IndexRecord{
		ContentHash: hash,
		Locator:     locator,
		Status:      domain.IndexStatusFailed,
		Error:       cause.Error(),
	})
}

// record never fails the pipeline; the ledger is an audit trail only.
func (uc *IndexingUseCase) record(ctx context.Context, record domain.IndexRecord) {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := uc.ledger.Upsert(ctx, record); err != nil {
		slog.Warn("index_ledger_write_failed", "content_hash", record.ContentHash, "status", string(record.Status), "error", err)
	}
}

func tagChunk(chunk *domain.Chunk, hash string) {
	chunk.ContentHash = hash
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]string, 2)
	}
	chunk.Metadata[domain.MetaContentHash] = hash
	chunk.Metadata[domain.MetaChunkIndex] = strconv.Itoa(chunk.ChunkIndex)
}

func hasText(docs []domain.Document) bool {
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) != "" {
			return true
		}
	}
	return false
}

type noopLedger struct{}

func (noopLedger) Upsert(context.Context, domain.IndexRecord) error { return nil }
func (noopLedger) GetByHash(_ context.Context, hash string) (*domain.IndexRecord, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get index record", fmt.Errorf("hash=%s (ledger disabled)", hash))
}
func (noopLedger) List(context.Context, int) ([]domain.IndexRecord, error) {
	return []domain.IndexRecord{}, nil
}
func (noopLedger) DeleteAll(context.Context) error { return nil }
