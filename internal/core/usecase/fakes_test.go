package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

type loaderFake struct {
	mu    sync.Mutex
	docs  []domain.Document
	err   error
	calls int
}

func (f *loaderFake) Load(_ context.Context, locator string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Document, len(f.docs))
	for i, doc := range f.docs {
		doc.Metadata = map[string]string{domain.MetaSource: locator}
		out[i] = doc
	}
	return out, nil
}

// wordChunker emits one chunk per whitespace-separated word.
type wordChunker struct{}

func (wordChunker) Split(docs []domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, doc := range docs {
		for i, word := range strings.Fields(doc.Content) {
			out = append(out, domain.Chunk{
				Text:        word,
				Metadata:    domain.CloneMetadata(doc.Metadata),
				ContentHash: doc.ContentHash,
				ChunkIndex:  i,
			})
		}
	}
	return out
}

type embedderFake struct {
	mu      sync.Mutex
	delay   time.Duration
	short   bool
	err     error
	batches int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 1}, nil
}

type indexFake struct {
	mu        sync.Mutex
	entries   []domain.IndexedEntry
	addCalls  int
	addErr    error
	existsErr error
	search    []domain.Passage
	searchErr error
	lastQuery string
	lastK     int
	cleared   bool
}

func (f *indexFake) Exists(_ context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, entry := range f.entries {
		if entry.Chunk.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (f *indexFake) Add(_ context.Context, entries []domain.IndexedEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *indexFake) SimilaritySearch(_ context.Context, query string, k int) ([]domain.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.search, nil
}

func (f *indexFake) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	f.cleared = true
	return nil
}

func (f *indexFake) countByHash(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, entry := range f.entries {
		if entry.Chunk.ContentHash == hash {
			n++
		}
	}
	return n
}

type ledgerFake struct {
	mu      sync.Mutex
	records []domain.IndexRecord
	err     error
}

func (f *ledgerFake) Upsert(_ context.Context, record domain.IndexRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

func (f *ledgerFake) GetByHash(_ context.Context, hash string) (*domain.IndexRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].ContentHash == hash {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get", errors.New(hash))
}

func (f *ledgerFake) List(_ context.Context, limit int) ([]domain.IndexRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.IndexRecord{}
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *ledgerFake) DeleteAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *ledgerFake) last() domain.IndexRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[len(f.records)-1]
}

type modelFake struct {
	prompts []string
	answer  string
	err     error
}

func (f *modelFake) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type searcherFake struct {
	summary string
	err     error
	calls   int
}

func (f *searcherFake) Search(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}
