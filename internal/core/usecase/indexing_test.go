package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func newIndexingForTest(loader *loaderFake, embedder *embedderFake, index *indexFake, ledger *ledgerFake, mode HashMode) *IndexingUseCase {
	return NewIndexingUseCase(loader, wordChunker{}, embedder, index, ledger, mode)
}

func TestCreateIndexTagsChunksWithHashAndIndex(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "alpha beta gamma"}}}
	index := &indexFake{}
	ledger := &ledgerFake{}
	uc := newIndexingForTest(loader, &embedderFake{}, index, ledger, HashByContent)

	report, err := uc.CreateIndex(context.Background(), "docs/a.txt")
	if err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if report.Skipped || report.Chunks != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ContentHash != HashContent([]domain.Document{{Content: "alpha beta gamma"}}) {
		t.Fatalf("expected content hash, got %s", report.ContentHash)
	}
	for i, entry := range index.entries {
		if entry.Chunk.ContentHash != report.ContentHash {
			t.Fatalf("entry %d not tagged with hash: %+v", i, entry.Chunk)
		}
		if entry.Chunk.ChunkIndex != i || entry.Chunk.Metadata[domain.MetaChunkIndex] != strconv.Itoa(i) {
			t.Fatalf("entry %d has wrong chunk index: %+v", i, entry.Chunk)
		}
		if entry.Chunk.Metadata[domain.MetaSource] != "docs/a.txt" {
			t.Fatalf("entry %d lost source metadata: %+v", i, entry.Chunk.Metadata)
		}
		if len(entry.Vector) == 0 {
			t.Fatalf("entry %d has no vector", i)
		}
	}
	if got := ledger.last().Status; got != domain.IndexStatusReady {
		t.Fatalf("expected ledger status ready, got %s", got)
	}
}

func TestCreateIndexTwiceIndexesOnce(t *testing.T) {
	for _, mode := range []HashMode{HashByContent, HashByLocator} {
		t.Run(string(mode), func(t *testing.T) {
			loader := &loaderFake{docs: []domain.Document{{Content: "one two"}}}
			index := &indexFake{}
			uc := newIndexingForTest(loader, &embedderFake{}, index, &ledgerFake{}, mode)

			first, err := uc.CreateIndex(context.Background(), "docs/a.txt")
			if err != nil {
				t.Fatalf("first CreateIndex() error = %v", err)
			}
			second, err := uc.CreateIndex(context.Background(), "docs/a.txt")
			if err != nil {
				t.Fatalf("second CreateIndex() error = %v", err)
			}
			if !second.Skipped {
				t.Fatalf("expected second call to be skipped")
			}
			if index.addCalls != 1 {
				t.Fatalf("expected one add call, got %d", index.addCalls)
			}
			if got := index.countByHash(first.ContentHash); got != 2 {
				t.Fatalf("expected exactly one set of 2 entries, got %d", got)
			}
		})
	}
}

func TestCreateIndexLocatorModeSkipsLoadingOnHit(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "one two"}}}
	uc := newIndexingForTest(loader, &embedderFake{}, &indexFake{}, &ledgerFake{}, HashByLocator)

	report, err := uc.CreateIndex(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if report.ContentHash != HashLocator("https://example.com/a") {
		t.Fatalf("expected locator hash, got %s", report.ContentHash)
	}
	if _, err := uc.CreateIndex(context.Background(), "https://example.com/a"); err != nil {
		t.Fatalf("second CreateIndex() error = %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader to run once, got %d", loader.calls)
	}
}

func TestCreateIndexSameContentDifferentLocatorsIndexedOnce(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "shared text"}}}
	index := &indexFake{}
	uc := newIndexingForTest(loader, &embedderFake{}, index, &ledgerFake{}, HashByContent)

	if _, err := uc.CreateIndex(context.Background(), "a.txt"); err != nil {
		t.Fatalf("CreateIndex(a) error = %v", err)
	}
	report, err := uc.CreateIndex(context.Background(), "copy/of/a.txt")
	if err != nil {
		t.Fatalf("CreateIndex(copy) error = %v", err)
	}
	if !report.Skipped || index.addCalls != 1 {
		t.Fatalf("expected identical content to be skipped, report=%+v adds=%d", report, index.addCalls)
	}
}

func TestCreateIndexEmptyLocator(t *testing.T) {
	uc := newIndexingForTest(&loaderFake{}, &embedderFake{}, &indexFake{}, &ledgerFake{}, HashByContent)
	_, err := uc.CreateIndex(context.Background(), "  ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateIndexWrapsLoadFailureWithLocator(t *testing.T) {
	loader := &loaderFake{err: errors.New("corrupt pdf")}
	uc := newIndexingForTest(loader, &embedderFake{}, &indexFake{}, &ledgerFake{}, HashByLocator)

	_, err := uc.CreateIndex(context.Background(), "docs/broken.pdf")
	if !domain.IsKind(err, domain.ErrLoadFailure) {
		t.Fatalf("expected ErrLoadFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "docs/broken.pdf") || !strings.Contains(err.Error(), "load") {
		t.Fatalf("expected stage and locator in error, got %v", err)
	}
}

func TestCreateIndexKeepsInvalidInputFromLoader(t *testing.T) {
	loader := &loaderFake{err: domain.WrapError(domain.ErrInvalidInput, "load", errors.New("no such file"))}
	uc := newIndexingForTest(loader, &embedderFake{}, &indexFake{}, &ledgerFake{}, HashByContent)

	_, err := uc.CreateIndex(context.Background(), "missing.txt")
	if !domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrLoadFailure) {
		t.Fatalf("expected only ErrInvalidInput, got %v", err)
	}
}

func TestCreateIndexRejectsDocumentWithoutText(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "   "}}}
	index := &indexFake{}
	uc := newIndexingForTest(loader, &embedderFake{}, index, &ledgerFake{}, HashByContent)

	_, err := uc.CreateIndex(context.Background(), "blank.txt")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if index.addCalls != 0 {
		t.Fatalf("expected no add call")
	}
}

func TestCreateIndexEmbeddingMismatchMarksFailed(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "a b"}}}
	index := &indexFake{}
	ledger := &ledgerFake{}
	uc := newIndexingForTest(loader, &embedderFake{short: true}, index, ledger, HashByContent)

	_, err := uc.CreateIndex(context.Background(), "a.txt")
	if !domain.IsKind(err, domain.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
	if index.addCalls != 0 {
		t.Fatalf("expected no add call after embedding failure")
	}
	last := ledger.last()
	if last.Status != domain.IndexStatusFailed || last.Error == "" {
		t.Fatalf("expected failed ledger record, got %+v", last)
	}
}

func TestCreateIndexAddFailureLeavesNothingIndexed(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "a b"}}}
	index := &indexFake{addErr: errors.New("disk full")}
	uc := newIndexingForTest(loader, &embedderFake{}, index, &ledgerFake{}, HashByContent)

	_, err := uc.CreateIndex(context.Background(), "a.txt")
	if !domain.IsKind(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	exists, _ := index.Exists(context.Background(), HashContent([]domain.Document{{Content: "a b"}}))
	if exists {
		t.Fatalf("expected document to stay unindexed after failed add")
	}
}

func TestCreateIndexLedgerFailureDoesNotFailPipeline(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "a b"}}}
	uc := newIndexingForTest(loader, &embedderFake{}, &indexFake{}, &ledgerFake{err: errors.New("db down")}, HashByContent)

	if _, err := uc.CreateIndex(context.Background(), "a.txt"); err != nil {
		t.Fatalf("expected ledger errors to be ignored, got %v", err)
	}
}

func TestCreateIndexConcurrentIdenticalInputsWriteOnce(t *testing.T) {
	loader := &loaderFake{docs: []domain.Document{{Content: "x y z"}}}
	index := &indexFake{}
	uc := newIndexingForTest(loader, &embedderFake{delay: 10 * time.Millisecond}, index, &ledgerFake{}, HashByContent)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.CreateIndex(context.Background(), "same.txt"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if index.addCalls != 1 {
		t.Fatalf("expected exactly one add, got %d", index.addCalls)
	}
}
