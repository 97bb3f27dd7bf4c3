package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

type storageFake struct {
	saved    map[string]string
	saveErr  error
	clearErr error
	cleared  bool
}

func (f *storageFake) Save(_ context.Context, key string, body io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(data)
	return "/uploads/" + key, nil
}

func (f *storageFake) Clear(context.Context) error {
	f.cleared = true
	return f.clearErr
}

func TestClearAllWipesIndexStorageAndLedger(t *testing.T) {
	index := &indexFake{entries: []domain.IndexedEntry{{Chunk: domain.Chunk{ContentHash: "h"}}}}
	ledger := &ledgerFake{records: []domain.IndexRecord{{ContentHash: "h"}}}
	storage := &storageFake{}
	uc := NewAdminUseCase(index, ledger, storage)

	if err := uc.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if !index.cleared || len(index.entries) != 0 {
		t.Fatalf("expected index cleared")
	}
	if !storage.cleared {
		t.Fatalf("expected storage cleared")
	}
	if len(ledger.records) != 0 {
		t.Fatalf("expected ledger cleared, got %d records", len(ledger.records))
	}
}

func TestClearAllReportsStorageFailureAfterClearingIndex(t *testing.T) {
	index := &indexFake{}
	storage := &storageFake{clearErr: errors.New("permission denied")}
	uc := NewAdminUseCase(index, nil, storage)

	err := uc.ClearAll(context.Background())
	if !domain.IsKind(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if !index.cleared {
		t.Fatalf("index should be cleared even when storage fails")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected cause in error, got %v", err)
	}
}

func TestGetRecord(t *testing.T) {
	ledger := &ledgerFake{records: []domain.IndexRecord{
		{ContentHash: "abc", Status: domain.IndexStatusProcessing},
		{ContentHash: "abc", Status: domain.IndexStatusReady, Chunks: 3},
	}}
	uc := NewAdminUseCase(&indexFake{}, ledger, nil)

	rec, err := uc.GetRecord(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Status != domain.IndexStatusReady || rec.Chunks != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := uc.GetRecord(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := uc.GetRecord(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetRecordWithoutLedger(t *testing.T) {
	uc := NewAdminUseCase(&indexFake{}, nil, nil)
	if _, err := uc.GetRecord(context.Background(), "abc"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecordsClampsLimit(t *testing.T) {
	ledger := &ledgerFake{}
	for i := 0; i < 150; i++ {
		ledger.records = append(ledger.records, domain.IndexRecord{ContentHash: "h"})
	}
	uc := NewAdminUseCase(&indexFake{}, ledger, nil)

	records, err := uc.ListRecords(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 100 {
		t.Fatalf("expected default limit of 100, got %d", len(records))
	}
	records, _ = uc.ListRecords(context.Background(), 5)
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
}
