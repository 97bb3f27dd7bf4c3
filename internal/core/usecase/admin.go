package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

type AdminUseCase struct {
	index   ports.VectorIndex
	ledger  ports.IndexLedger
	storage ports.ObjectStorage
}

func NewAdminUseCase(index ports.VectorIndex, ledger ports.IndexLedger, storage ports.ObjectStorage) *AdminUseCase {
	if ledger == nil {
		ledger = noopLedger{}
	}
	return &AdminUseCase{index: index, ledger: ledger, storage: storage}
}

func (uc *AdminUseCase) GetRecord(ctx context.Context, contentHash string) (*domain.IndexRecord, error) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get index record", errors.New("content hash is required"))
	}
	return uc.ledger.GetByHash(ctx, contentHash)
}

const defaultRecordLimit = 100

func (uc *AdminUseCase) ListRecords(ctx context.Context, limit int) ([]domain.IndexRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultRecordLimit
	}
	records, err := uc.ledger.List(ctx, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, "list index records", err)
	}
	return records, nil
}

// ClearAll wipes every store it knows about and joins whatever errors occur.
func (uc *AdminUseCase) ClearAll(ctx context.Context) error {
	var errs []error
	if err := uc.index.Clear(ctx); err != nil {
		errs = append(errs, domain.WrapError(domain.ErrStoreFailure, "clear vector index", err))
	}
	if uc.storage != nil {
		if err := uc.storage.Clear(ctx); err != nil {
			errs = append(errs, domain.WrapError(domain.ErrStoreFailure, "clear uploads", err))
		}
	}
	if err := uc.ledger.DeleteAll(ctx); err != nil {
		errs = append(errs, domain.WrapError(domain.ErrStoreFailure, "clear ledger", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("clear all: %w", errors.Join(errs...))
	}
	return nil
}
