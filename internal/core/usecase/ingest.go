package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

// UploadResult describes where an uploaded file went and what happened to it.
type UploadResult struct {
	Filename string              `json:"filename"`
	Locator  string              `json:"locator"`
	Queued   bool                `json:"queued"`
	Report   *domain.IndexReport `json:"report,omitempty"`
}

type UploadUseCase struct {
	storage     ports.ObjectStorage
	indexer     ports.DocumentIndexer
	queue       ports.MessageQueue
	stableNames bool
}

type UploadOption func(*UploadUseCase)

// WithStableUploadNames stores each upload under its sanitized filename, so a
// re-upload lands on the same path. Locator hashing needs this to detect
// duplicates.
func WithStableUploadNames() UploadOption {
	return func(uc *UploadUseCase) { uc.stableNames = true }
}

// NewUploadUseCase wires uploads to the indexer. With a non-nil queue, uploads
// are handed to the worker instead of being indexed inline.
func NewUploadUseCase(storage ports.ObjectStorage, indexer ports.DocumentIndexer, queue ports.MessageQueue, opts ...UploadOption) *UploadUseCase {
	uc := &UploadUseCase{
		storage: storage,
		indexer: indexer,
		queue:   queue,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UploadUseCase) UploadFile(ctx context.Context, filename string, body io.Reader) (*UploadResult, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload file", errors.New("filename is required"))
	}
	// The extension drives loader dispatch, so it is always kept.
	key := sanitizeFilename(filename)
	if !uc.stableNames {
		key = fmt.Sprintf("%s_%s", uuid.NewString()[:8], key)
	}
	path, err := uc.storage.Save(ctx, key, body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, "save upload", err)
	}

	result, err := uc.submit(ctx, path)
	if err != nil {
		return nil, err
	}
	result.Filename = filename
	return result, nil
}

func (uc *UploadUseCase) SubmitLocator(ctx context.Context, locator string, async bool) (*UploadResult, error) {
	if async && uc.queue != nil {
		if err := uc.queue.PublishIndexRequest(ctx, locator); err != nil {
			return nil, fmt.Errorf("publish index request: %w", err)
		}
		return &UploadResult{Locator: locator, Queued: true}, nil
	}
	report, err := uc.indexer.CreateIndex(ctx, locator)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Locator: locator, Report: report}, nil
}

func (uc *UploadUseCase) submit(ctx context.Context, locator string) (*UploadResult, error) {
	return uc.SubmitLocator(ctx, locator, uc.queue != nil)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
