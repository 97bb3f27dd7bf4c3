package ports

import (
	"context"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// DocumentIndexer is the inbound contract for turning a path or URL into indexed entries.
type DocumentIndexer interface {
	CreateIndex(ctx context.Context, locator string) (*domain.IndexReport, error)
}

// QuestionAnswerer is the inbound contract for one retrieval-generation turn.
type QuestionAnswerer interface {
	AnswerQuestion(ctx context.Context, question string) (*domain.Answer, error)
}

// IndexAdmin exposes ledger reads and the wipe operation.
type IndexAdmin interface {
	GetRecord(ctx context.Context, contentHash string) (*domain.IndexRecord, error)
	ListRecords(ctx context.Context, limit int) ([]domain.IndexRecord, error)
	ClearAll(ctx context.Context) error
}
