package httpadapter

import (
	"net/http"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrLoadFailure):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrEmbeddingFailure),
		domain.IsKind(err, domain.ErrRetrievalFailure),
		domain.IsKind(err, domain.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
