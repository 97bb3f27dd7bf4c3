package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

type HashMode string

const (
	// HashByContent keys documents by their normalized loaded text.
	HashByContent HashMode = "content"
	// HashByLocator keys documents by the path or URL string.
	HashByLocator HashMode = "locator"
)

func ParseHashMode(raw string) HashMode {
	switch HashMode(strings.ToLower(strings.TrimSpace(raw))) {
	case HashByLocator:
		return HashByLocator
	default:
		return HashByContent
	}
}

func HashLocator(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:])
}

// HashContent is stable across line-ending and surrounding whitespace changes.
func HashContent(docs []domain.Document) string {
	h := sha256.New()
	for i, doc := range docs {
		if i > 0 {
			_, _ = h.Write([]byte{0x1e})
		}
		_, _ = h.Write([]byte(normalizeContent(doc.Content)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
