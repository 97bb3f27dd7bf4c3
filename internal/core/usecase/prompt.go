package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

const ragPromptTemplate = `You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question. If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise.
Question: %s
Context: %s
Answer:`

// BuildPrompt is pure: the same question and passages always give the same text.
func BuildPrompt(question string, passages []domain.Passage) string {
	texts := make([]string, 0, len(passages))
	for _, passage := range passages {
		texts = append(texts, passage.Text)
	}
	return fmt.Sprintf(ragPromptTemplate, question, strings.Join(texts, "\n\n"))
}
