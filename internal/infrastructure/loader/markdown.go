package loader

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

var (
	mdFence      = regexp.MustCompile("(?m)^```[^\n]*$")
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdQuote      = regexp.MustCompile(`(?m)^>\s?`)
	mdRule       = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	mdBullet     = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|\*|~~)([^\s*~](?:[^*~\n]*?[^\s*~])?)(\*\*|\*|~~)`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdBlankRuns  = regexp.MustCompile(`\n{3,}`)
)

// loadMarkdown keeps the text of a markdown file and drops its syntax. Code
// block contents are kept; only the fences go.
func loadMarkdown(_ context.Context, path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return singleDocument(stripMarkdown(string(raw)), path), nil
}

func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = mdFence.ReplaceAllString(s, "")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	s = mdBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
