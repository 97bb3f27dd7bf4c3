package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

const defaultHTTPTimeout = 30 * time.Second

type Options struct {
	// Encoding names the charset of .txt and .csv files (WHATWG label, e.g.
	// "utf-8", "windows-1251"). Empty means utf-8.
	Encoding    string
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
}

type fileParser func(ctx context.Context, path string) ([]domain.Document, error)

// Loader turns a filesystem path or an http(s) URL into documents.
type Loader struct {
	encoding   string
	httpClient *http.Client
	parsers    map[string]fileParser
}

func New(opts Options) *Loader {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = defaultHTTPTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.HTTPTimeout}
	}
	l := &Loader{
		encoding:   strings.TrimSpace(opts.Encoding),
		httpClient: client,
	}
	l.parsers = map[string]fileParser{
		".pdf":  loadPDFFile,
		".txt":  l.loadText,
		".text": l.loadText,
		".md":   loadMarkdown,
		".html": loadHTMLFile,
		".htm":  loadHTMLFile,
		".json": loadJSON,
		".docx": loadDOCX,
		".csv":  l.loadCSV,
		".xlsx": loadXLSX,
	}
	return l
}

func (l *Loader) Load(ctx context.Context, locator string) ([]domain.Document, error) {
	locator = strings.TrimSpace(locator)
	if isURL(locator) {
		docs, err := l.loadURL(ctx, locator)
		if err != nil {
			return nil, domain.WrapError(domain.ErrLoadFailure, "load url", err)
		}
		return docs, nil
	}

	info, err := os.Stat(locator)
	if err != nil || !info.Mode().IsRegular() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load", fmt.Errorf("invalid path or url: %q", locator))
	}

	ext := strings.ToLower(filepath.Ext(locator))
	parse, ok := l.parsers[ext]
	if !ok {
		parse = loadFallback
	}
	docs, err := parse(ctx, locator)
	if err != nil {
		return nil, domain.WrapError(domain.ErrLoadFailure, "load file", fmt.Errorf("%s: %w", locator, err))
	}
	return docs, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func newDocument(content, source string) domain.Document {
	return domain.Document{
		Content:  content,
		Metadata: map[string]string{domain.MetaSource: source},
	}
}

// singleDocument returns nil for blank content so empty files load as zero documents.
func singleDocument(content, source string) []domain.Document {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return []domain.Document{newDocument(content, source)}
}
