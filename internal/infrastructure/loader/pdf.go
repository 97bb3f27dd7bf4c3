package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func loadPDFFile(_ context.Context, path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return parsePDF(f, info.Size(), path)
}

// parsePDF emits one document per page with a 0-based page number. Pages
// without extractable text are skipped.
func parsePDF(r io.ReaderAt, size int64, source string) (docs []domain.Document, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			docs, err = nil, fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if text == "" {
			continue
		}
		doc := newDocument(text, source)
		doc.Metadata[domain.MetaPage] = strconv.Itoa(i - 1)
		docs = append(docs, doc)
	}
	return docs, nil
}
