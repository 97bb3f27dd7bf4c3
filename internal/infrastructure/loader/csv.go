package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// loadCSV emits one document per data row, rendered as "header: value" lines.
func (l *Loader) loadCSV(_ context.Context, path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := decode(raw, l.encoding)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var docs []domain.Document
	for row := 0; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(record))
		for i, value := range record {
			key := strconv.Itoa(i)
			if i < len(header) {
				key = header[i]
			}
			lines = append(lines, key+": "+strings.TrimSpace(value))
		}
		doc := newDocument(strings.Join(lines, "\n"), path)
		doc.Metadata[domain.MetaRow] = strconv.Itoa(row)
		docs = append(docs, doc)
	}
	return docs, nil
}
