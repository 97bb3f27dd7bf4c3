package loader

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// loadXLSX emits one document per non-empty sheet. The first row is treated
// as a header and every later row is written as "header: value" pairs.
func loadXLSX(_ context.Context, path string) ([]domain.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var docs []domain.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		header := rows[0]
		var sb strings.Builder
		sb.WriteString("Sheet: " + sheet + "\n")
		if len(rows) == 1 {
			sb.WriteString(strings.Join(header, "\t"))
		}
		for _, row := range rows[1:] {
			pairs := make([]string, 0, len(row))
			for i, value := range row {
				if strings.TrimSpace(value) == "" {
					continue
				}
				key := ""
				if i < len(header) {
					key = header[i]
				}
				if key == "" {
					key, _ = excelize.ColumnNumberToName(i + 1)
				}
				pairs = append(pairs, key+": "+value)
			}
			if len(pairs) > 0 {
				sb.WriteString(strings.Join(pairs, "; ") + "\n")
			}
		}
		doc := newDocument(strings.TrimSpace(sb.String()), path)
		doc.Metadata[domain.MetaSheet] = sheet
		docs = append(docs, doc)
	}
	return docs, nil
}
