package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func loadDOCX(_ context.Context, path string) ([]domain.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, "word/document.xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		text, err := wordprocessingText(rc)
		if err != nil {
			return nil, err
		}
		return singleDocument(text, path), nil
	}
	return nil, errors.New("word/document.xml not found")
}

// wordprocessingText walks WordprocessingML text runs. Paragraphs and table
// rows end lines, table cells are tab separated.
func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	atLineStart := true
	newline := func() {
		if !atLineStart {
			sb.WriteByte('\n')
			atLineStart = true
		}
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t", "instrText":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return "", err
				}
				sb.WriteString(text)
				atLineStart = false
			case "tab":
				sb.WriteByte('\t')
				atLineStart = false
			case "br", "cr":
				sb.WriteByte('\n')
				atLineStart = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p", "tr":
				newline()
			case "tc":
				if !atLineStart {
					sb.WriteByte('\t')
				}
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
