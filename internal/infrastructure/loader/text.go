package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func (l *Loader) loadText(_ context.Context, path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := decode(raw, l.encoding)
	if err != nil {
		return nil, err
	}
	return singleDocument(text, path), nil
}

// decode converts raw bytes in the named charset to UTF-8.
func decode(raw []byte, charset string) (string, error) {
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("content is not valid utf-8")
		}
		return string(raw), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q: %w", charset, err)
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(out), nil
}

// loadFallback reads unknown formats as UTF-8 text, or keeps the printable
// runs of a binary file.
func loadFallback(_ context.Context, path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(raw) {
		return singleDocument(string(raw), path), nil
	}
	return singleDocument(printableText(raw), path), nil
}

func printableText(in []byte) string {
	var out bytes.Buffer
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == '\n' || r == '\t' || r >= 32 && r != 127 {
			out.WriteRune(r)
		}
	}
	return out.String()
}
