package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// loadJSON emits one document per value produced by jq's `.[]`: the
// elements of a top-level array or the values of a top-level object, in
// document order. String values are used as-is, anything else is
// re-encoded as compact JSON.
func loadJSON(_ context.Context, path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	values, err := iterateJSON(raw)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(values))
	for i, value := range values {
		content, err := jsonContent(value)
		if err != nil {
			return nil, err
		}
		doc := newDocument(content, path)
		doc.Metadata[domain.MetaSeqNum] = strconv.Itoa(i + 1)
		docs = append(docs, doc)
	}
	return docs, nil
}

func iterateJSON(raw []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return nil, fmt.Errorf("cannot iterate over top-level %v", tok)
	}

	var out []json.RawMessage
	for dec.More() {
		if delim == '{' {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("parse json key: %w", err)
			}
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse json value: %w", err)
		}
		out = append(out, value)
	}
	return out, nil
}

func jsonContent(value json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return "", err
	}
	return compact.String(), nil
}
