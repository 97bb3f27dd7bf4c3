package domain

import "time"

// Metadata keys shared by loaders, the vector index and the HTTP adapter.
const (
	MetaSource      = "source"
	MetaPage        = "page"
	MetaRow         = "row"
	MetaSeqNum      = "seq_num"
	MetaSheet       = "sheet"
	MetaTitle       = "title"
	MetaContentHash = "content_hash"
	MetaChunkIndex  = "chunk_index"
)

// Document is one unit of loaded content, e.g. a PDF page or a CSV row.
type Document struct {
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"content_hash,omitempty"`
}

// Source returns the provenance locator recorded by the loader.
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

type Chunk struct {
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"content_hash"`
	ChunkIndex  int               `json:"chunk_index"`
}

type IndexedEntry struct {
	Chunk  Chunk
	Vector []float32
}

type IndexStatus string

const (
	IndexStatusProcessing IndexStatus = "processing"
	IndexStatusReady      IndexStatus = "ready"
	IndexStatusFailed     IndexStatus = "failed"
	IndexStatusSkipped    IndexStatus = "skipped"
)

// IndexRecord is the ledger view of one create-index run.
type IndexRecord struct {
	ContentHash string      `json:"content_hash"`
	Locator     string      `json:"locator"`
	Status      IndexStatus `json:"status"`
	Chunks      int         `json:"chunks"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type IndexReport struct {
	Locator     string `json:"locator"`
	ContentHash string `json:"content_hash"`
	Chunks      int    `json:"chunks"`
	Skipped     bool   `json:"skipped"`
}

// CloneMetadata returns a copy so chunks never alias their parent's map.
func CloneMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
