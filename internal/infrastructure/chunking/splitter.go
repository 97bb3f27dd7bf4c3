package chunking

import "github.com/kirillkom/rag-chatbot/internal/core/domain"

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Splitter cuts documents into fixed-size rune windows. Consecutive windows
// share exactly Overlap runes; nothing is trimmed.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(docs []domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			out = append(out, domain.Chunk{
				Text:        text,
				Metadata:    domain.CloneMetadata(doc.Metadata),
				ContentHash: doc.ContentHash,
				ChunkIndex:  i,
			})
		}
	}
	return out
}

func (s *Splitter) SplitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - s.Overlap
	if step <= 0 || step > size {
		step = size
	}
	out := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
