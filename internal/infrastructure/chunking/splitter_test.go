package chunking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func TestSplitTextCountsAndOverlap(t *testing.T) {
	s := NewSplitter(0, 200)
	text := strings.Repeat("abcdefghij", 300) // 3000 runes

	chunks := s.SplitText(text)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		a := []rune(chunks[i])
		b := []rune(chunks[i+1])
		if len(a) != 1000 {
			t.Fatalf("chunk %d: expected 1000 runes, got %d", i, len(a))
		}
		if string(a[len(a)-200:]) != string(b[:200]) {
			t.Fatalf("chunk %d and %d do not share 200 runes", i, i+1)
		}
	}
	if got := len([]rune(chunks[3])); got != 600 {
		t.Fatalf("expected last chunk of 600 runes, got %d", got)
	}
}

func TestSplitTextCountFormula(t *testing.T) {
	s := NewSplitter(100, 20)
	for _, n := range []int{1, 99, 100, 101, 180, 181, 500, 1001} {
		got := len(s.SplitText(strings.Repeat("x", n)))
		want := 1
		if n > 100 {
			want = (n - 20 + 79) / 80
		}
		if got != want {
			t.Fatalf("len=%d: expected %d chunks, got %d", n, want, got)
		}
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	s := NewSplitter(4, 1)
	got := s.SplitText("привет мир")
	want := []string{"прив", "вет ", " мир"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	s := NewSplitter(10, 2)
	if chunks := s.Split([]domain.Document{{Content: ""}}); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplitCopiesMetadataAndIsDeterministic(t *testing.T) {
	s := NewSplitter(10, 2)
	docs := []domain.Document{
		{Content: strings.Repeat("a", 25), Metadata: map[string]string{domain.MetaSource: "a.txt"}, ContentHash: "h1"},
		{Content: "short", Metadata: map[string]string{domain.MetaSource: "b.txt", domain.MetaPage: "2"}, ContentHash: "h1"},
	}

	first := s.Split(docs)
	second := s.Split(docs)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("split is not deterministic")
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(first))
	}
	if first[2].ChunkIndex != 2 || first[3].ChunkIndex != 0 {
		t.Fatalf("chunk index should restart per document: %+v", first)
	}
	if first[3].Metadata[domain.MetaPage] != "2" || first[3].ContentHash != "h1" {
		t.Fatalf("metadata not copied: %+v", first[3])
	}

	first[0].Metadata["mutated"] = "yes"
	if _, ok := docs[0].Metadata["mutated"]; ok {
		t.Fatalf("chunk metadata must not alias document metadata")
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	if s.Overlap >= s.ChunkSize {
		t.Fatalf("overlap must stay below chunk size, got %d/%d", s.Overlap, s.ChunkSize)
	}
}

func TestSplitTextLiteralWithOverlapNotBelowSizeTerminates(t *testing.T) {
	for _, s := range []*Splitter{
		{ChunkSize: 10, Overlap: 10},
		{ChunkSize: 10, Overlap: 25},
		{ChunkSize: 0, Overlap: 0},
	} {
		chunks := s.SplitText(strings.Repeat("x", 35))
		if len(chunks) == 0 {
			t.Fatalf("expected chunks for %+v", *s)
		}
		if got := len([]rune(strings.Join(chunks, ""))); got != 35 {
			t.Fatalf("expected windows to cover the text once for %+v, got %d runes", *s, got)
		}
	}
}
