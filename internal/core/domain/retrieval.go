package domain

type PassageOrigin string

const (
	OriginLocal PassageOrigin = "local"
	OriginWeb   PassageOrigin = "web"
)

// Passage is a piece of context handed to answer generation.
type Passage struct {
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	Score       float64           `json:"score"`
	Origin      PassageOrigin     `json:"origin"`
}

// PipelineState is threaded by value through the answer pipeline stages.
// Each field after Question is written once by its producing stage.
type PipelineState struct {
	Question      string
	LocalContext  []Passage
	WebContext    []Passage
	MergedContext []Passage
	Merged        bool
	Answer        string
}

// GenerationContext is the context the generate stage reads: the merged
// context when the merge stage ran, otherwise the local context.
func (s PipelineState) GenerationContext() []Passage {
	if s.Merged {
		return s.MergedContext
	}
	return s.LocalContext
}

const (
	PipelineMinimal  = "minimal"
	PipelineExtended = "extended"
)

type Answer struct {
	Text        string    `json:"answer"`
	ContextUsed []Passage `json:"context_used"`
	// Pipeline names the variant that produced the answer.
	Pipeline string `json:"-"`
}
