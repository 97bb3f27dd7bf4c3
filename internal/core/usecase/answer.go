package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

const defaultTopK = 4

type AnswerOptions struct {
	TopK             int
	WebSearch        bool
	SummarySentences int
}

type AnswerUseCase struct {
	pipeline *Pipeline
}

// NewAnswerUseCase builds the minimal pipeline (retrieve, generate) or, with
// WebSearch enabled and a searcher present, the extended one
// (retrieve, search_web, merge, generate). A nil summarizer sends chunks to
// the model verbatim.
func NewAnswerUseCase(
	index ports.VectorIndex,
	searcher ports.WebSearcher,
	model ports.LanguageModel,
	summarizer ports.Summarizer,
	opts AnswerOptions,
) *AnswerUseCase {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}

	stages := []Stage{RetrieveStage(index, opts.TopK)}
	if opts.WebSearch && searcher != nil {
		stages = append(stages, SearchWebStage(searcher), MergeStage())
	}
	stages = append(stages, GenerateStage(model, summarizer, opts.SummarySentences))

	return &AnswerUseCase{pipeline: NewPipeline(stages...)}
}

func (uc *AnswerUseCase) Stages() []string {
	return uc.pipeline.StageNames()
}

func (uc *AnswerUseCase) AnswerQuestion(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", errors.New("question is required"))
	}

	state, err := uc.pipeline.Run(ctx, question)
	if err != nil {
		return nil, err
	}

	contextUsed := state.GenerationContext()
	if contextUsed == nil {
		contextUsed = []domain.Passage{}
	}
	pipeline := domain.PipelineMinimal
	if state.Merged {
		pipeline = domain.PipelineExtended
	}
	return &domain.Answer{Text: state.Answer, ContextUsed: contextUsed, Pipeline: pipeline}, nil
}
