package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

const (
	StageRetrieve  = "retrieve"
	StageSearchWeb = "search_web"
	StageMerge     = "merge"
	StageGenerate  = "generate"
)

// Stage is one step of the answer pipeline. Run gets the state by value and
// returns the state with its own output fields filled in.
type Stage struct {
	Name string
	Run  func(ctx context.Context, state domain.PipelineState) (domain.PipelineState, error)
}

// Pipeline is a fixed, linear list of stages.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) StageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		names = append(names, stage.Name)
	}
	return names
}

func (p *Pipeline) Run(ctx context.Context, question string) (domain.PipelineState, error) {
	state := domain.PipelineState{Question: question}
	for _, stage := range p.stages {
		next, err := stage.Run(ctx, state)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

func RetrieveStage(index ports.VectorIndex, k int) Stage {
	return Stage{
		Name: StageRetrieve,
		Run: func(ctx context.Context, state domain.PipelineState) (domain.PipelineState, error) {
			passages, err := index.SimilaritySearch(ctx, state.Question, k)
			if err != nil {
				return state, domain.WrapError(domain.ErrRetrievalFailure, stageOp(StageRetrieve, state.Question), err)
			}
			local := make([]domain.Passage, len(passages))
			for i, passage := range passages {
				passage.Origin = domain.OriginLocal
				local[i] = passage
			}
			state.LocalContext = local
			return state, nil
		},
	}
}

func SearchWebStage(searcher ports.WebSearcher) Stage {
	return Stage{
		Name: StageSearchWeb,
		Run: func(ctx context.Context, state domain.PipelineState) (domain.PipelineState, error) {
			summary, err := searcher.Search(ctx, state.Question)
			if err != nil {
				return state, domain.WrapError(domain.ErrRetrievalFailure, stageOp(StageSearchWeb, state.Question), err)
			}
			state.WebContext = []domain.Passage{}
			if summary = strings.TrimSpace(summary); summary != "" {
				state.WebContext = append(state.WebContext, domain.Passage{
					Text:     summary,
					Metadata: map[string]string{domain.MetaSource: "web_search"},
					Origin:   domain.OriginWeb,
				})
			}
			return state, nil
		},
	}
}

func MergeStage() Stage {
	return Stage{
		Name: StageMerge,
		Run: func(_ context.Context, state domain.PipelineState) (domain.PipelineState, error) {
			state.MergedContext = MergeContexts(state.LocalContext, state.WebContext)
			state.Merged = true
			return state, nil
		},
	}
}

// MergeContexts concatenates local then web passages without dedup or reordering.
func MergeContexts(local, web []domain.Passage) []domain.Passage {
	out := make([]domain.Passage, 0, len(local)+len(web))
	out = append(out, local...)
	out = append(out, web...)
	return out
}

func GenerateStage(model ports.LanguageModel, summarizer ports.Summarizer, summarySentences int) Stage {
	return Stage{
		Name: StageGenerate,
		Run: func(ctx context.Context, state domain.PipelineState) (domain.PipelineState, error) {
			passages := state.GenerationContext()
			if summarizer != nil {
				passages = summarizePassages(summarizer, passages, summarySentences)
			}
			answer, err := model.Generate(ctx, BuildPrompt(state.Question, passages))
			if err != nil {
				return state, domain.WrapError(domain.ErrGenerationFailure, stageOp(StageGenerate, state.Question), err)
			}
			state.Answer = answer
			return state, nil
		},
	}
}

func summarizePassages(summarizer ports.Summarizer, passages []domain.Passage, sentences int) []domain.Passage {
	out := make([]domain.Passage, len(passages))
	for i, passage := range passages {
		if summary := summarizer.Summarize(passage.Text, sentences); summary != "" {
			passage.Text = summary
		}
		out[i] = passage
	}
	return out
}

func stageOp(stage, question string) string {
	const maxQuestion = 80
	q := question
	if r := []rune(q); len(r) > maxQuestion {
		q = string(r[:maxQuestion]) + "..."
	}
	return fmt.Sprintf("%s question=%q", stage, q)
}
