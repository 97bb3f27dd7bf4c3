package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Frequency is an extractive summarizer: sentences are ranked by the
// normalized frequency of their non-stopword tokens and the best ones are
// returned in their original order.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: englishStopwords()}
}

func (f *Frequency) Summarize(text string, maxSentences int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if maxSentences <= 0 {
		maxSentences = 3
	}

	sentences := splitSentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	tokenized := make([][]string, len(sentences))
	weights := map[string]float64{}
	for i, sentence := range sentences {
		tokenized[i] = f.tokens(sentence)
		for _, tok := range tokenized[i] {
			weights[tok]++
		}
	}
	var peak float64
	for _, w := range weights {
		peak = math.Max(peak, w)
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, toks := range tokenized {
		var score float64
		for _, tok := range toks {
			score += weights[tok] / peak
		}
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		ranked[i] = scored{idx: i, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picked := make([]int, 0, maxSentences)
	for _, r := range ranked[:maxSentences] {
		picked = append(picked, r.idx)
	}
	sort.Ints(picked)

	out := make([]string, 0, len(picked))
	for _, idx := range picked {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}

// splitSentences keeps a trailing fragment without terminal punctuation.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		rest = text[loc[1]:]
	}
	if tail := strings.TrimSpace(rest); tail != "" {
		out = append(out, tail)
	}
	return out
}

func (f *Frequency) tokens(sentence string) []string {
	all := tokenPattern.FindAllString(strings.ToLower(sentence), -1)
	out := all[:0]
	for _, tok := range all {
		if _, stop := f.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func englishStopwords() map[string]struct{} {
	words := strings.Fields(`a an the and or but if then else for to of in on at by with as
is are was were be been being it its this that these those from up down over under
again further than so such into about between through during before after above
below out off own same too very can will just don should now i you he she we they`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
