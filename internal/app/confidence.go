package app

import (
	"regexp"
	"strings"

	"corpusqa/internal/model"
)

// LowConfidenceThreshold gates answers: below it the generated text is
// discarded and replaced with LowConfidenceMessage.
const LowConfidenceThreshold = 0.45

const (
	// LowConfidenceMessage replaces the model's own text when confidence
	// falls below the threshold.
	LowConfidenceMessage = "I could not find enough reliable information in the corpus to answer this question confidently. Please try rephrasing or narrowing the question."
	// NoSourcesMessage is returned when retrieval finds nothing at all.
	NoSourcesMessage = "I could not find any relevant sources for this question in the corpus."
	// GenerationFailedMessage is returned when the generation model is
	// unreachable.
	GenerationFailedMessage = "I'm sorry, I was unable to generate an answer right now. Please try again later."
)

// citationPattern matches document markers like [2] and figure markers
// like [F1], which the prompt instructs the model to emit.
var citationPattern = regexp.MustCompile(`\[([Ff]?\d+)\]`)

var refusalPhrases = []string{
	"i don't know",
	"i don’t know",
}

// ScoreConfidence derives a confidence value in [0,1] for an answer over
// its top retrieved results. Rules in order: zero results is always 0;
// a refusal phrase caps at 0.2; missing citations cap at 0.3; otherwise
// the mean relevance of the top three results (capped at 0.9) plus a
// small bonus per distinct citation (capped at 0.1).
func ScoreConfidence(answerText string, topResults []model.SearchResult) float64 {
	if len(topResults) == 0 {
		return 0.0
	}

	lowered := strings.ToLower(answerText)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lowered, phrase) {
			return 0.2
		}
	}

	distinct := distinctCitations(answerText)
	if distinct == 0 {
		return 0.3
	}

	n := len(topResults)
	if n > 3 {
		n = 3
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += topResults[i].Score
	}
	base := sum / float64(n)
	if base > 0.9 {
		base = 0.9
	}
	bonus := 0.03 * float64(distinct)
	if bonus > 0.1 {
		bonus = 0.1
	}
	confidence := base + bonus
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func distinctCitations(text string) int {
	seen := make(map[string]struct{})
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		seen[strings.ToUpper(m[1])] = struct{}{}
	}
	return len(seen)
}
