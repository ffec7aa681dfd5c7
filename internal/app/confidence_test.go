package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corpusqa/internal/model"
)

func results(scores ...float64) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(scores))
	for _, s := range scores {
		out = append(out, model.SearchResult{Score: s, Payload: model.Payload{}})
	}
	return out
}

func TestScoreConfidenceNoResults(t *testing.T) {
	assert.Equal(t, 0.0, ScoreConfidence("LTP is a form of synaptic plasticity [1].", nil))
}

func TestScoreConfidenceRefusal(t *testing.T) {
	assert.Equal(t, 0.2, ScoreConfidence("I don't know the answer to that. [1]", results(0.9)))
	assert.Equal(t, 0.2, ScoreConfidence("Honestly, I don’t know.", results(0.9)))
}

func TestScoreConfidenceNoCitations(t *testing.T) {
	assert.Equal(t, 0.3, ScoreConfidence("LTP strengthens synapses over time.", results(0.9, 0.8)))
}

func TestScoreConfidenceMeanOfTopThree(t *testing.T) {
	// Mean of the top three (0.9, 0.6, 0.3) = 0.6, plus one citation.
	got := ScoreConfidence("LTP strengthens synapses [1].", results(0.9, 0.6, 0.3, 0.1))
	assert.InDelta(t, 0.63, got, 1e-9)
}

func TestScoreConfidenceBaseCap(t *testing.T) {
	// Base caps at 0.9 even with perfect relevance.
	got := ScoreConfidence("Answer [1].", results(1.0, 1.0, 1.0))
	assert.InDelta(t, 0.93, got, 1e-9)
}

func TestScoreConfidenceCitationBonusDistinctAndCapped(t *testing.T) {
	// Four distinct citations cap the bonus at 0.1; repeats count once.
	got := ScoreConfidence("A [1] B [2] C [3] D [4] E [1]", results(0.5, 0.5, 0.5))
	assert.InDelta(t, 0.6, got, 1e-9)

	got = ScoreConfidence("A [1] B [1] C [1]", results(0.5, 0.5, 0.5))
	assert.InDelta(t, 0.53, got, 1e-9)
}

func TestScoreConfidenceFigureCitations(t *testing.T) {
	// An answer grounded only in a figure still counts as cited.
	got := ScoreConfidence("The circuit is shown in [F1].", results(0.8, 0.7))
	assert.InDelta(t, 0.78, got, 1e-9)

	// Figure and document markers are distinct; case folds.
	got = ScoreConfidence("See [1] and [F1], also [f1].", results(0.5, 0.5))
	assert.InDelta(t, 0.56, got, 1e-9)
}

func TestScoreConfidenceFewerThanThreeResults(t *testing.T) {
	got := ScoreConfidence("Answer [1].", results(0.8))
	assert.InDelta(t, 0.83, got, 1e-9)
}

func TestLowConfidenceGate(t *testing.T) {
	assert.Less(t, ScoreConfidence("No idea, I don't know. [1]", results(0.9)), LowConfidenceThreshold)
	assert.GreaterOrEqual(t, ScoreConfidence("Answer [1].", results(0.9, 0.9)), LowConfidenceThreshold)
}
