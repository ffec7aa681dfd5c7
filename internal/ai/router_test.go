package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"corpusqa/internal/model"
)

var testTiers = map[string]string{
	"small":   "mini-model",
	"default": "mid-model",
	"large":   "big-model",
}

func TestSelectModelShortSimpleQuery(t *testing.T) {
	router := NewModelRouter(testTiers)
	assert.Equal(t, "mini-model", router.SelectModel("what is a neuron", nil, ""))
}

func TestSelectModelComplexityTerms(t *testing.T) {
	router := NewModelRouter(testTiers)

	// Two vocabulary matches plus a longer question land in the default band.
	got := router.SelectModel("explain how neurotransmitters are released from the presynaptic terminal during an action potential", nil, "")
	assert.Equal(t, "mid-model", got)

	// Several matches plus a long question push into large.
	query := "compare and contrast the mechanism and signaling pathway of long term potentiation with long term depression in area CA1 of the adult rodent hippocampus during associative learning"
	got = router.SelectModel(query, nil, "")
	assert.Equal(t, "big-model", got)
}

func TestSelectModelHonorsRequestedTier(t *testing.T) {
	router := NewModelRouter(testTiers)

	assert.Equal(t, "big-model", router.SelectModel("what is a neuron", nil, "large"))
	assert.Equal(t, "big-model", router.SelectModel("what is a neuron", nil, "LARGE"))
	// Unknown tier names fall back to complexity routing.
	assert.Equal(t, "mini-model", router.SelectModel("what is a neuron", nil, "enormous"))
}

func TestComplexityScoreCountsResultVolume(t *testing.T) {
	router := NewModelRouter(testTiers)
	long := strings.Repeat("neuroscience ", 200)
	results := []model.SearchResult{
		{ResultType: model.ResultTypeDocument, Payload: model.Payload{"content": long}},
		{ResultType: model.ResultTypeDocument, Payload: model.Payload{"content": long}},
	}

	base := router.ComplexityScore("what is a neuron", nil)
	loaded := router.ComplexityScore("what is a neuron", results)
	assert.InDelta(t, 0.3, loaded-base, 1e-9)
}

func TestComplexityScoreCountsDistinctTerms(t *testing.T) {
	router := NewModelRouter(testTiers)

	// Repetition of the same term counts once.
	one := router.ComplexityScore("compare compare compare", nil)
	assert.InDelta(t, 0.2, one, 1e-9)

	three := router.ComplexityScore("compare the mechanism and pathway", nil)
	assert.InDelta(t, 0.4, three, 1e-9)
}

func TestTierModelFallsBackToDefault(t *testing.T) {
	router := NewModelRouter(map[string]string{"default": "mid-model"})
	assert.Equal(t, "mid-model", router.SelectModel("what is a neuron", nil, ""))
	assert.Equal(t, "mid-model", router.SelectModel("what is a neuron", nil, "small"))
}
