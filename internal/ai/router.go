package ai

import (
	"strings"

	"corpusqa/internal/model"
)

// Tier names with guaranteed routing semantics. Deployments may configure
// additional named tiers; anything unknown falls back to default.
const (
	TierSmall   = "small"
	TierDefault = "default"
	TierLarge   = "large"
)

// complexityTerms is the fixed vocabulary used to estimate query
// complexity. Matching is on distinct lowercased whole terms.
var complexityTerms = []string{
	"compare", "comparison", "contrast", "difference", "versus", "vs",
	"mechanism", "pathway", "interaction", "regulation", "relationship",
	"explain", "why", "how", "effect", "cause", "figure", "diagram",
	"protocol", "method",
}

// ModelRouter maps query complexity and explicit tier requests onto a
// generation model identifier.
type ModelRouter struct {
	tiers map[string]string
}

// NewModelRouter takes the tier -> model map from configuration. The
// default tier must be present; missing small/large fall back to it.
func NewModelRouter(tiers map[string]string) *ModelRouter {
	cloned := make(map[string]string, len(tiers))
	for name, modelID := range tiers {
		cloned[strings.ToLower(name)] = modelID
	}
	return &ModelRouter{tiers: cloned}
}

// SelectModel returns the model for the requested tier when it is
// configured; otherwise it routes by the complexity estimate.
func (r *ModelRouter) SelectModel(query string, results []model.SearchResult, requestedTier string) string {
	if requestedTier != "" {
		if modelID, ok := r.tiers[strings.ToLower(requestedTier)]; ok {
			return modelID
		}
	}
	return r.tierModel(tierForScore(r.ComplexityScore(query, results)))
}

// ComplexityScore estimates query complexity in [0,1] from query length,
// complexity-vocabulary matches, and the volume of the top-3 results.
func (r *ModelRouter) ComplexityScore(query string, results []model.SearchResult) float64 {
	score := 0.0

	words := len(strings.Fields(query))
	switch {
	case words > 20:
		score += 0.3
	case words > 10:
		score += 0.15
	}

	matches := countComplexityTerms(query)
	switch {
	case matches >= 3:
		score += 0.4
	case matches >= 1:
		score += 0.2
	}

	contentLen := 0
	for i, res := range results {
		if i == 3 {
			break
		}
		contentLen += len(res.PassageText())
	}
	switch {
	case contentLen > 3000:
		score += 0.3
	case contentLen > 1500:
		score += 0.15
	}

	return score
}

func countComplexityTerms(query string) int {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		tokens[tok] = struct{}{}
	}
	matched := 0
	for _, term := range complexityTerms {
		if _, ok := tokens[term]; ok {
			matched++
		}
	}
	return matched
}

func tierForScore(score float64) string {
	switch {
	case score < 0.3:
		return TierSmall
	case score < 0.7:
		return TierDefault
	default:
		return TierLarge
	}
}

func (r *ModelRouter) tierModel(tier string) string {
	if modelID, ok := r.tiers[tier]; ok {
		return modelID
	}
	return r.tiers[TierDefault]
}
