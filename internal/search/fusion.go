package search

import (
	"sort"
	"time"

	"corpusqa/internal/model"
)

// FusionParams blend base relevance, doc-type weighting, recency, and the
// rerank score into one final ranking.
type FusionParams struct {
	DocTypeWeights  map[string]float64
	RecencyBoost    float64
	RerankingFactor float64
	// Reranked reports whether the cross-encoder actually ran; when it
	// did not, ranking stays on the custom score alone.
	Reranked bool
	Now      time.Time
}

const recencyWindowDays = 365

// Fuse computes custom and final scores and re-sorts descending. The sort
// is stable: ties keep their original relative order.
func Fuse(results []model.SearchResult, p FusionParams) []model.SearchResult {
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	f := p.RerankingFactor
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	out := make([]model.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		custom := out[i].Score * docTypeWeight(p.DocTypeWeights, out[i].DocType()) *
			recencyFactor(out[i].Payload, p.RecencyBoost, p.Now)
		out[i].CustomScore = custom
		if p.Reranked {
			out[i].FinalScore = (1-f)*custom + f*out[i].RerankScore
		} else {
			out[i].FinalScore = custom
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

func docTypeWeight(weights map[string]float64, docType string) float64 {
	if len(weights) == 0 {
		return 1
	}
	if w, ok := weights[docType]; ok {
		return w
	}
	return 1
}

// recencyFactor is 1 - (daysOld/365)*boost, with age capped at 365 days
// and the factor clamped to zero. Results without a date are unaffected.
func recencyFactor(payload model.Payload, boost float64, now time.Time) float64 {
	if boost <= 0 {
		return 1
	}
	created, ok := payload.Time("date")
	if !ok {
		return 1
	}
	daysOld := now.Sub(created).Hours() / 24
	if daysOld < 0 {
		daysOld = 0
	}
	if daysOld > recencyWindowDays {
		daysOld = recencyWindowDays
	}
	factor := 1 - (daysOld/recencyWindowDays)*boost
	if factor < 0 {
		factor = 0
	}
	return factor
}

func sortStableDesc(results []model.SearchResult) []model.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
