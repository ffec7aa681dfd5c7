package search

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
	"corpusqa/internal/vectorstore"
)

// Embedder produces query embeddings. An empty vector means the query
// cannot be vector-searched and the engine degrades to keyword-only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine executes semantic, keyword, or alpha-blended hybrid retrieval
// through a VectorStoreProvider.
type Engine struct {
	provider vectorstore.Provider
	embedder Embedder
	log      *logrus.Logger
}

// Options tune one retrieval run.
type Options struct {
	Collection string
	// DocType is shorthand for an Equal(doc_type) filter; an explicit
	// Filter takes precedence over it.
	DocType   string
	Filter    vectorstore.Filter
	UseHybrid bool
	// Alpha weights vector similarity against keyword score: 1 = pure
	// vector order, 0 = pure keyword order.
	Alpha    float64
	Limit    int
	MinScore float64
}

func NewEngine(provider vectorstore.Provider, embedder Embedder, log *logrus.Logger) *Engine {
	return &Engine{provider: provider, embedder: embedder, log: log}
}

func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || opts.Limit <= 0 {
		return nil, nil
	}
	filter := opts.Filter
	if filter == nil && opts.DocType != "" {
		filter = vectorstore.Equal{Field: "doc_type", Value: opts.DocType}
	}

	// Over-fetch per leg; blending and min-score trimming happen after.
	internalLimit := opts.Limit * 2

	vectorHits := e.vectorLeg(ctx, query, opts.Collection, internalLimit, filter)
	if !opts.UseHybrid {
		return trim(vectorHits, opts.Limit, opts.MinScore), nil
	}

	keywordHits, err := e.provider.SearchText(ctx, opts.Collection, query, internalLimit, filter)
	if err != nil {
		e.log.WithError(err).WithField("backend", e.provider.Name()).Warn("keyword leg failed")
		keywordHits = nil
	}

	merged := blend(vectorHits, keywordHits, opts.Alpha)
	return trim(merged, opts.Limit, opts.MinScore), nil
}

func (e *Engine) vectorLeg(ctx context.Context, query, collection string, limit int, filter vectorstore.Filter) []model.SearchResult {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil || len(embedding) == 0 {
		entry := e.log.WithField("query_prefix", prefix(query))
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("query embedding unavailable, skipping vector leg")
		return nil
	}
	hits, err := e.provider.Search(ctx, collection, embedding, limit, filter)
	if err != nil {
		e.log.WithError(err).WithField("backend", e.provider.Name()).Warn("vector leg failed")
		return nil
	}
	return hits
}

// blend max-normalizes each leg and combines alpha*vector + (1-alpha)*keyword.
// A hit present in only one leg contributes zero on the other, so the
// boundary values of alpha reproduce each leg's own ordering.
func blend(vectorHits, keywordHits []model.SearchResult, alpha float64) []model.SearchResult {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	vMax := maxScore(vectorHits)
	kMax := maxScore(keywordHits)

	type entry struct {
		result model.SearchResult
		vec    float64
		kw     float64
	}
	order := make([]string, 0, len(vectorHits)+len(keywordHits))
	byID := make(map[string]*entry)

	for _, hit := range vectorHits {
		score := 0.0
		if vMax > 0 {
			score = hit.Score / vMax
		}
		order = append(order, hit.ID)
		byID[hit.ID] = &entry{result: hit, vec: score}
	}
	for _, hit := range keywordHits {
		score := 0.0
		if kMax > 0 {
			score = hit.Score / kMax
		}
		if existing, ok := byID[hit.ID]; ok {
			existing.kw = score
			continue
		}
		order = append(order, hit.ID)
		byID[hit.ID] = &entry{result: hit, kw: score}
	}

	merged := make([]model.SearchResult, 0, len(order))
	for _, id := range order {
		ent := byID[id]
		combined := alpha*ent.vec + (1-alpha)*ent.kw
		res := ent.result
		res.Score = combined
		merged = append(merged, res)
	}
	return sortStableDesc(merged)
}

func maxScore(hits []model.SearchResult) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}

func trim(results []model.SearchResult, limit int, minScore float64) []model.SearchResult {
	var out []model.SearchResult
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func prefix(query string) string {
	const n = 32
	if len(query) <= n {
		return query
	}
	return query[:n]
}
