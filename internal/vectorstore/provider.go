package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"corpusqa/internal/model"
)

var (
	ErrUnknownBackend    = errors.New("unknown vector backend")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Provider is the uniform contract over the remote vector service and the
// local engines. Search and SearchText degrade to an empty result set when
// the backend is unreachable; they never fail the query for that reason.
type Provider interface {
	Name() string
	// EnsureCollection creates the collection if missing. Idempotent and
	// memoized per process.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	// Add inserts one payload+vector. An empty id lets the backend assign one.
	Add(ctx context.Context, collection string, payload model.Payload, vector []float32, id string) (string, error)
	// Search runs vector similarity search.
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]model.SearchResult, error)
	// SearchText runs the keyword leg of hybrid search.
	SearchText(ctx context.Context, collection string, text string, limit int, filter Filter) ([]model.SearchResult, error)
	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordScore is the shared lexical scorer for the local engines:
// fraction of distinct query tokens present in the text.
func keywordScore(query, text string) float64 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)
	matched := 0
	for term := range terms {
		if strings.Contains(lowered, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) < 2 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// textField returns the payload field the keyword leg scores against.
func textField(payload model.Payload) string {
	if c := payload.Str("content"); c != "" {
		return c
	}
	return payload.Str("caption")
}

func resultType(payload model.Payload) model.ResultType {
	if payload.Has("figure_id") {
		return model.ResultTypeFigure
	}
	return model.ResultTypeDocument
}

func sortAndTrim(results []model.SearchResult, limit int) []model.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
