package search

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusqa/internal/model"
	"corpusqa/internal/vectorstore"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (e *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

// stubProvider returns canned legs and records the filters it was given.
type stubProvider struct {
	vectorHits  []model.SearchResult
	keywordHits []model.SearchResult
	vectorErr   error
	keywordErr  error

	lastVectorFilter  vectorstore.Filter
	lastKeywordFilter vectorstore.Filter
	lastVectorLimit   int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) EnsureCollection(context.Context, string, int) error { return nil }

func (p *stubProvider) Add(context.Context, string, model.Payload, []float32, string) (string, error) {
	return "", nil
}

func (p *stubProvider) Search(_ context.Context, _ string, _ []float32, limit int, filter vectorstore.Filter) ([]model.SearchResult, error) {
	p.lastVectorFilter = filter
	p.lastVectorLimit = limit
	return p.vectorHits, p.vectorErr
}

func (p *stubProvider) SearchText(_ context.Context, _ string, _ string, _ int, filter vectorstore.Filter) ([]model.SearchResult, error) {
	p.lastKeywordFilter = filter
	return p.keywordHits, p.keywordErr
}

func (p *stubProvider) Ping(context.Context) error { return nil }

func hits(scores map[string]float64, order ...string) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, model.SearchResult{
			ID:         id,
			ResultType: model.ResultTypeDocument,
			Score:      scores[id],
			Payload:    model.Payload{"content": id},
		})
	}
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func ids(results []model.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

func TestSearchPureVectorOrderAtAlphaOne(t *testing.T) {
	provider := &stubProvider{
		vectorHits:  hits(map[string]float64{"a": 0.9, "b": 0.7, "c": 0.5}, "a", "b", "c"),
		keywordHits: hits(map[string]float64{"c": 1.0, "b": 0.5}, "c", "b"),
	}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", UseHybrid: true, Alpha: 1.0, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
}

func TestSearchPureKeywordOrderAtAlphaZero(t *testing.T) {
	provider := &stubProvider{
		vectorHits:  hits(map[string]float64{"a": 0.9, "b": 0.7}, "a", "b"),
		keywordHits: hits(map[string]float64{"c": 1.0, "b": 0.5}, "c", "b"),
	}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", UseHybrid: true, Alpha: 0.0, Limit: 10,
	})
	require.NoError(t, err)

	// Keyword-only hits lead; vector-only hits score zero and sink.
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestSearchBlendsBothLegs(t *testing.T) {
	provider := &stubProvider{
		vectorHits:  hits(map[string]float64{"a": 1.0, "b": 0.8}, "a", "b"),
		keywordHits: hits(map[string]float64{"b": 1.0}, "b"),
	}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", UseHybrid: true, Alpha: 0.5, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// b: 0.5*0.8 + 0.5*1.0 = 0.9 beats a: 0.5*1.0 = 0.5.
	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
}

func TestSearchVectorOnlyWhenHybridDisabled(t *testing.T) {
	provider := &stubProvider{
		vectorHits:  hits(map[string]float64{"a": 0.9}, "a"),
		keywordHits: hits(map[string]float64{"z": 1.0}, "z"),
	}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", UseHybrid: false, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(results))
}

func TestSearchDegradesToKeywordWhenEmbeddingFails(t *testing.T) {
	provider := &stubProvider{
		keywordHits: hits(map[string]float64{"k": 0.8}, "k"),
	}
	engine := NewEngine(provider, &stubEmbedder{err: errors.New("embed service down")}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", UseHybrid: true, Alpha: 0.7, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, ids(results))
}

func TestSearchDocTypeShorthandFilter(t *testing.T) {
	provider := &stubProvider{}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	_, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", DocType: "textbook", UseHybrid: true, Limit: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Equal{Field: "doc_type", Value: "textbook"}, provider.lastVectorFilter)
	assert.Equal(t, provider.lastVectorFilter, provider.lastKeywordFilter)
	assert.Equal(t, 8, provider.lastVectorLimit)

	// An explicit filter wins over the shorthand.
	explicit := vectorstore.Exists{Field: "author"}
	_, err = engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", DocType: "textbook", Filter: explicit, UseHybrid: true, Limit: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, provider.lastVectorFilter)
}

func TestSearchAppliesMinScoreAndLimit(t *testing.T) {
	provider := &stubProvider{
		vectorHits: hits(map[string]float64{"a": 1.0, "b": 0.6, "c": 0.2}, "a", "b", "c"),
	}
	engine := NewEngine(provider, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "test query", Options{
		Collection: "chunks", Limit: 2, MinScore: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(results))
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := NewEngine(&stubProvider{}, &stubEmbedder{vector: []float32{1}}, testLogger())

	results, err := engine.Search(context.Background(), "   ", Options{Collection: "chunks", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}
