package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusqa/internal/model"
)

func seedMemoryProvider(t *testing.T) *MemoryProvider {
	t.Helper()
	ctx := context.Background()
	p := NewMemoryProvider()
	require.NoError(t, p.EnsureCollection(ctx, "chunks", 3))

	items := []struct {
		id      string
		vector  []float32
		payload model.Payload
	}{
		{"a", []float32{1, 0, 0}, model.Payload{"content": "long term potentiation in the hippocampus", "doc_type": "textbook", "year": 2019}},
		{"b", []float32{0, 1, 0}, model.Payload{"content": "cerebellar motor learning circuits", "doc_type": "paper", "year": 2021}},
		{"c", []float32{0.9, 0.1, 0}, model.Payload{"content": "hippocampus place cells and spatial memory", "doc_type": "paper", "year": 2015}},
		{"fig1", []float32{0, 0, 1}, model.Payload{"caption": "hippocampus circuit diagram", "figure_id": "F-12"}},
	}
	for _, it := range items {
		_, err := p.Add(ctx, "chunks", it.payload, it.vector, it.id)
		require.NoError(t, err)
	}
	return p
}

func TestMemoryEnsureCollection(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	require.NoError(t, p.EnsureCollection(ctx, "chunks", 3))
	require.NoError(t, p.EnsureCollection(ctx, "chunks", 3))
	err := p.EnsureCollection(ctx, "chunks", 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryAdd(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	require.NoError(t, p.EnsureCollection(ctx, "chunks", 2))

	id, err := p.Add(ctx, "chunks", model.Payload{"content": "x"}, []float32{1, 0}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = p.Add(ctx, "chunks", model.Payload{}, []float32{1, 0, 0}, "")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = p.Add(ctx, "missing", model.Payload{}, []float32{1, 0}, "")
	assert.Error(t, err)
}

func TestMemorySearchOrdersByCosine(t *testing.T) {
	p := seedMemoryProvider(t)

	results, err := p.Search(context.Background(), "chunks", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, model.ResultTypeDocument, results[0].ResultType)
}

func TestMemorySearchAppliesFilterAndLimit(t *testing.T) {
	p := seedMemoryProvider(t)

	results, err := p.Search(context.Background(), "chunks", []float32{1, 0, 0}, 10,
		Equal{Field: "doc_type", Value: "paper"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].ID)

	results, err = p.Search(context.Background(), "chunks", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemorySearchText(t *testing.T) {
	p := seedMemoryProvider(t)

	results, err := p.SearchText(context.Background(), "chunks", "hippocampus memory", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// "c" contains both terms, "a" and the figure caption only one.
	assert.Equal(t, "c", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	for _, r := range results[1:] {
		assert.Less(t, r.Score, results[0].Score)
	}
}

func TestMemorySearchTextScoresCaptionsAsFigures(t *testing.T) {
	p := seedMemoryProvider(t)

	results, err := p.SearchText(context.Background(), "chunks", "circuit diagram", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "fig1", results[0].ID)
	assert.Equal(t, model.ResultTypeFigure, results[0].ResultType)
}

func TestMemorySearchUnknownCollection(t *testing.T) {
	p := NewMemoryProvider()
	results, err := p.Search(context.Background(), "nope", []float32{1}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}
