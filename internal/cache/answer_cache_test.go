package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusqa/internal/model"
)

func newTestCache(t *testing.T) *AnswerCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewAnswerCache(client, log)
}

func confidentAnswer() *model.GeneratedAnswer {
	return &model.GeneratedAnswer{
		Answer: "LTP strengthens synapses [1].",
		Sources: model.Sources{
			Documents: []model.SourceRef{{Index: 1, ChunkID: "chunk-1", Citation: "Principles, textbook"}},
			Figures:   []model.FigureRef{},
		},
		ConfidenceScore: 0.82,
		Status:          model.StatusSuccess,
		ModelUsed:       "mid-model",
	}
}

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, Key("What is LTP?", "textbook"), Key("  what is ltp?  ", "textbook"))
	assert.NotEqual(t, Key("what is ltp?", "textbook"), Key("what is ltp?", "paper"))
	assert.NotEqual(t, Key("what is ltp?", ""), Key("what is ltd?", ""))
	assert.Len(t, Key("q", ""), 64)
}

func TestPutThenGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "What is LTP?", "textbook", confidentAnswer()))

	cached, ok := c.Get(ctx, "what is ltp?", "textbook")
	require.True(t, ok)
	assert.Equal(t, "LTP strengthens synapses [1].", cached.Answer)
	assert.Equal(t, 0.82, cached.ConfidenceScore)
	assert.Equal(t, "mid-model", cached.ModelUsed)
	require.Len(t, cached.Sources.Documents, 1)
	assert.Equal(t, "chunk-1", cached.Sources.Documents[0].ChunkID)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(context.Background(), "never asked", "")
	assert.False(t, ok)
}

func TestGetIncrementsHitCount(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "q", "", confidentAnswer()))

	first, ok := c.Get(ctx, "q", "")
	require.True(t, ok)
	assert.Equal(t, int64(1), first.HitCount)

	second, ok := c.Get(ctx, "q", "")
	require.True(t, ok)
	assert.Equal(t, int64(2), second.HitCount)
	assert.False(t, second.LastAccessedAt.IsZero())
}

func TestPutSkipsLowConfidence(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ans := confidentAnswer()
	ans.ConfidenceScore = MinCacheConfidence - 0.01
	require.NoError(t, c.Put(ctx, "q", "", ans))

	_, ok := c.Get(ctx, "q", "")
	assert.False(t, ok)
}

func TestPutAtThresholdIsStored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ans := confidentAnswer()
	ans.ConfidenceScore = MinCacheConfidence
	require.NoError(t, c.Put(ctx, "q", "", ans))

	_, ok := c.Get(ctx, "q", "")
	assert.True(t, ok)
}

func TestPutOverwritesSameKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "q", "", confidentAnswer()))
	updated := confidentAnswer()
	updated.Answer = "Updated answer [1]."
	require.NoError(t, c.Put(ctx, "q", "", updated))

	cached, ok := c.Get(ctx, "q", "")
	require.True(t, ok)
	assert.Equal(t, "Updated answer [1].", cached.Answer)
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "q1", "", confidentAnswer()))
	require.NoError(t, c.Put(ctx, "q2", "textbook", confidentAnswer()))

	cleared, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)

	_, ok := c.Get(ctx, "q1", "")
	assert.False(t, ok)

	cleared, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, cleared)
}
