package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusqa/internal/model"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func passages(texts ...string) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(texts))
	for _, text := range texts {
		out = append(out, model.SearchResult{
			ID:         text,
			ResultType: model.ResultTypeDocument,
			Payload:    model.Payload{"content": text},
		})
	}
	return out
}

// scoreServer scores each non-probe passage by a fixed lookup.
func scoreServer(t *testing.T, scores map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Pairs [][2]string `json:"pairs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([]float64, len(req.Pairs))
		for i, pair := range req.Pairs {
			out[i] = scores[pair[1]]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"scores": out})
	}))
}

func TestRerankSortsByCrossEncoderScore(t *testing.T) {
	srv := scoreServer(t, map[string]float64{"weak": 0.2, "strong": 0.95, "mid": 0.6})
	defer srv.Close()

	r := New(Config{Endpoint: srv.URL, Model: "test-ce"}, testLogger())
	out, took, ran := r.Rerank(context.Background(), "q", passages("weak", "strong", "mid"))

	assert.True(t, ran)
	assert.GreaterOrEqual(t, took, time.Duration(0))
	require.Len(t, out, 3)
	assert.Equal(t, []string{"strong", "mid", "weak"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, 0.95, out[0].RerankScore)
	assert.True(t, out[0].Reranked)
}

func TestRerankNoEndpointIsNoOp(t *testing.T) {
	r := New(Config{}, testLogger())
	out, _, ran := r.Rerank(context.Background(), "q", passages("a", "b"))

	assert.False(t, ran)
	assert.Equal(t, []string{"a", "b"}, []string{out[0].ID, out[1].ID})
	assert.Equal(t, NeutralScore, out[0].RerankScore)
	assert.False(t, out[0].Reranked)
}

func TestRerankProbeFailureLatches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(Config{Endpoint: srv.URL}, testLogger())
	_, _, ran := r.Rerank(context.Background(), "q", passages("a"))
	assert.False(t, ran)

	// The failed probe latches; no further requests go out.
	_, _, ran = r.Rerank(context.Background(), "q", passages("a"))
	assert.False(t, ran)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRerankBatchFailureKeepsOriginalOrder(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probe succeeds, the real batch then fails.
		if atomic.AddInt32(&calls, 1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"scores": []float64{0.5}})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := New(Config{Endpoint: srv.URL}, testLogger())
	out, _, ran := r.Rerank(context.Background(), "q", passages("first", "second"))

	assert.False(t, ran)
	assert.Equal(t, []string{"first", "second"}, []string{out[0].ID, out[1].ID})
	assert.Equal(t, NeutralScore, out[0].RerankScore)
}

func TestRerankBatchesLargeInputs(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Pairs [][2]string `json:"pairs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Pairs))
		out := make([]float64, len(req.Pairs))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"scores": out})
	}))
	defer srv.Close()

	r := New(Config{Endpoint: srv.URL, BatchSize: 2}, testLogger())
	_, _, ran := r.Rerank(context.Background(), "q", passages("a", "b", "c", "d", "e"))

	assert.True(t, ran)
	// One probe pair, then batches of 2, 2, 1.
	assert.Equal(t, []int{1, 2, 2, 1}, batchSizes)
}

func TestRerankEmptyInput(t *testing.T) {
	r := New(Config{}, testLogger())
	out, _, ran := r.Rerank(context.Background(), "q", nil)
	assert.False(t, ran)
	assert.Empty(t, out)
}
