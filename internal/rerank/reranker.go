package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
)

// NeutralScore is assumed for every result when the cross-encoder is
// unavailable, so downstream fusion stays well-defined.
const NeutralScore = 0.5

// Config points at the cross-encoder scoring service.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	Timeout   time.Duration
	BatchSize int
}

// Reranker scores (query, passage) pairs with a cross-encoder model
// behind an HTTP endpoint. Initialization is lazy and happens once per
// process; if the probe fails the reranker latches into a no-op that
// preserves the incoming order. It never fails a query.
type Reranker struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Logger

	initOnce  sync.Once
	available bool
}

func New(cfg Config, log *logrus.Logger) *Reranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Reranker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Rerank returns the results sorted descending by cross-encoder score,
// the elapsed scoring time, and whether the model actually ran. On the
// no-op path the original order is preserved and every result carries
// the neutral score.
func (r *Reranker) Rerank(ctx context.Context, query string, results []model.SearchResult) ([]model.SearchResult, time.Duration, bool) {
	start := time.Now()
	out := make([]model.SearchResult, len(results))
	copy(out, results)
	if len(out) == 0 {
		return out, time.Since(start), false
	}

	if !r.ensureModel(ctx) {
		for i := range out {
			out[i].RerankScore = NeutralScore
		}
		return out, time.Since(start), false
	}

	pairs := make([][2]string, len(out))
	for i := range out {
		pairs[i] = [2]string{query, out[i].PassageText()}
	}

	scores := make([]float64, len(out))
	for i := 0; i < len(pairs); i += r.cfg.BatchSize {
		end := i + r.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch, err := r.scoreBatch(ctx, pairs[i:end])
		if err != nil {
			r.log.WithError(err).WithField("query_prefix", queryPrefix(query)).
				Warn("cross-encoder batch failed, keeping original order")
			for j := range out {
				out[j].RerankScore = NeutralScore
			}
			return out, time.Since(start), false
		}
		copy(scores[i:end], batch)
	}

	for i := range out {
		out[i].RerankScore = scores[i]
		out[i].Reranked = true
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, time.Since(start), true
}

// ensureModel probes the scoring endpoint exactly once per process.
func (r *Reranker) ensureModel(ctx context.Context) bool {
	r.initOnce.Do(func() {
		if r.cfg.Endpoint == "" {
			r.log.Info("no cross-encoder endpoint configured, reranking disabled")
			return
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := r.scoreBatch(probeCtx, [][2]string{{"probe", "probe"}}); err != nil {
			r.log.WithError(err).Warn("cross-encoder unavailable, reranking disabled for this process")
			return
		}
		r.available = true
		r.log.WithField("model", r.cfg.Model).Info("cross-encoder ready")
	})
	return r.available
}

func (r *Reranker) scoreBatch(ctx context.Context, pairs [][2]string) ([]float64, error) {
	reqBody := map[string]interface{}{
		"model": r.cfg.Model,
		"pairs": pairs,
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build rerank request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank status %d: %s", resp.StatusCode, string(raw))
	}
	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse rerank response failed: %w", err)
	}
	if len(parsed.Scores) != len(pairs) {
		return nil, fmt.Errorf("rerank score count mismatch: got %d, want %d", len(parsed.Scores), len(pairs))
	}
	return parsed.Scores, nil
}

func queryPrefix(query string) string {
	const n = 32
	if len(query) <= n {
		return query
	}
	return query[:n]
}
