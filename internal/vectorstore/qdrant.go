package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
)

// QdrantProvider is the remote, hybrid-capable backend, spoken to over
// Qdrant's HTTP API. Filters compile to must/should condition trees.
type QdrantProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
	ensured    sync.Map // collection name -> struct{}
}

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewQdrantProvider(cfg QdrantConfig, log *logrus.Logger) *QdrantProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantProvider{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (p *QdrantProvider) Name() string { return "qdrant" }

func (p *QdrantProvider) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if _, ok := p.ensured.Load(name); ok {
		return nil
	}
	status, raw, err := p.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("check collection %s failed: %w", name, err)
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("check collection %s status %d: %s", name, status, string(raw))
	}
	if status == http.StatusNotFound {
		body := map[string]interface{}{
			"vectors": map[string]interface{}{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		}
		status, raw, err := p.do(ctx, http.MethodPut, "/collections/"+name, body)
		if err != nil {
			return fmt.Errorf("create collection %s failed: %w", name, err)
		}
		if status >= 300 {
			return fmt.Errorf("create collection %s status %d: %s", name, status, string(raw))
		}
	}
	p.ensured.Store(name, struct{}{})
	return nil
}

func (p *QdrantProvider) Add(ctx context.Context, collection string, payload model.Payload, vector []float32, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vector, "payload": payload},
		},
	}
	status, raw, err := p.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	if err != nil {
		return "", fmt.Errorf("upsert point failed: %w", err)
	}
	if status >= 300 {
		return "", fmt.Errorf("upsert point status %d: %s", status, string(raw))
	}
	return id, nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]model.SearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if compiled := compileQdrant(filter); compiled != nil {
		body["filter"] = compiled
	}
	status, raw, err := p.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil || status >= 300 {
		p.warnDegraded("vector search", collection, status, err)
		return nil, nil
	}
	var parsed struct {
		Result []struct {
			ID      interface{}   `json:"id"`
			Score   float64       `json:"score"`
			Payload model.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		p.warnDegraded("vector search", collection, status, err)
		return nil, nil
	}
	results := make([]model.SearchResult, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		results = append(results, model.SearchResult{
			ID:         fmt.Sprintf("%v", hit.ID),
			ResultType: resultType(hit.Payload),
			Score:      hit.Score,
			Payload:    hit.Payload,
		})
	}
	return results, nil
}

func (p *QdrantProvider) SearchText(ctx context.Context, collection string, text string, limit int, filter Filter) ([]model.SearchResult, error) {
	// Full-text match narrows candidates server-side; lexical scoring
	// happens client-side so keyword ordering matches the local engines.
	match := Or{Filters: []Filter{
		TextLike{Field: "content", Pattern: text},
		TextLike{Field: "caption", Pattern: text},
	}}
	combined := Filter(match)
	if filter != nil {
		combined = And{Filters: []Filter{filter, match}}
	}
	body := map[string]interface{}{
		"filter":       compileQdrant(combined),
		"limit":        limit * 4,
		"with_payload": true,
	}
	status, raw, err := p.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body)
	if err != nil || status >= 300 {
		p.warnDegraded("keyword search", collection, status, err)
		return nil, nil
	}
	var parsed struct {
		Result struct {
			Points []struct {
				ID      interface{}   `json:"id"`
				Payload model.Payload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		p.warnDegraded("keyword search", collection, status, err)
		return nil, nil
	}
	var results []model.SearchResult
	for _, pt := range parsed.Result.Points {
		score := keywordScore(text, textField(pt.Payload))
		if score <= 0 {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         fmt.Sprintf("%v", pt.ID),
			ResultType: resultType(pt.Payload),
			Score:      score,
			Payload:    pt.Payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *QdrantProvider) Ping(ctx context.Context) error {
	status, _, err := p.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant status %d", status)
	}
	return nil
}

func (p *QdrantProvider) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal qdrant request failed: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build qdrant request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("api-key", p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read qdrant response failed: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (p *QdrantProvider) warnDegraded(op, collection string, status int, err error) {
	entry := p.log.WithFields(logrus.Fields{
		"backend":    p.Name(),
		"collection": collection,
		"status":     status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warnf("%s degraded to empty results", op)
}

// compileQdrant renders the filter tree to Qdrant's condition JSON.
func compileQdrant(f Filter) map[string]interface{} {
	if f == nil {
		return nil
	}
	cond := qdrantCondition(f)
	if cond == nil {
		return nil
	}
	// Top level must be a filter object, not a bare condition.
	if _, isGroup := f.(And); isGroup {
		return cond
	}
	if _, isGroup := f.(Or); isGroup {
		return cond
	}
	return map[string]interface{}{"must": []interface{}{cond}}
}

func qdrantCondition(f Filter) map[string]interface{} {
	switch v := f.(type) {
	case Equal:
		return map[string]interface{}{
			"key":   v.Field,
			"match": map[string]interface{}{"value": v.Value},
		}
	case Range:
		rng := map[string]interface{}{}
		if v.Min != nil {
			rng["gte"] = *v.Min
		}
		if v.Max != nil {
			rng["lte"] = *v.Max
		}
		return map[string]interface{}{"key": v.Field, "range": rng}
	case DateRange:
		rng := map[string]interface{}{}
		if v.From != nil {
			rng["gte"] = v.From.Format(time.RFC3339)
		}
		if v.To != nil {
			rng["lte"] = v.To.Format(time.RFC3339)
		}
		return map[string]interface{}{"key": v.Field, "datetime_range": rng}
	case MultiTermOr:
		return map[string]interface{}{
			"key":   v.Field,
			"match": map[string]interface{}{"any": v.Terms},
		}
	case Exists:
		return map[string]interface{}{
			"must_not": []interface{}{
				map[string]interface{}{"is_empty": map[string]interface{}{"key": v.Field}},
			},
		}
	case TextLike:
		return map[string]interface{}{
			"key":   v.Field,
			"match": map[string]interface{}{"text": v.Pattern},
		}
	case And:
		conds := make([]interface{}, 0, len(v.Filters))
		for _, sub := range v.Filters {
			if c := qdrantCondition(sub); c != nil {
				conds = append(conds, c)
			}
		}
		if len(conds) == 0 {
			return nil
		}
		return map[string]interface{}{"must": conds}
	case Or:
		conds := make([]interface{}, 0, len(v.Filters))
		for _, sub := range v.Filters {
			if c := qdrantCondition(sub); c != nil {
				conds = append(conds, c)
			}
		}
		if len(conds) == 0 {
			return nil
		}
		return map[string]interface{}{"should": conds}
	}
	return nil
}
