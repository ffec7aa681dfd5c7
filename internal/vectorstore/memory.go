package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"corpusqa/internal/model"
)

// MemoryProvider is the in-process brute-force engine. Exact cosine
// search over all vectors in a collection; fine up to tens of thousands
// of chunks and the reference backend for the others' semantics.
type MemoryProvider struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	vectorSize int
	items      []memItem
}

type memItem struct {
	id      string
	vector  []float32
	payload model.Payload
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]*memCollection)}
}

func (p *MemoryProvider) Name() string { return "memory" }

func (p *MemoryProvider) EnsureCollection(_ context.Context, name string, vectorSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.collections[name]; ok {
		if existing.vectorSize != vectorSize {
			return fmt.Errorf("collection %s: %w (have %d, want %d)",
				name, ErrDimensionMismatch, existing.vectorSize, vectorSize)
		}
		return nil
	}
	p.collections[name] = &memCollection{vectorSize: vectorSize}
	return nil
}

func (p *MemoryProvider) Add(_ context.Context, collection string, payload model.Payload, vector []float32, id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	col, ok := p.collections[collection]
	if !ok {
		return "", fmt.Errorf("collection %s does not exist", collection)
	}
	if len(vector) != col.vectorSize {
		return "", fmt.Errorf("collection %s: %w (have %d, want %d)",
			collection, ErrDimensionMismatch, len(vector), col.vectorSize)
	}
	if id == "" {
		id = uuid.NewString()
	}
	col.items = append(col.items, memItem{id: id, vector: vector, payload: payload})
	return id, nil
}

func (p *MemoryProvider) Search(_ context.Context, collection string, vector []float32, limit int, filter Filter) ([]model.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	col, ok := p.collections[collection]
	if !ok || len(vector) == 0 {
		return nil, nil
	}
	var results []model.SearchResult
	for _, item := range col.items {
		if !Matches(filter, item.payload) {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         item.id,
			ResultType: resultType(item.payload),
			Score:      cosineSimilarity(vector, item.vector),
			Payload:    item.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *MemoryProvider) SearchText(_ context.Context, collection string, text string, limit int, filter Filter) ([]model.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	col, ok := p.collections[collection]
	if !ok {
		return nil, nil
	}
	var results []model.SearchResult
	for _, item := range col.items {
		if !Matches(filter, item.payload) {
			continue
		}
		score := keywordScore(text, textField(item.payload))
		if score <= 0 {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         item.id,
			ResultType: resultType(item.payload),
			Score:      score,
			Payload:    item.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *MemoryProvider) Ping(context.Context) error { return nil }
