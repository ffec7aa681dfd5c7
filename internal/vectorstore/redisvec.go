package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
)

// RedisProvider is the redis-backed local engine. Each point lives in a
// hash, collection membership in a set, and scoring happens client-side
// with the shared in-process filter evaluator.
type RedisProvider struct {
	client  *redisv9.Client
	log     *logrus.Logger
	ensured sync.Map // collection name -> struct{}
}

func NewRedisProvider(client *redisv9.Client, log *logrus.Logger) *RedisProvider {
	return &RedisProvider{client: client, log: log}
}

func (p *RedisProvider) Name() string { return "redis" }

func (p *RedisProvider) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if _, ok := p.ensured.Load(name); ok {
		return nil
	}
	metaKey := p.metaKey(name)
	existing, err := p.client.Get(ctx, metaKey).Result()
	switch {
	case err == redisv9.Nil:
		if err := p.client.Set(ctx, metaKey, strconv.Itoa(vectorSize), 0).Err(); err != nil {
			return fmt.Errorf("create collection %s failed: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("check collection %s failed: %w", name, err)
	default:
		if size, _ := strconv.Atoi(existing); size != vectorSize {
			return fmt.Errorf("collection %s: %w (have %s, want %d)", name, ErrDimensionMismatch, existing, vectorSize)
		}
	}
	p.ensured.Store(name, struct{}{})
	return nil
}

func (p *RedisProvider) Add(ctx context.Context, collection string, payload model.Payload, vector []float32, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload failed: %w", err)
	}
	embeddingJSON, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("marshal embedding failed: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.pointKey(collection, id), "payload", payloadJSON, "embedding", embeddingJSON)
	pipe.SAdd(ctx, p.idsKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store vector failed: %w", err)
	}
	return id, nil
}

func (p *RedisProvider) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]model.SearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	points, err := p.loadPoints(ctx, collection, filter)
	if err != nil {
		p.log.WithError(err).WithField("backend", p.Name()).Warn("vector search degraded to empty results")
		return nil, nil
	}
	var results []model.SearchResult
	for _, pt := range points {
		results = append(results, model.SearchResult{
			ID:         pt.id,
			ResultType: resultType(pt.payload),
			Score:      cosineSimilarity(vector, pt.embedding),
			Payload:    pt.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *RedisProvider) SearchText(ctx context.Context, collection string, text string, limit int, filter Filter) ([]model.SearchResult, error) {
	points, err := p.loadPoints(ctx, collection, filter)
	if err != nil {
		p.log.WithError(err).WithField("backend", p.Name()).Warn("keyword search degraded to empty results")
		return nil, nil
	}
	var results []model.SearchResult
	for _, pt := range points {
		score := keywordScore(text, textField(pt.payload))
		if score <= 0 {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         pt.id,
			ResultType: resultType(pt.payload),
			Score:      score,
			Payload:    pt.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

type redisPoint struct {
	id        string
	payload   model.Payload
	embedding []float32
}

func (p *RedisProvider) loadPoints(ctx context.Context, collection string, filter Filter) ([]redisPoint, error) {
	ids, err := p.client.SMembers(ctx, p.idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list collection ids failed: %w", err)
	}
	pipe := p.client.Pipeline()
	cmds := make([]*redisv9.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, p.pointKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redisv9.Nil {
		return nil, fmt.Errorf("fetch points failed: %w", err)
	}
	var out []redisPoint
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		var payload model.Payload
		if err := json.Unmarshal([]byte(fields["payload"]), &payload); err != nil {
			continue
		}
		if !Matches(filter, payload) {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(fields["embedding"]), &embedding); err != nil {
			continue
		}
		out = append(out, redisPoint{id: ids[i], payload: payload, embedding: embedding})
	}
	return out, nil
}

func (p *RedisProvider) metaKey(collection string) string {
	return "vec:meta:" + collection
}

func (p *RedisProvider) idsKey(collection string) string {
	return "vec:ids:" + collection
}

func (p *RedisProvider) pointKey(collection, id string) string {
	return "vec:point:" + collection + ":" + id
}
