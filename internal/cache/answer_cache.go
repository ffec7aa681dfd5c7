package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"corpusqa/internal/model"
)

// MinCacheConfidence gates cache writes: answers below it are never
// stored.
const MinCacheConfidence = 0.6

const (
	answerKeyPrefix = "qa:answer:"
	keyIndexSet     = "qa:answer:keys"
)

// AnswerCache is the content-addressed query cache. Keys are
// SHA256(lowercased-trimmed query + "_" + doc type); entries persist
// until explicitly cleared. Read/write failures degrade to cache misses
// and are logged, never surfaced to the caller.
type AnswerCache struct {
	client *redisv9.Client
	log    *logrus.Logger
}

func NewAnswerCache(client *redisv9.Client, log *logrus.Logger) *AnswerCache {
	return &AnswerCache{client: client, log: log}
}

// Key derives the content address for a (query, docType) pair.
func Key(query, docType string) string {
	normalized := strings.ToLower(strings.TrimSpace(query)) + "_" + docType
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer for the pair. A hit increments hit_count
// and refreshes last_accessed_at.
func (c *AnswerCache) Get(ctx context.Context, query, docType string) (*model.CachedAnswer, bool) {
	key := Key(query, docType)
	fields, err := c.client.HGetAll(ctx, answerKeyPrefix+key).Result()
	if err != nil {
		c.log.WithError(err).Warn("cache read failed, treating as miss")
		return nil, false
	}
	if len(fields) == 0 {
		return nil, false
	}

	cached, err := cachedAnswerFromFields(key, fields)
	if err != nil {
		c.log.WithError(err).Warn("cache entry malformed, treating as miss")
		return nil, false
	}

	now := time.Now().UTC()
	pipe := c.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, answerKeyPrefix+key, "hit_count", 1)
	pipe.HSet(ctx, answerKeyPrefix+key, "last_accessed_at", now.Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("cache hit bookkeeping failed")
	} else {
		cached.HitCount = incr.Val()
		cached.LastAccessedAt = now
	}
	return cached, true
}

// Put stores the answer when its confidence clears the threshold.
func (c *AnswerCache) Put(ctx context.Context, query, docType string, ans *model.GeneratedAnswer) error {
	if ans.ConfidenceScore < MinCacheConfidence {
		return nil
	}
	key := Key(query, docType)
	sourcesJSON, err := json.Marshal(ans.Sources)
	if err != nil {
		return fmt.Errorf("marshal cached sources failed: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	fields := map[string]interface{}{
		"query_text":       query,
		"doc_type":         docType,
		"answer":           ans.Answer,
		"sources":          string(sourcesJSON),
		"confidence_score": strconv.FormatFloat(ans.ConfidenceScore, 'f', -1, 64),
		"model_used":       ans.ModelUsed,
		"hit_count":        "0",
		"created_at":       now,
		"last_accessed_at": now,
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, answerKeyPrefix+key, fields)
	pipe.SAdd(ctx, keyIndexSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache write failed: %w", err)
	}
	return nil
}

// Clear removes every cached answer. Entries have no TTL; this is the
// only way they leave the cache.
func (c *AnswerCache) Clear(ctx context.Context) (int64, error) {
	keys, err := c.client.SMembers(ctx, keyIndexSet).Result()
	if err != nil {
		return 0, fmt.Errorf("list cache keys failed: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys)+1)
	for i, k := range keys {
		full[i] = answerKeyPrefix + k
	}
	full[len(keys)] = keyIndexSet
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return 0, fmt.Errorf("delete cache keys failed: %w", err)
	}
	return int64(len(keys)), nil
}

func cachedAnswerFromFields(key string, fields map[string]string) (*model.CachedAnswer, error) {
	var sources model.Sources
	if raw := fields["sources"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &sources); err != nil {
			return nil, fmt.Errorf("unmarshal cached sources failed: %w", err)
		}
	}
	confidence, err := strconv.ParseFloat(fields["confidence_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse cached confidence failed: %w", err)
	}
	hitCount, _ := strconv.ParseInt(fields["hit_count"], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339, fields["created_at"])
	lastAccessed, _ := time.Parse(time.RFC3339, fields["last_accessed_at"])
	return &model.CachedAnswer{
		CacheKey:        key,
		QueryText:       fields["query_text"],
		DocType:         fields["doc_type"],
		Answer:          fields["answer"],
		Sources:         sources,
		ConfidenceScore: confidence,
		ModelUsed:       fields["model_used"],
		HitCount:        hitCount,
		CreatedAt:       createdAt,
		LastAccessedAt:  lastAccessed,
	}, nil
}
