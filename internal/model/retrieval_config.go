package model

import (
	"encoding/json"
	"time"
)

// RetrievalConfig is a versioned tuning profile for the query pipeline.
// Rows are immutable once created; activation flips which version is live.
type RetrievalConfig struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Version         int       `gorm:"not null;uniqueIndex" json:"version"`
	Active          bool      `gorm:"not null;index" json:"active"`
	UseHybrid       bool      `gorm:"not null" json:"use_hybrid"`
	HybridAlpha     float64   `gorm:"not null" json:"hybrid_alpha"`
	TopK            int       `gorm:"not null" json:"top_k"`
	MinScore        float64   `gorm:"not null" json:"min_score"`
	UseReranking    bool      `gorm:"not null" json:"use_reranking"`
	RerankingFactor float64   `gorm:"not null" json:"reranking_factor"`
	DocTypeWeights  string    `gorm:"type:text" json:"-"` // JSON object of doc_type -> weight
	RecencyBoost    float64   `gorm:"not null" json:"recency_boost"`
	CreatedAt       time.Time `json:"created_at"`
}

// WeightMap returns the parsed doc-type weights; nil when unset or invalid.
func (c *RetrievalConfig) WeightMap() map[string]float64 {
	if c.DocTypeWeights == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(c.DocTypeWeights), &m); err != nil {
		return nil
	}
	return m
}

// SetWeightMap stores the weights as JSON.
func (c *RetrievalConfig) SetWeightMap(m map[string]float64) {
	if len(m) == 0 {
		c.DocTypeWeights = ""
		return
	}
	b, _ := json.Marshal(m)
	c.DocTypeWeights = string(b)
}
