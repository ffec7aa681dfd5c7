package model

import "time"

// QueryRecord is the minimal history row the core persists per query.
// GeneratedAnswer.QueryID references it; richer analytics live in an
// external subsystem.
type QueryRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	QueryText  string    `gorm:"type:text;not null" json:"query_text"`
	DocType    string    `gorm:"size:64;index" json:"doc_type"`
	Answer     string    `gorm:"type:text" json:"answer"`
	Confidence float64   `gorm:"not null" json:"confidence"`
	ModelUsed  string    `gorm:"size:128" json:"model_used"`
	LatencyMS  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueryEvent is the best-effort audit payload published after each query.
type QueryEvent struct {
	QueryID    string    `json:"query_id"`
	QueryText  string    `json:"query_text"`
	DocType    string    `json:"doc_type"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	ModelUsed  string    `json:"model_used"`
	LatencyMS  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record converts the event into its persisted form.
func (e *QueryEvent) Record() *QueryRecord {
	return &QueryRecord{
		ID:         e.QueryID,
		QueryText:  e.QueryText,
		DocType:    e.DocType,
		Answer:     e.Answer,
		Confidence: e.Confidence,
		ModelUsed:  e.ModelUsed,
		LatencyMS:  e.LatencyMS,
		CacheHit:   e.CacheHit,
		CreatedAt:  e.CreatedAt,
	}
}
