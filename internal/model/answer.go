package model

import "time"

// Answer statuses. A low-confidence answer has its text replaced by a
// fixed message before it leaves the pipeline.
const (
	StatusSuccess       = "success"
	StatusLowConfidence = "low_confidence"
)

// SourceRef is a cited document chunk as presented to the caller.
type SourceRef struct {
	Index    int     `json:"index"`
	ChunkID  string  `json:"chunk_id"`
	Title    string  `json:"title,omitempty"`
	DocType  string  `json:"doc_type,omitempty"`
	Author   string  `json:"author,omitempty"`
	Year     int     `json:"year,omitempty"`
	Chapter  string  `json:"chapter,omitempty"`
	Source   string  `json:"source,omitempty"`
	Citation string  `json:"citation"`
	Score    float64 `json:"score"`
}

// FigureRef is a cited figure.
type FigureRef struct {
	Index      int    `json:"index"`
	FigureID   string `json:"figure_id"`
	FigureType string `json:"figure_type,omitempty"`
	Caption    string `json:"caption,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	Citation   string `json:"citation"`
}

// Sources groups the cited material behind an answer.
type Sources struct {
	Documents []SourceRef `json:"documents"`
	Figures   []FigureRef `json:"figures"`
}

// GeneratedAnswer is the final product of one query.
type GeneratedAnswer struct {
	Answer          string  `json:"answer"`
	Sources         Sources `json:"sources"`
	ConfidenceScore float64 `json:"confidence_score"`
	Status          string  `json:"status"`
	ModelUsed       string  `json:"model_used"`
	QueryID         string  `json:"query_id"`
	CacheHit        bool    `json:"cache_hit"`

	// Estimated when the provider does not report exact usage.
	PromptTokens     int   `json:"prompt_tokens,omitempty"`
	CompletionTokens int   `json:"completion_tokens,omitempty"`
	LatencyMS        int64 `json:"latency_ms,omitempty"`
}

// CachedAnswer is the stored form of a confident answer, addressed by
// SHA256(normalized query + "_" + doc type).
type CachedAnswer struct {
	CacheKey        string    `json:"cache_key"`
	QueryText       string    `json:"query_text"`
	DocType         string    `json:"doc_type"`
	Answer          string    `json:"answer"`
	Sources         Sources   `json:"sources"`
	ConfidenceScore float64   `json:"confidence_score"`
	ModelUsed       string    `json:"model_used"`
	HitCount        int64     `json:"hit_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastAccessedAt  time.Time `json:"last_accessed_at"`
}
