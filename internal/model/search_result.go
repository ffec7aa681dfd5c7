package model

// ResultType discriminates the two retrieval shapes.
type ResultType string

const (
	ResultTypeDocument ResultType = "document"
	ResultTypeFigure   ResultType = "figure"
)

// SearchResult is a transient per-query retrieval hit. Score is the base
// relevance from the backend; RerankScore, CustomScore and FinalScore are
// filled in by the later pipeline stages when those stages run.
type SearchResult struct {
	ID         string     `json:"id"`
	ResultType ResultType `json:"result_type"`
	Score      float64    `json:"score"`
	Payload    Payload    `json:"payload"`

	RerankScore float64 `json:"rerank_score,omitempty"`
	CustomScore float64 `json:"custom_score,omitempty"`
	FinalScore  float64 `json:"final_score,omitempty"`
	Reranked    bool    `json:"-"`
}

// PassageText is the text a cross-encoder scores against the query:
// body content for documents, caption for figures.
func (r *SearchResult) PassageText() string {
	if r.ResultType == ResultTypeFigure {
		return r.Payload.Str("caption")
	}
	return r.Payload.Str("content")
}

// RankingScore is the best score available for ranking and confidence:
// final if fusion ran, otherwise the base relevance.
func (r *SearchResult) RankingScore() float64 {
	if r.FinalScore > 0 {
		return r.FinalScore
	}
	return r.Score
}

func (r *SearchResult) DocType() string { return r.Payload.Str("doc_type") }
