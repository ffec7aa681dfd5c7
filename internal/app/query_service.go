package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"corpusqa/internal/ai"
	"corpusqa/internal/cache"
	"corpusqa/internal/model"
	"corpusqa/internal/rerank"
	"corpusqa/internal/search"
	"corpusqa/internal/vectorstore"
)

var ErrEmptyQuery = errors.New("query text is empty")

const (
	// promptTopK caps how many document chunks enter the prompt.
	promptTopK = 3
	// figureSearchLimit caps the figure-collection leg per query.
	figureSearchLimit = 2

	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// EventPublisher receives the best-effort audit event after every query.
type EventPublisher interface {
	Publish(ctx context.Context, event model.QueryEvent) error
}

// QueryInput is one question plus its per-request overrides. Nil override
// pointers fall back to the live retrieval config.
type QueryInput struct {
	Query       string
	DocType     string
	Filter      vectorstore.Filter
	UseHybrid   *bool
	HybridAlpha *float64
	UseCache    bool
	ModelTier   string
}

// StreamEvent is one frame of a streamed answer: a "metadata" frame with
// the sources, then "content" deltas, then a "final" frame with the
// confidence verdict.
type StreamEvent struct {
	Type            string         `json:"type"`
	QueryID         string         `json:"query_id,omitempty"`
	ModelUsed       string         `json:"model_used,omitempty"`
	CacheHit        bool           `json:"cache_hit,omitempty"`
	Sources         *model.Sources `json:"sources,omitempty"`
	Content         string         `json:"content,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	Status          string         `json:"status,omitempty"`
}

// QueryService runs the full pipeline: cache lookup, hybrid retrieval,
// reranking, score fusion, model routing, generation, confidence gating,
// cache write-back, and audit publishing.
type QueryService struct {
	engine    *search.Engine
	llm       ai.Provider
	reranker  *rerank.Reranker
	router    *ai.ModelRouter
	answers   *cache.AnswerCache
	publisher EventPublisher
	configs   *RetrievalConfigStore
	log       *logrus.Logger

	docCollection    string
	figureCollection string

	group singleflight.Group
}

func NewQueryService(
	engine *search.Engine,
	llm ai.Provider,
	reranker *rerank.Reranker,
	router *ai.ModelRouter,
	answers *cache.AnswerCache,
	publisher EventPublisher,
	configs *RetrievalConfigStore,
	docCollection, figureCollection string,
	log *logrus.Logger,
) *QueryService {
	return &QueryService{
		engine:           engine,
		llm:              llm,
		reranker:         reranker,
		router:           router,
		answers:          answers,
		publisher:        publisher,
		configs:          configs,
		docCollection:    docCollection,
		figureCollection: figureCollection,
		log:              log,
	}
}

// Query answers one question synchronously.
func (s *QueryService) Query(ctx context.Context, in QueryInput) (*model.GeneratedAnswer, error) {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	if in.UseCache && s.answers != nil {
		if cached, ok := s.answers.Get(ctx, in.Query, in.DocType); ok {
			ans := answerFromCache(cached)
			ans.LatencyMS = time.Since(start).Milliseconds()
			s.publishEvent(ctx, in, ans)
			return ans, nil
		}
	}

	// Concurrent identical misses share one computation. Requests
	// carrying an explicit filter are not deduplicated since the filter
	// is part of the effective question.
	if in.Filter == nil {
		v, err, _ := s.group.Do(dedupKey(in), func() (interface{}, error) {
			return s.answer(ctx, in, start)
		})
		if err != nil {
			return nil, err
		}
		shared := v.(*model.GeneratedAnswer)
		ans := *shared
		return &ans, nil
	}
	return s.answer(ctx, in, start)
}

// dedupKey distinguishes misses that would be answered differently.
// Tuning overrides change retrieval or routing, so they join the
// normalized query and doc type in the key.
func dedupKey(in QueryInput) string {
	key := cache.Key(in.Query, in.DocType)
	if in.ModelTier != "" {
		key += "|tier=" + strings.ToLower(in.ModelTier)
	}
	if in.UseHybrid != nil {
		key += "|hybrid=" + strconv.FormatBool(*in.UseHybrid)
	}
	if in.HybridAlpha != nil {
		key += "|alpha=" + strconv.FormatFloat(*in.HybridAlpha, 'f', -1, 64)
	}
	return key
}

func (s *QueryService) answer(ctx context.Context, in QueryInput, start time.Time) (*model.GeneratedAnswer, error) {
	cfg := s.liveConfig()
	fused, err := s.retrieve(ctx, in, cfg)
	if err != nil {
		return nil, err
	}

	if len(fused) == 0 {
		ans := s.finish(&model.GeneratedAnswer{
			Answer:          NoSourcesMessage,
			Sources:         emptySources(),
			ConfidenceScore: 0,
			Status:          model.StatusLowConfidence,
		}, start)
		s.publishEvent(ctx, in, ans)
		return ans, nil
	}

	messages, sources := buildPrompt(in.Query, selectPromptResults(fused))
	modelName := s.router.SelectModel(in.Query, fused, in.ModelTier)

	answerText, err := s.llm.Complete(ctx, ai.ChatConfig{
		Model:       modelName,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}, messages)
	if err != nil {
		s.log.WithError(err).WithField("model", modelName).Error("answer generation failed")
		ans := s.finish(&model.GeneratedAnswer{
			Answer:          GenerationFailedMessage,
			Sources:         sources,
			ConfidenceScore: 0,
			Status:          model.StatusLowConfidence,
			ModelUsed:       modelName,
		}, start)
		s.publishEvent(ctx, in, ans)
		return ans, nil
	}

	ans := s.verdict(in.Query, answerText, fused, messages)
	ans.Sources = sources
	ans.ModelUsed = modelName
	ans = s.finish(ans, start)

	if in.UseCache && s.answers != nil {
		if err := s.answers.Put(ctx, in.Query, in.DocType, ans); err != nil {
			s.log.WithError(err).Warn("answer cache write failed")
		}
	}
	s.publishEvent(ctx, in, ans)
	return ans, nil
}

// StreamQuery answers one question as a stream of events through emit.
// When emit reports the consumer is gone, generation stops but the
// partial answer is still scored and recorded.
func (s *QueryService) StreamQuery(ctx context.Context, in QueryInput, emit func(StreamEvent) error) error {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return ErrEmptyQuery
	}

	start := time.Now()
	if in.UseCache && s.answers != nil {
		if cached, ok := s.answers.Get(ctx, in.Query, in.DocType); ok {
			ans := answerFromCache(cached)
			ans.LatencyMS = time.Since(start).Milliseconds()
			s.publishEvent(ctx, in, ans)
			return emitAll(emit, ans)
		}
	}

	cfg := s.liveConfig()
	fused, err := s.retrieve(ctx, in, cfg)
	if err != nil {
		return err
	}

	if len(fused) == 0 {
		ans := s.finish(&model.GeneratedAnswer{
			Answer:          NoSourcesMessage,
			Sources:         emptySources(),
			ConfidenceScore: 0,
			Status:          model.StatusLowConfidence,
		}, start)
		s.publishEvent(ctx, in, ans)
		return emitAll(emit, ans)
	}

	messages, sources := buildPrompt(in.Query, selectPromptResults(fused))
	modelName := s.router.SelectModel(in.Query, fused, in.ModelTier)
	queryID := uuid.NewString()

	if err := emit(StreamEvent{
		Type:      "metadata",
		QueryID:   queryID,
		ModelUsed: modelName,
		Sources:   &sources,
	}); err != nil {
		return err
	}

	var disconnected bool
	answerText, genErr := s.llm.StreamComplete(ctx, ai.ChatConfig{
		Model:       modelName,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}, messages, func(delta string) error {
		if err := emit(StreamEvent{Type: "content", Content: delta}); err != nil {
			disconnected = true
			return err
		}
		return nil
	})
	if genErr != nil && !disconnected {
		s.log.WithError(genErr).WithField("model", modelName).Error("streamed generation failed")
		if answerText == "" {
			answerText = GenerationFailedMessage
		}
	}

	ans := s.verdict(in.Query, answerText, fused, messages)
	ans.Sources = sources
	ans.ModelUsed = modelName
	ans.QueryID = queryID
	ans.LatencyMS = time.Since(start).Milliseconds()

	// A disconnected or failed stream carries a partial answer; record
	// it but never cache it.
	if in.UseCache && s.answers != nil && genErr == nil && !disconnected {
		if err := s.answers.Put(ctx, in.Query, in.DocType, ans); err != nil {
			s.log.WithError(err).Warn("answer cache write failed")
		}
	}
	s.publishEvent(ctx, in, ans)

	if disconnected {
		return nil
	}
	return emit(finalEvent(ans))
}

// retrieve runs the document and figure legs and fuses the results.
func (s *QueryService) retrieve(ctx context.Context, in QueryInput, cfg *model.RetrievalConfig) ([]model.SearchResult, error) {
	useHybrid := cfg.UseHybrid
	if in.UseHybrid != nil {
		useHybrid = *in.UseHybrid
	}
	alpha := cfg.HybridAlpha
	if in.HybridAlpha != nil {
		alpha = *in.HybridAlpha
	}

	docs, err := s.engine.Search(ctx, in.Query, search.Options{
		Collection: s.docCollection,
		DocType:    in.DocType,
		Filter:     in.Filter,
		UseHybrid:  useHybrid,
		Alpha:      alpha,
		Limit:      cfg.TopK,
		MinScore:   cfg.MinScore,
	})
	if err != nil {
		return nil, err
	}

	// Figures index text under caption, so content filters are remapped
	// before the figure leg runs. Doc-type filtering does not apply.
	figures, err := s.engine.Search(ctx, in.Query, search.Options{
		Collection: s.figureCollection,
		Filter:     vectorstore.RemapFields(in.Filter, map[string]string{"content": "caption"}),
		UseHybrid:  useHybrid,
		Alpha:      alpha,
		Limit:      figureSearchLimit,
		MinScore:   cfg.MinScore,
	})
	if err != nil {
		s.log.WithError(err).Warn("figure retrieval failed, continuing with documents only")
		figures = nil
	}

	combined := append(docs, figures...)
	if len(combined) == 0 {
		return nil, nil
	}

	reranked := false
	if cfg.UseReranking && s.reranker != nil {
		var took time.Duration
		combined, took, reranked = s.reranker.Rerank(ctx, in.Query, combined)
		if reranked {
			s.log.WithFields(logrus.Fields{"results": len(combined), "took": took}).Debug("rerank complete")
		}
	}

	return search.Fuse(combined, search.FusionParams{
		DocTypeWeights:  cfg.WeightMap(),
		RecencyBoost:    cfg.RecencyBoost,
		RerankingFactor: cfg.RerankingFactor,
		Reranked:        reranked,
		Now:             time.Now(),
	}), nil
}

// verdict scores the generated text and applies the low-confidence gate.
func (s *QueryService) verdict(query, answerText string, fused []model.SearchResult, messages []ai.ChatMessage) *model.GeneratedAnswer {
	confidence := ScoreConfidence(answerText, fused)
	status := model.StatusSuccess
	finalText := answerText
	if confidence < LowConfidenceThreshold {
		status = model.StatusLowConfidence
		finalText = LowConfidenceMessage
	}

	var promptText strings.Builder
	for _, m := range messages {
		promptText.WriteString(m.Content)
		promptText.WriteByte('\n')
	}
	return &model.GeneratedAnswer{
		Answer:           finalText,
		ConfidenceScore:  confidence,
		Status:           status,
		PromptTokens:     estimateTokens(promptText.String()),
		CompletionTokens: estimateTokens(answerText),
	}
}

func (s *QueryService) finish(ans *model.GeneratedAnswer, start time.Time) *model.GeneratedAnswer {
	ans.QueryID = uuid.NewString()
	ans.LatencyMS = time.Since(start).Milliseconds()
	return ans
}

func (s *QueryService) liveConfig() *model.RetrievalConfig {
	cfg := s.configs.Live()
	if cfg == nil {
		cfg = &model.RetrievalConfig{UseHybrid: true, HybridAlpha: 0.75, TopK: 5, RerankingFactor: 0.5}
	}
	if cfg.TopK <= 0 {
		clone := *cfg
		clone.TopK = 5
		cfg = &clone
	}
	return cfg
}

func (s *QueryService) publishEvent(ctx context.Context, in QueryInput, ans *model.GeneratedAnswer) {
	if s.publisher == nil {
		return
	}
	event := model.QueryEvent{
		QueryID:    ans.QueryID,
		QueryText:  in.Query,
		DocType:    in.DocType,
		Answer:     ans.Answer,
		Confidence: ans.ConfidenceScore,
		ModelUsed:  ans.ModelUsed,
		LatencyMS:  ans.LatencyMS,
		CacheHit:   ans.CacheHit,
		CreatedAt:  time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithError(err).Warn("query event publish failed")
	}
}

// selectPromptResults keeps the prompt bounded: the best promptTopK
// document chunks plus any figures, in fused order.
func selectPromptResults(fused []model.SearchResult) []model.SearchResult {
	var selected []model.SearchResult
	docCount := 0
	for _, res := range fused {
		if res.ResultType == model.ResultTypeFigure {
			selected = append(selected, res)
			continue
		}
		if docCount < promptTopK {
			selected = append(selected, res)
			docCount++
		}
	}
	return selected
}

func answerFromCache(cached *model.CachedAnswer) *model.GeneratedAnswer {
	return &model.GeneratedAnswer{
		Answer:          cached.Answer,
		Sources:         cached.Sources,
		ConfidenceScore: cached.ConfidenceScore,
		Status:          model.StatusSuccess,
		ModelUsed:       cached.ModelUsed,
		QueryID:         uuid.NewString(),
		CacheHit:        true,
	}
}

func emptySources() model.Sources {
	return model.Sources{Documents: []model.SourceRef{}, Figures: []model.FigureRef{}}
}

func emitAll(emit func(StreamEvent) error, ans *model.GeneratedAnswer) error {
	if err := emit(StreamEvent{
		Type:      "metadata",
		QueryID:   ans.QueryID,
		ModelUsed: ans.ModelUsed,
		CacheHit:  ans.CacheHit,
		Sources:   &ans.Sources,
	}); err != nil {
		return err
	}
	if err := emit(StreamEvent{Type: "content", Content: ans.Answer}); err != nil {
		return err
	}
	return emit(finalEvent(ans))
}

func finalEvent(ans *model.GeneratedAnswer) StreamEvent {
	confidence := ans.ConfidenceScore
	return StreamEvent{
		Type:            "final",
		QueryID:         ans.QueryID,
		ModelUsed:       ans.ModelUsed,
		CacheHit:        ans.CacheHit,
		ConfidenceScore: &confidence,
		Status:          ans.Status,
	}
}
