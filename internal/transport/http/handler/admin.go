package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"corpusqa/internal/app"
	"corpusqa/internal/cache"
	"corpusqa/internal/model"
	"corpusqa/internal/repository"
	"corpusqa/internal/transport/http/response"
)

// AdminHandler exposes retrieval tuning and cache management.
type AdminHandler struct {
	configs     *repository.RetrievalConfigRepository
	configStore *app.RetrievalConfigStore
	answers     *cache.AnswerCache
}

func NewAdminHandler(configs *repository.RetrievalConfigRepository, configStore *app.RetrievalConfigStore, answers *cache.AnswerCache) *AdminHandler {
	return &AdminHandler{
		configs:     configs,
		configStore: configStore,
		answers:     answers,
	}
}

func (h *AdminHandler) ListRetrievalConfigs(c *gin.Context) {
	configs, err := h.configs.List()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list retrieval configs failed")
		return
	}
	response.OK(c, gin.H{
		"active":   h.configStore.Live(),
		"versions": configs,
	})
}

type CreateRetrievalConfigRequest struct {
	UseHybrid       bool               `json:"use_hybrid"`
	HybridAlpha     float64            `json:"hybrid_alpha"`
	TopK            int                `json:"top_k" binding:"required,min=1"`
	MinScore        float64            `json:"min_score"`
	UseReranking    bool               `json:"use_reranking"`
	RerankingFactor float64            `json:"reranking_factor"`
	DocTypeWeights  map[string]float64 `json:"doc_type_weights"`
	RecencyBoost    float64            `json:"recency_boost"`
	Activate        bool               `json:"activate"`
}

// CreateRetrievalConfig stores a new immutable tuning version; the version
// number is assigned, never chosen by the caller.
func (h *AdminHandler) CreateRetrievalConfig(c *gin.Context) {
	var req CreateRetrievalConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.HybridAlpha < 0 || req.HybridAlpha > 1 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "hybrid_alpha must be between 0 and 1")
		return
	}

	existing, err := h.configs.List()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list retrieval configs failed")
		return
	}
	nextVersion := 1
	if len(existing) > 0 {
		nextVersion = existing[0].Version + 1
	}

	cfg := &model.RetrievalConfig{
		Version:         nextVersion,
		UseHybrid:       req.UseHybrid,
		HybridAlpha:     req.HybridAlpha,
		TopK:            req.TopK,
		MinScore:        req.MinScore,
		UseReranking:    req.UseReranking,
		RerankingFactor: req.RerankingFactor,
		RecencyBoost:    req.RecencyBoost,
	}
	cfg.SetWeightMap(req.DocTypeWeights)

	if err := h.configs.Create(cfg); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create retrieval config failed")
		return
	}

	if req.Activate {
		activated, err := h.configs.Activate(cfg.Version)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "activate retrieval config failed")
			return
		}
		h.configStore.Swap(activated)
		cfg = activated
	}
	response.OK(c, cfg)
}

type ActivateRetrievalConfigRequest struct {
	Version int `json:"version" binding:"required,min=1"`
}

func (h *AdminHandler) ActivateRetrievalConfig(c *gin.Context) {
	var req ActivateRetrievalConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	activated, err := h.configs.Activate(req.Version)
	if err != nil {
		if errors.Is(err, repository.ErrConfigVersionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeVersionNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "activate retrieval config failed")
		return
	}
	h.configStore.Swap(activated)
	response.OK(c, activated)
}

func (h *AdminHandler) ClearCache(c *gin.Context) {
	cleared, err := h.answers.Clear(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear cache failed")
		return
	}
	response.OK(c, gin.H{"cleared": cleared})
}
