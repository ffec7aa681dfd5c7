package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"corpusqa/internal/app"
	"corpusqa/internal/transport/http/response"
	"corpusqa/internal/vectorstore"
)

type QueryHandler struct {
	queries *app.QueryService
}

func NewQueryHandler(queries *app.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type QueryRequest struct {
	Query       string          `json:"query" binding:"required"`
	DocType     string          `json:"doc_type"`
	Filter      json.RawMessage `json:"filter"`
	UseHybrid   *bool           `json:"use_hybrid"`
	HybridAlpha *float64        `json:"hybrid_alpha"`
	UseCache    *bool           `json:"use_cache"`
	ModelTier   string          `json:"model_tier"`
	Stream      bool            `json:"stream"`
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.HybridAlpha != nil && (*req.HybridAlpha < 0 || *req.HybridAlpha > 1) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "hybrid_alpha must be between 0 and 1")
		return
	}

	filter, err := vectorstore.ParseFilter(req.Filter)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFilter, err.Error())
		return
	}

	in := app.QueryInput{
		Query:       req.Query,
		DocType:     req.DocType,
		Filter:      filter,
		UseHybrid:   req.UseHybrid,
		HybridAlpha: req.HybridAlpha,
		UseCache:    req.UseCache == nil || *req.UseCache,
		ModelTier:   req.ModelTier,
	}

	if req.Stream {
		h.stream(c, in)
		return
	}

	ans, err := h.queries.Query(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, app.ErrEmptyQuery) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		return
	}
	response.OK(c, ans)
}

func (h *QueryHandler) stream(c *gin.Context, in app.QueryInput) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	err := h.queries.StreamQuery(c.Request.Context(), in, func(event app.StreamEvent) error {
		payload, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if errors.Is(err, app.ErrEmptyQuery) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		// Headers are already out; emit a terminal error event instead.
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(err.Error()) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
	}
}

// sanitizeSSE keeps error text on a single SSE data line.
func sanitizeSSE(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
