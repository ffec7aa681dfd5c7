package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"corpusqa/internal/repository"
	"corpusqa/internal/transport/http/response"
)

type HistoryHandler struct {
	records *repository.QueryRecordRepository
}

func NewHistoryHandler(records *repository.QueryRecordRepository) *HistoryHandler {
	return &HistoryHandler{records: records}
}

func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.records.ListRecent(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list query history failed")
		return
	}
	response.OK(c, records)
}

func (h *HistoryHandler) Get(c *gin.Context) {
	record, err := h.records.GetByID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load query record failed")
		return
	}
	if record == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "query record not found")
		return
	}
	response.OK(c, record)
}
