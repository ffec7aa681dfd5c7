package http

import (
	"github.com/gin-gonic/gin"

	"corpusqa/internal/bootstrap"
	"corpusqa/internal/transport/http/handler"
	"corpusqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	queryHandler := handler.NewQueryHandler(app.QueryService)
	adminHandler := handler.NewAdminHandler(app.ConfigRepo, app.ConfigStore, app.AnswerCache)
	historyHandler := handler.NewHistoryHandler(app.RecordRepo)

	v1 := router.Group("/api/v1")
	v1.POST("/query", queryHandler.Ask)

	v1.GET("/history", historyHandler.List)
	v1.GET("/history/:id", historyHandler.Get)

	v1.GET("/config/retrieval", adminHandler.ListRetrievalConfigs)
	v1.POST("/config/retrieval", adminHandler.CreateRetrievalConfig)
	v1.POST("/config/retrieval/activate", adminHandler.ActivateRetrievalConfig)

	v1.DELETE("/cache", adminHandler.ClearCache)

	return router
}
