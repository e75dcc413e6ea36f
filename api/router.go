package api

import (
	"ffsqueeze/config"
	"ffsqueeze/task"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRouter(tm *task.Manager, cfg *config.Config, log *logrus.Entry) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(log), gin.Recovery())
	h := NewHandler(tm, cfg, log)

	r.GET("/health", h.handleHealth)

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.POST("/batches", h.handleCreateBatch)
		v1.GET("/batches", h.handleListBatches)
		v1.GET("/batches/:batchId", h.handleGetBatch)
		v1.PATCH("/batches/:batchId/cancel", h.handleCancelBatch)

		// Progress streams
		v1.GET("/batches/:batchId/events", h.handleBatchEvents)
		v1.GET("/batches/:batchId/ws", h.handleBatchWebSocket)

		v1.GET("/batches/:batchId/output", h.handleGetOutput)
	}
	return r
}
