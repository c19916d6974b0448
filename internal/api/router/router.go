package router

import (
	"github.com/gin-gonic/gin"

	"github.com/insightq/analysis-jobs/internal/api/handler"
	"github.com/insightq/analysis-jobs/internal/domain"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)
	healthHandler := handler.NewHealthHandler(deps)

	// One submission route per category, e.g. POST /process-repository.
	for _, category := range domain.Categories() {
		r.POST("/process-"+category.Endpoint(), jobHandler.Submit(category))
	}

	r.GET("/task-status/:job_id", jobHandler.GetStatus)
	r.POST("/webhook", webhookHandler.Receive)
	r.GET("/health", healthHandler.Check)

	return r
}
