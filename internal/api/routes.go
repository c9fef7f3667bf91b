package api

import (
	"github.com/gin-gonic/gin"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/metrics"
)

// NewRouter builds the engine with the middleware chain and all routes.
func NewRouter(handler *Handler, tokens *auth.TokenManager) *gin.Engine {
	log := logger.For("http")

	router := gin.New()
	router.Use(RequestID(), RequestLogger(log), Recovery(log), CORS(handler.cfg.Server.AllowOrigins))
	SetupRoutes(router, handler, tokens)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler, tokens *auth.TokenManager) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1", JWTAuth(tokens))
	{
		courses := v1.Group("/courses/:course_id")
		courses.POST("/structure", handler.CreateStructure)
		courses.POST("/structure/template", handler.CreateFromTemplate)
		courses.DELETE("/structure", handler.DeactivateStructure)
		courses.GET("/grades", handler.GetGrades)
		courses.GET("/grades/export", handler.ExportGrades)
		courses.POST("/grades/import", handler.ImportGrades)
		courses.GET("/level", handler.DetectLevel)
		courses.POST("/push", handler.PushGrades)

		v1.PUT("/grades", handler.UpdateGrades)
		v1.GET("/templates", handler.GetTemplates)
		v1.GET("/imports/:file_id", handler.GetImportStatus)

		v1.POST("/sync", handler.SyncData)
		v1.POST("/sync/queue", handler.QueueSync)
		v1.GET("/sync/logs", handler.ListSyncLogs)
		v1.POST("/enrollments/pull", handler.PullEnrollments)
	}
}
