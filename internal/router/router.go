package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/clauseforge/backend/config"
	"github.com/clauseforge/backend/internal/handler"
)

func Setup(
	cfg *config.Config,
	templateHandler *handler.TemplateHandler,
	documentHandler *handler.DocumentHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	{
		templates := api.Group("/templates")
		{
			templates.POST("", templateHandler.Create)
			templates.GET("", templateHandler.List)
			templates.GET("/:id", templateHandler.Get)
			templates.PUT("/:id", templateHandler.Update)
			templates.DELETE("/:id", templateHandler.Delete)
			templates.POST("/:id/clauses", templateHandler.AddClause)
			templates.PUT("/:id/clauses/:clauseId", templateHandler.UpdateClause)
			templates.DELETE("/:id/clauses/:clauseId", templateHandler.DeleteClause)
		}

		documents := api.Group("/documents")
		{
			documents.POST("", documentHandler.Create)
			documents.GET("", documentHandler.List)
			documents.GET("/queue/status", documentHandler.Status) // 编排器状态
			documents.GET("/ref/:refKey", documentHandler.GetByRefKey)
			documents.GET("/:id", documentHandler.Get)
			documents.POST("/:id/advance", documentHandler.Advance) // 同步推进一个条款
			documents.POST("/:id/run", documentHandler.Run)         // 后台推进到终态
			documents.POST("/:id/pause", documentHandler.Pause)
			documents.POST("/:id/resume", documentHandler.Resume)
			documents.GET("/:id/preview", documentHandler.Preview)
			documents.GET("/:id/render", documentHandler.Render)
			documents.DELETE("/:id", documentHandler.Delete)
		}
	}

	return r
}
