package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewApi(router *gin.Engine, media *MediaHandler) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	mediaRoutes := router.Group("/media")
	{
		mediaRoutes.POST("", media.Upload)
		mediaRoutes.GET("", media.List)
		mediaRoutes.GET("/:id", media.Get)
		mediaRoutes.DELETE("/:id", media.Delete)
		mediaRoutes.POST("/:id/restore", media.Restore)
	}
}
