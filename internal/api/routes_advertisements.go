package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/handlers"
)

func registerAdvertisementRoutes(api, protected *gin.RouterGroup, h *handlers.AdvertisementHandler, requireAdmin gin.HandlerFunc) {
	api.GET("/advertisements", h.ListActive)

	admin := protected.Group("/admin")
	admin.Use(requireAdmin)
	{
		admin.POST("/advertisements", h.Create)
		admin.PATCH("/advertisements/:id", h.Update)
		admin.PUT("/advertisements/:id", h.Update)
	}
}
