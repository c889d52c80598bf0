package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/handlers"
)

func registerCapsuleRoutes(protected *gin.RouterGroup, h *handlers.CapsuleHandler) {
	capsules := protected.Group("/capsules")
	{
		capsules.POST("", h.Create)
		capsules.GET("/dashboard", h.Dashboard)
		capsules.GET("/can-view", h.ListVisible)
		capsules.GET("/can-be-opened", h.ListOpenable)
		capsules.GET("/my-capsules", h.ListOwned)

		capsules.GET("/:id", h.Get)
		capsules.DELETE("/:id", h.Delete)
		capsules.GET("/:id/opened", h.GetOpened)
		capsules.GET("/:id/locked", h.GetLocked)
		capsules.GET("/:id/description", h.Description)
		capsules.GET("/:id/viewers", h.Viewers)

		capsules.GET("/:id/questions", h.Questions)
		capsules.POST("/:id/questions", h.AddQuestion)
		capsules.POST("/:id/questions/:questionId/answer", h.SubmitAnswer)
		capsules.GET("/:id/questions/:questionId/explanation", h.Explanation)

		capsules.POST("/:id/open", h.Open)
		capsules.POST("/:id/abort", h.Abort)

		capsules.GET("/:id/media", h.Media)
		capsules.POST("/:id/media", h.AddMedia)
		capsules.POST("/:id/image", h.SetImage)
		capsules.GET("/:id/reactions", h.Reactions)
		capsules.POST("/:id/reactions", h.React)
		capsules.GET("/:id/comments", h.Comments)
		capsules.POST("/:id/comments", h.AddComment)
	}
}
