package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/handlers"
)

type socialRouteDeps struct {
	Notifications *handlers.NotificationHandler
	Profile       *handlers.ProfileHandler
	Friends       *handlers.FriendHandler
}

func registerSocialRoutes(protected *gin.RouterGroup, deps socialRouteDeps) {
	protected.GET("/notifications", deps.Notifications.List)

	profile := protected.Group("/profile")
	{
		profile.GET("", deps.Profile.Me)
		profile.PATCH("", deps.Profile.Update)
		profile.POST("/avatar", deps.Profile.UploadAvatar)
		profile.GET("/capsules", deps.Profile.Capsules)
		profile.GET("/friends", deps.Profile.Friends)
		profile.GET("/notifications", deps.Profile.Notifications)
	}

	friends := protected.Group("/friends")
	{
		friends.GET("", deps.Friends.List)
		friends.POST("/requests", deps.Friends.SendRequest)
		friends.GET("/requests", deps.Friends.Pending)
		friends.POST("/requests/:id/accept", deps.Friends.Accept)
		friends.POST("/requests/:id/reject", deps.Friends.Reject)
	}
}
