package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/controllers"
	"github.com/phillip/haojiu-go/metrics"
	"github.com/phillip/haojiu-go/middleware"
)

func SetupRoutes(r *gin.Engine, env *controllers.Env) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     env.Cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"ETag", "Last-Modified"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "live_clients": env.Hub.Clients()})
	})
	r.GET("/metrics", metrics.Handler())

	r.POST("/auth/register", controllers.Register(env))
	r.POST("/auth/login", controllers.Login(env))

	// protected
	auth := middleware.AuthRequired(env.Auth)
	admin := middleware.AdminRequired()
	chatLimit := middleware.RateLimit(env.Cfg.ChatRatePerMinute)

	session := r.Group("/auth")
	session.Use(auth)
	{
		session.POST("/logout", controllers.Logout(env))
		session.GET("/session", controllers.CurrentSession(env))
	}

	r.GET("/live", auth, controllers.Live(env))

	// Events
	events := r.Group("/events")
	events.Use(auth)
	{
		events.POST("", controllers.CreateEvent(env))
		events.GET("", controllers.ListEvents(env))
		events.GET("/:id", controllers.GetEvent(env))
		events.PATCH("/:id", controllers.UpdateEvent(env))
		events.POST("/:id/respond", controllers.SetResponse(env))
		events.POST("/:id/poster", controllers.GeneratePoster(env))
		events.GET("/:id/messages", controllers.ListMessages(env))
		events.POST("/:id/messages", chatLimit, controllers.SendMessage(env))
	}

	// Challenges
	challenges := r.Group("/challenges")
	challenges.Use(auth)
	{
		challenges.POST("", controllers.CreateChallenge(env))
		challenges.GET("", controllers.ListChallenges(env))
		challenges.GET("/:id", controllers.GetChallenge(env))
		challenges.POST("/:id/join", controllers.JoinChallenge(env))
		challenges.POST("/:id/team", controllers.CreateTeam(env))
		challenges.POST("/:id/points/:pointId/submit", controllers.SubmitPoint(env))
		challenges.POST("/:id/points/:pointId/review", controllers.ReviewPoint(env))
	}

	chats := r.Group("/chats")
	chats.Use(auth)
	{
		chats.GET("/:chatId/messages", controllers.ListMessages(env))
		chats.POST("/:chatId/messages", chatLimit, controllers.SendMessage(env))
	}

	friends := r.Group("/friends")
	friends.Use(auth)
	{
		friends.GET("", controllers.ListFriends(env))
		friends.POST("/requests/:userId", controllers.SendFriendRequest(env))
		friends.POST("/requests/:userId/accept", controllers.AcceptFriendRequest(env))
		friends.DELETE("/requests/:userId", controllers.DeclineFriendRequest(env))
		friends.POST("/groups", controllers.CreateGroup(env))
	}

	users := r.Group("/users")
	users.Use(auth)
	{
		users.GET("/me", controllers.Me(env))
		users.PATCH("/me", controllers.UpdateProfile(env))
		users.POST("/me/avatar", controllers.UploadAvatar(env))
		users.GET("/:id", controllers.GetUser(env))
	}

	notifs := r.Group("/notifications")
	notifs.Use(auth)
	{
		notifs.GET("", controllers.ListNotifications(env))
		notifs.GET("/unread", controllers.UnreadNotifications(env))
		notifs.PATCH("/:id/read", controllers.MarkNotificationRead(env))
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(auth, admin)
	{
		adminGroup.GET("/events", controllers.AdminSearchEvents(env))
		adminGroup.DELETE("/events/:id", controllers.DeleteEvent(env))
		adminGroup.DELETE("/challenges/:id", controllers.DeleteChallenge(env))
		adminGroup.GET("/users", controllers.ListUsers(env))
	}
}
