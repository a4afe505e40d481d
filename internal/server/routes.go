package server

import (
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/handlers"
)

type routeHandlers struct {
	auth          *handlers.AuthHandler
	categories    *handlers.CategoryHandler
	transactions  *handlers.TransactionHandler
	exports       *handlers.ExportHandler
	profile       *handlers.ProfileHandler
	stats         *handlers.StatsHandler
	voice         *handlers.VoiceHandler
	chat          *handlers.ChatHandler
	subscription  *handlers.SubscriptionHandler
	feedback      *handlers.FeedbackHandler
	notifications *handlers.NotificationHandler
	admin         *handlers.AdminHandler
}

type routeMiddleware struct {
	auth         echo.MiddlewareFunc
	stream       echo.MiddlewareFunc
	admin        echo.MiddlewareFunc
	subscription echo.MiddlewareFunc
	authLimit    echo.MiddlewareFunc
	aiLimit      echo.MiddlewareFunc
	voiceBody    echo.MiddlewareFunc
}

func registerRoutes(e *echo.Echo, h routeHandlers, m routeMiddleware, db handlers.Pinger) {
	e.GET("/health", handlers.Health)
	e.GET("/ready", handlers.Ready(db))

	api := e.Group("/api/v1")
	authGroup := api.Group("/auth", m.authLimit)

	authGroup.POST("/register", h.auth.Register)
	authGroup.POST("/login", h.auth.Login)
	authGroup.POST("/refresh", h.auth.Refresh)
	authGroup.POST("/logout", h.auth.Logout)
	authGroup.GET("/me", h.auth.Me, m.auth)

	categories := api.Group("/categories", m.auth)
	categories.GET("", h.categories.List)
	categories.GET("/tree", h.categories.Tree)
	categories.POST("", h.categories.Create)
	categories.PUT("/:id", h.categories.Update)
	categories.DELETE("/:id", h.categories.Delete)

	transactions := api.Group("/transactions", m.auth)
	transactions.GET("", h.transactions.List)
	transactions.GET("/export", h.exports.Transactions)
	transactions.POST("", h.transactions.Create)
	transactions.PUT("/:id", h.transactions.Update)
	transactions.DELETE("/:id", h.transactions.Delete)

	profile := api.Group("/profile", m.auth)
	profile.GET("", h.profile.Get)
	profile.PUT("", h.profile.Update)

	stats := api.Group("/stats", m.auth)
	stats.GET("/overview", h.stats.Overview)
	stats.GET("/spending-by-category", h.stats.SpendingByCategory)
	stats.GET("/monthly-trend", h.stats.MonthlyTrend)

	voiceGroup := api.Group("/voice", m.auth, m.subscription)
	voiceGroup.POST("/parse", h.voice.Parse, m.voiceBody, m.aiLimit)
	voiceGroup.POST("/confirm", h.voice.Confirm)

	chatGroup := api.Group("/chat", m.stream, m.subscription, m.aiLimit)
	chatGroup.POST("/stream", h.chat.Stream)

	subscription := api.Group("/subscription", m.auth)
	subscription.GET("", h.subscription.Get)
	subscription.POST("/promo", h.subscription.RedeemPromo, m.authLimit)

	api.POST("/webhooks/payment", h.subscription.PaymentWebhook)
	api.POST("/feedback", h.feedback.Create, m.auth, m.authLimit)

	notifications := api.Group("/notifications", m.stream)
	notifications.GET("/stream", h.notifications.Stream)

	admin := api.Group("/admin", m.auth, m.admin)
	admin.GET("/users", h.admin.ListUsers)
	admin.POST("/users/:id/subscription", h.admin.GrantSubscription)
	admin.DELETE("/users/:id/subscription", h.admin.RevokeSubscription)
	admin.GET("/ai-requests", h.admin.ListAIRequests)
	admin.GET("/usage", h.admin.Usage)
	admin.GET("/promos", h.admin.ListPromos)
	admin.POST("/promos", h.admin.CreatePromo)
}
