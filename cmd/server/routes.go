package main

import (
	"github.com/deedox/platform/internal/metrics"
	"github.com/deedox/platform/internal/middleware"
	"github.com/deedox/platform/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	cfg := svc.cfg

	r.Use(logger.GinLogger(), logger.GinRecovery(), metrics.Middleware())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.MaxMultipartMemory = int64(cfg.Storage.MaxSizeMB) << 20

	proxyLimiter := middleware.PerMinute(cfg.Server.ProxyRatePerMinute).WithProxyErrors()
	authLimiter := middleware.PerMinute(cfg.Server.AuthRatePerMinute)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", metrics.Handler())
	r.Static(cfg.Storage.PublicURL, cfg.Storage.Dir)

	// Chat proxy: guests allowed, identity resolved once
	chat := r.Group("", proxyLimiter.Middleware(), middleware.OptionalAuth())
	{
		chat.POST("/chat-proxy", svc.chatHandler.Chat)
		chat.POST("/api/ai-chat", svc.chatHandler.Chat)
	}

	api := r.Group("/api")
	{
		api.GET("/models", svc.modelHandler.ListEnabled)

		public := api.Group("/public")
		{
			public.GET("/settings", svc.settingsHandler.Public)
			public.GET("/settings/:key", svc.settingsHandler.PublicKey)
			public.GET("/courses", svc.publicHandler.Courses)
			public.GET("/notices", svc.publicHandler.Notices)
			public.GET("/testimonials", svc.publicHandler.Testimonials)
			public.GET("/news", svc.publicHandler.News)
		}

		auth := api.Group("/auth")
		{
			auth.GET("/config", svc.authHandler.GetAuthConfig)
			limited := auth.Group("", authLimiter.Middleware())
			limited.POST("/signup", svc.authHandler.Signup)
			limited.POST("/login", svc.authHandler.Login)
			limited.POST("/refresh", svc.authHandler.Refresh)
			limited.POST("/logout", svc.authHandler.Logout)
			limited.POST("/otp/request", svc.authHandler.RequestOTP)
			limited.POST("/otp/verify", svc.authHandler.VerifyOTP)
		}

		// EventSource cannot send headers, so the token may come as ?token=
		api.GET("/events", middleware.StreamAuth(), svc.eventsHandler.Stream)

		protected := api.Group("", middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			protected.GET("/profile", svc.profileHandler.Get)
			protected.PUT("/profile", svc.profileHandler.Update)

			protected.GET("/messages", svc.messageHandler.Conversation)
			protected.POST("/messages", svc.messageHandler.Send)
			protected.GET("/messages/unread", svc.messageHandler.Unread)

			protected.GET("/dashboard", svc.dashboardHandler.Student)
		}

		admin := api.Group("/admin", middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			admin.GET("/dashboard", svc.dashboardHandler.Admin)
			admin.GET("/messages", svc.messageHandler.Inbox)

			svc.courses.Register(admin.Group("/courses"))
			svc.notices.Register(admin.Group("/notices"))
			svc.testimonials.Register(admin.Group("/testimonials"))
			svc.news.Register(admin.Group("/news"))
			svc.students.RegisterReadOnly(admin.Group("/students"))

			settings := admin.Group("/settings")
			settings.GET("", svc.settingsHandler.GetAll)
			settings.GET("/:key", svc.settingsHandler.Get)
			settings.PUT("/:key", svc.settingsHandler.Put)
			settings.GET("/:key/items", svc.settingsHandler.ListItems)
			settings.POST("/:key/items", svc.settingsHandler.AddItem)
			settings.PUT("/:key/items/:item", svc.settingsHandler.UpdateItem)
			settings.DELETE("/:key/items/:item", svc.settingsHandler.RemoveItem)

			models := admin.Group("/models")
			models.GET("", svc.modelHandler.List)
			models.POST("", svc.modelHandler.Create)
			models.PUT("/:id", svc.modelHandler.Update)
			models.POST("/:id/toggle", svc.modelHandler.Toggle)
			models.DELETE("/:id", svc.modelHandler.Delete)

			admin.GET("/credential", svc.modelHandler.GetCredential)
			admin.PUT("/credential", svc.modelHandler.SetCredential)
			admin.DELETE("/credential", svc.modelHandler.ClearCredential)

			admin.GET("/uploads", svc.uploadHandler.List)
			admin.POST("/uploads", svc.uploadHandler.Upload)

			admin.GET("/system-logs", svc.systemLogHandler.List)
			admin.GET("/system-logs/modules", svc.systemLogHandler.GetModules)
		}
	}
}
