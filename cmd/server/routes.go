package main

import (
	"github.com/fuseproject/fuse/backend/internal/handlers"
	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// groupPaths maps each group kind to its route prefix.
var groupPaths = []struct {
	path string
	kind models.GroupKind
}{
	{"/organizations", models.KindOrganization},
	{"/projects", models.KindProject},
	{"/teams", models.KindTeam},
}

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Auth routes are limited per address, join and apply per user
	authLimiter := middleware.NewRateLimiter(5, 10)
	joinLimiter := middleware.NewRateLimiter(1, 5).ByUser()

	healthHandler := handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics(svc.db, svc.hub))

	authHandler := handlers.NewAuthHandler(svc.auth)
	groupHandler := handlers.NewGroupHandler(svc.membership)
	invitationHandler := handlers.NewInvitationHandler(svc.membership)
	interviewHandler := handlers.NewInterviewHandler(svc.membership, svc.holidays)
	notificationHandler := handlers.NewNotificationHandler(svc.inbox, svc.hub)

	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/config", authHandler.GetAuthConfig)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.PUT("/auth/password", authHandler.ChangePassword)
			protected.POST("/auth/logout", authHandler.Logout)

			// Organizations, projects and teams share one handler set
			for _, gp := range groupPaths {
				g := protected.Group(gp.path, handlers.WithGroupKind(gp.kind))
				g.POST("", groupHandler.Create)
				g.GET("", groupHandler.List)
				g.GET("/lookup", groupHandler.Lookup)
				g.GET("/:id", groupHandler.Get)
				g.PUT("/:id", groupHandler.Update)
				g.DELETE("/:id", groupHandler.Delete)
				g.GET("/:id/can-edit", groupHandler.CanEdit)

				g.GET("/:id/members", groupHandler.Members)
				g.POST("/:id/members/:memberId/admin", groupHandler.GrantAdmin)
				g.DELETE("/:id/members/:memberId/admin", groupHandler.RevokeAdmin)
				g.DELETE("/:id/members/:memberId", groupHandler.Kick)

				g.POST("/:id/join", joinLimiter.Middleware(), groupHandler.Join)
				g.POST("/:id/applications", joinLimiter.Middleware(), groupHandler.Apply)
				g.GET("/:id/applications", groupHandler.ListApplicants)
				g.PUT("/:id/applications/:applicationId", groupHandler.SetApplicantStatus)

				g.POST("/:id/invitations", invitationHandler.Invite)

				g.GET("/:id/interviews", interviewHandler.List)
				g.GET("/:id/interviews/available", interviewHandler.Available)
				g.POST("/:id/interviews", interviewHandler.Add)
				g.POST("/:id/interviews/generate", interviewHandler.Generate)
				g.GET("/:id/interview-templates", interviewHandler.ListTemplates)
				g.POST("/:id/interview-templates", interviewHandler.AddTemplate)

				if gp.kind == models.KindOrganization {
					g.POST("/:id/members/:memberId/project-creation", groupHandler.GrantProjectCreation)
				}
			}

			// Invitations addressed to the current user
			protected.GET("/invitations", invitationHandler.List)
			protected.POST("/invitations/:id/accept", invitationHandler.Accept)
			protected.POST("/invitations/:id/decline", invitationHandler.Decline)

			// Interview slots by id
			protected.PUT("/interviews/:id", interviewHandler.Edit)
			protected.POST("/interviews/:id/cancel", interviewHandler.Cancel)
			protected.DELETE("/interviews/:id", interviewHandler.Delete)
			protected.GET("/holiday-countries", interviewHandler.Countries)

			// Inbox
			protected.GET("/notifications", notificationHandler.List)
			protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
			protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
			protected.GET("/notifications/stream", notificationHandler.Stream)
		}

		// Admin-only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			systemLogHandler := handlers.NewSystemLogHandler(svc.logs)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)

			var rescheduler handlers.Rescheduler
			if svc.scheduler != nil {
				rescheduler = svc.scheduler
			}
			systemConfigHandler := handlers.NewSystemConfigHandler(svc.configs, rescheduler)
			admin.GET("/system-config/scheduler", systemConfigHandler.GetSchedulerConfig)
			admin.PUT("/system-config/scheduler", systemConfigHandler.UpdateSchedulerConfig)

			userHandler := handlers.NewUserHandler(svc.users)
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)
		}
	}
}
