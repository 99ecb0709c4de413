package router

import (
	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/auth"
	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/handlers"
	"github.com/treestandk/wingman/internal/middleware"
)

// Handlers collects the route handlers wired by Setup.
type Handlers struct {
	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	Deployment *handlers.DeploymentHandler
	Templates  *handlers.TemplateHandler
	Catalog    *handlers.CatalogHandler
	Config     *handlers.ConfigHandler
	Events     *handlers.EventsHandler
	Monitoring *handlers.MonitoringHandler
}

// Setup configures and returns the application router
func Setup(cfg *config.Config, tokens *auth.TokenManager, gate auth.Gate, h Handlers) *gin.Engine {

	// Create a new Gin router
	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check, unauthenticated for load balancers
	router.GET("/health", h.Health.Check)

	api := router.Group("/api")
	api.Use(middleware.PerMinute(cfg.RateLimitPerMinute))

	// Login gets its own, much stricter bucket
	api.POST("/auth/login", middleware.PerMinute(cfg.LoginRateLimitPerMinute), h.Auth.Login)

	// Apply authentication middleware to everything below
	authed := api.Group("")
	authed.Use(middleware.Authentication(tokens))

	authed.GET("/auth/status", h.Auth.Status)

	// Read-only deployment state, any role
	view := authed.Group("", middleware.RequireAction(gate, auth.ActionView))
	{
		view.GET("/deployments", h.Deployment.List)
		view.GET("/status/:id", h.Deployment.Status)
		view.GET("/logs/:id", h.Deployment.Logs)
		view.GET("/events", h.Events.Stream)
		view.GET("/monitoring/stats", h.Monitoring.Stats)
		view.GET("/templates", h.Templates.List)
		view.GET("/templates/:name", h.Templates.Get)
	}

	// Deployment and the panel catalog that feeds the deploy form
	deploy := authed.Group("", middleware.RequireAction(gate, auth.ActionDeploy))
	{
		deploy.POST("/deploy", h.Deployment.Deploy)
		deploy.GET("/pterodactyl/nests", h.Catalog.Nests)
		deploy.GET("/pterodactyl/nests/:id/eggs", h.Catalog.Eggs)
		deploy.GET("/pterodactyl/nodes", h.Catalog.Nodes)
		deploy.GET("/pterodactyl/nodes/:id/allocations", h.Catalog.Allocations)
	}

	authed.POST("/rollback/:id", middleware.RequireAction(gate, auth.ActionRollback), h.Deployment.Rollback)

	// Template writes and configuration are admin territory
	authed.POST("/templates", middleware.RequireAction(gate, auth.ActionManageTemplates), h.Templates.Save)

	cfgRoutes := authed.Group("/config")
	{
		cfgRoutes.GET("", middleware.RequireAction(gate, auth.ActionViewConfig), h.Config.View)
		cfgRoutes.POST("/validate", middleware.RequireAction(gate, auth.ActionViewConfig), h.Config.Validate)
		cfgRoutes.POST("/test", middleware.RequireAction(gate, auth.ActionTestConfig), h.Config.Test)
	}

	return router
}
