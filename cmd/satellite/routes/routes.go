package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/container"
	"github.com/junobuild/satellite/cmd/satellite/handlers"
	"github.com/junobuild/satellite/cmd/satellite/middleware"
)

// writeGate builds the middleware chain shared by the write surface:
// caller extraction plus rate limiting when a limiter is configured
func writeGate(c *container.Container) []echo.MiddlewareFunc {
	gate := []echo.MiddlewareFunc{middleware.CallerExtractor()}
	if c.RateLimiter != nil {
		limits := c.Components.Config.RateLimit
		gate = append(gate,
			middleware.GlobalRateLimit(c.RateLimiter, limits.GlobalPerMinute),
			middleware.CallerRateLimit(c.RateLimiter, limits.CallerPerMinute),
		)
	}
	return gate
}

// RegisterUploadRoutes registers the chunked upload flow
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c.UploadService)

	upload := e.Group("/api/v1/upload", writeGate(c)...)
	{
		upload.POST("/init", h.InitUpload)               // POST /api/v1/upload/init
		upload.PUT("/:batch_id/chunks", h.UploadChunk)   // PUT  /api/v1/upload/42/chunks?order_index=0
		upload.POST("/:batch_id/commit", h.CommitBatch)  // POST /api/v1/upload/42/commit
	}
}

// RegisterProposalRoutes registers the staged-commit surface. Commit is
// controller gated; the remaining operations enforce ownership in the
// workflow itself.
func RegisterProposalRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewProposalHandler(c.ProposalService)

	proposals := e.Group("/api/v1/proposals", writeGate(c)...)
	{
		proposals.POST("", h.InitProposal)
		proposals.GET("", h.ListProposals)
		proposals.GET("/count", h.CountProposals)
		proposals.GET("/:proposal_id", h.GetProposal)
		proposals.POST("/:proposal_id/submit", h.SubmitProposal)
		proposals.POST("/:proposal_id/reject", h.RejectProposal)
		proposals.POST("/:proposal_id/commit", h.CommitProposal,
			middleware.RequireController(c.Controllers))
		proposals.POST("/delete-assets", h.DeleteProposalAssets)
	}
}

// RegisterAdminRoutes registers config, collection and asset administration
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	configHandler := handlers.NewConfigHandler(c.ConfigService, c.Registry)
	assetHandler := handlers.NewAssetHandler(c.AssetService)

	gate := []echo.MiddlewareFunc{
		middleware.CallerExtractor(),
		middleware.RequireController(c.Controllers),
	}

	cfg := e.Group("/api/v1/config", gate...)
	{
		cfg.GET("", configHandler.GetConfig)
		cfg.PUT("", configHandler.SetConfig)
		cfg.PATCH("", configHandler.PatchConfig)
	}

	collections := e.Group("/api/v1/collections", gate...)
	{
		collections.GET("", configHandler.ListCollections)
		collections.GET("/:collection", configHandler.GetCollection)
		collections.PUT("/:collection", configHandler.SetCollection)
		collections.DELETE("/:collection", configHandler.DeleteCollection)

		collections.GET("/:collection/assets", assetHandler.ListAssets)
		collections.GET("/:collection/assets/*", assetHandler.GetAsset)
		collections.DELETE("/:collection/assets/*", assetHandler.DeleteAsset)
	}
}

// RegisterServeRoutes registers the public certified asset surface. The
// catch-all registers last so API routes keep precedence.
func RegisterServeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewServeHandler(c.ServeService)

	e.GET("/api/v1/stream/:token", h.StreamChunk)

	e.Any("/*", h.ServeAsset)
}
