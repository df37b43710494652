package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = HTTPErrorHandler(h.Logger)

	// Apply global middleware
	e.Use(SetJSONContentType) // Ensure all responses are JSON
	e.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)       // Health check endpoint
	v1.GET("/partition", h.Partition) // Current anchor date window
	v1.POST("/sql", h.RunSQL)         // Direct SQL through guard + boundary

	// Conversation history
	v1.GET("/history/:username", h.History)
	v1.DELETE("/history/:username", h.HistoryClear)

	// Chat endpoint with rate limiting: every turn costs at least one
	// generation call, several on retries.
	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = 20
	}
	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60.0),
		Burst:     5,
		ExpiresIn: 2 * time.Minute,
	})))
	chatGroup.POST("", h.Chat)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
