package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ianmintz/pourover/app/cfg"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")

	feeds := api.Group("/feeds")
	{
		feeds.GET("", handler.ListFeeds)
		feeds.POST("", handler.CreateFeed)
		feeds.GET("/:id", handler.GetFeed)
		feeds.PATCH("/:id", handler.UpdateFeed)
		feeds.DELETE("/:id", handler.DeleteFeed)
		feeds.GET("/:id/unpublished", handler.GetUnpublishedEntries)
		feeds.GET("/:id/latest", handler.GetLatestEntries)
		feeds.POST("/:id/entries/:entry_id/publish", handler.PublishEntry)

		// Hub callbacks; the hub authenticates via verify token and
		// body signature, not the API key.
		feeds.GET("/:id/subscribe", handler.HubChallenge)
		feeds.POST("/:id/subscribe", handler.HubPush)
	}

	instagram := api.Group("/instagram")
	{
		instagram.GET("/subscribe", handler.InstagramChallenge)
		instagram.POST("/subscribe", handler.InstagramPush)
	}

	api.POST("/users/:id/reauthorize", handler.ReauthorizeUser)

	if apiAccessKey != "" {
		jobs := api.Group("/jobs")
		jobs.Use(authMiddleware(apiAccessKey))
		{
			jobs.POST("/update/:interval", handler.UpdateFeedsAtInterval)
			jobs.POST("/post", handler.PostAllFeeds)
			jobs.POST("/subscribe", handler.SubscribeAllFeeds)
		}
		slog.Info("Job endpoints enabled with authentication")
	} else {
		slog.Warn("Job endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "Pourover",
			"version":     cfg.GetVersion(),
			"description": "Feed-to-social republishing service with scheduled and push-based ingestion",
			"endpoints": map[string]string{
				"feeds":     "/api/feeds?user_id=<id>",
				"feed":      "/api/feeds/<id>",
				"health":    "/health",
				"jobs":      "/api/jobs/* (requires X-API-Key header)",
				"instagram": "/api/instagram/subscribe",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware guards the scheduler-facing job endpoints.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
