package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lovelive-bluebird/bluebird/app"
	Twitter "github.com/lovelive-bluebird/bluebird/collector/webhook/twitter"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	envoyExternalAddressHeader = "x-envoy-external-address"
	healthCheckTimeout         = 3 * time.Second
)

type HealthChecker interface {
	Healthy(ctx context.Context) (bool, error)
}

func AddRoutes(router *gin.Engine, a *app.App) {
	handler := Twitter.NewMessageHandler(a.Processor, a.Archive)

	router.GET("/health", HandleHealth(a.Store))
	router.POST("/webhook", handler.HandleTwitterMessage)

	// Add a debug route for testing and health check
	router.GET("/webhook/ping", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, "pong")
	})

	AddTwitterWebhook(router.Group("/webhook"), handler, a.Setting.TWITTER_CONSUMER_SECRET)
	// Additional webhooks should be added below this line
}

func AddTwitterWebhook(rg *gin.RouterGroup, handler *Twitter.MessageHandler, consumerSecret string) {
	twitter := rg.Group("/twitter")

	twitter.GET("", Twitter.NewCRCHandler(consumerSecret))
	twitter.POST("", handler.HandleTwitterMessage)
}

// EnvoyForwardedFor copies the client address set by the envoy edge proxy
// into X-Forwarded-For so gin's ClientIP reports the real caller.
func EnvoyForwardedFor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr := c.GetHeader(envoyExternalAddressHeader); addr != "" {
			c.Request.Header.Set("X-Forwarded-For", addr)
		}
		c.Next()
	}
}

func HandleHealth(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		healthy, err := checker.Healthy(ctx)
		if err != nil {
			Logger.Log.WithError(err).Warn("database health check failed")
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"client_ip": c.ClientIP(),
			"database":  healthy,
		})
	}
}
