package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"wrapdesk/internal/auth"
	"wrapdesk/internal/config"
	"wrapdesk/internal/httpapi"
	"wrapdesk/internal/metrics"
	"wrapdesk/internal/telephony"
	"wrapdesk/pkg/utils"
)

type dependencies struct {
	cfg   config.Config
	auth  *auth.Manager
	db    *sql.DB
	rdb   *redis.Client
	api   httpapi.Handlers
	voice telephony.VoiceHandler
	sms   telephony.SMSHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d dependencies) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := d.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Twilio webhooks. Signatures are checked against the public origin
	// Twilio called, not the proxied host.
	hooks := r.Group("/webhooks/twilio")
	if d.cfg.Twilio.ValidateSignature {
		hooks.Use(telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicBaseURL))
	}
	{
		hooks.POST("/voice", d.voice.Incoming)
		hooks.POST("/voice/leg-status", d.voice.LegStatus)
		hooks.POST("/voice/dial-complete", d.voice.DialComplete)
		hooks.POST("/voice/voicemail", d.voice.Voicemail)
		hooks.POST("/voice/transcription", d.voice.Transcription)
		hooks.POST("/sms", d.sms.Inbound)
	}

	d.api.Register(r, auth.RequireAccessToken(d.auth))
}
