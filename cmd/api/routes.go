package main

import (
	"context"
	"net/http"

	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW   gin.HandlerFunc
	Webhook  telephony.WebhookHandler
	Handlers httpapi.Handlers

	// Health reports readiness of backing stores; nil means always healthy.
	Health func(ctx context.Context) error
}

func registerRoutes(r *gin.Engine, deps routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider callbacks authenticate via HMAC signature, not JWT.
	r.POST("/webhooks/provider", deps.Webhook.HandleCompletionWebhook)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", deps.Handlers.Login)

	protected := v1.Group("")
	protected.Use(deps.AuthMW)

	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("user_id"),
			"role":    c.GetString("role"),
		})
	})

	campaign := protected.Group("/campaign", rbac.RequireAnyRole(rbac.RoleOperator))
	campaign.GET("/summary", deps.Handlers.CampaignSummary)
	campaign.GET("/outcomes", deps.Handlers.Outcomes)

	recordsGrp := protected.Group("/records", rbac.RequireAnyRole(rbac.RoleOperator))
	recordsGrp.POST("/ingest", deps.Handlers.IngestCSV)
	recordsGrp.GET("/export", deps.Handlers.ExportResults)

	admin := protected.Group("/admin", rbac.RequireAnyRole(rbac.RoleAdmin))
	admin.POST("/suppressions", deps.Handlers.AddSuppression)
	admin.POST("/suppressions/import", deps.Handlers.IngestSuppressions)
	admin.GET("/runs/:run_id/events", deps.Handlers.ListRunEvents)
}
