package telephony

import (
	"context"
	"io"
	"net/http"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler authenticates and decodes provider completion webhooks, then
// hands the report to the reconciler.
//
// No business logic here. The contract with the provider is: every
// authenticated, well-formed delivery gets a 200, including duplicates,
// unknown call ids, and non-terminal message types. Anything else invites a
// redelivery storm.
type WebhookHandler struct {
	// Secret signs the raw body (HMAC-SHA256, X-Vapi-Signature header).
	// Empty disables verification for local development.
	Secret string

	// Reconcile applies one completion report. Injected as a function to keep
	// this package free of reconciler dependencies.
	Reconcile func(ctx context.Context, report CompletionReport) error
}

const maxWebhookBody = 1 << 20

func (h WebhookHandler) HandleCompletionWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Reconcile == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciler not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !VerifySignature(h.Secret, body, c.GetHeader("X-Vapi-Signature")) {
		log.Warn("webhook signature rejected", "remote", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	report, isCompletion, err := ParseCompletionReport(body)
	if err != nil {
		log.Warn("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !isCompletion {
		// Status updates and transcript fragments are acknowledged untouched.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.Reconcile(c.Request.Context(), report); err != nil {
		log.Error("completion reconcile failed", "call_id", report.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
