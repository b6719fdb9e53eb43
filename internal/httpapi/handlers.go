package httpapi

import (
	"net/http"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/ingest"
	"dialer-platform/internal/records"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/runlog"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Store     records.Store
	Importer  *ingest.Importer
	Reporting *reporting.Service
	Runlog    runlog.Repository
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Campaign status ---

func (h Handlers) CampaignSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	sum, err := h.Reporting.CampaignSummary(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) Outcomes(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reporting.Outcomes(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "outcomes failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Ingestion ---

// IngestCSV accepts a multipart upload (field "file") or a raw text/csv body
// and loads candidate records. The response is the ingest summary including
// per-row rejection reasons.
func (h Handlers) IngestCSV(c *gin.Context) {
	if h.Importer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "importer not configured"})
		return
	}

	body := c.Request.Body
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	sum, err := h.Importer.Ingest(c.Request.Context(), body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// IngestSuppressions loads a do-not-call CSV. Admin only.
func (h Handlers) IngestSuppressions(c *gin.Context) {
	if h.Importer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "importer not configured"})
		return
	}

	body := c.Request.Body
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	sum, err := h.Importer.LoadSuppressions(c.Request.Context(), body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

type suppressRequest struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason,omitempty"`
}

// AddSuppression blocks a single phone number. Admin only.
func (h Handlers) AddSuppression(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	var req suppressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	phone, err := ingest.NormalizeUKPhone(req.Phone)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual suppression"
	}
	if actor, aerr := auth.UserID(c.Request.Context()); aerr == nil {
		reason += " (by " + actor + ")"
	}
	if err := h.Store.AddSuppression(c.Request.Context(), records.SuppressionEntry{
		PhoneE164: phone,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "suppression failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": phone, "suppressed": true})
}

// --- Export ---

// ExportResults streams the campaign state as CSV.
func (h Handlers) ExportResults(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	recs, err := h.Store.ListAll(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="campaign_results.csv"`)
	c.Status(http.StatusOK)
	if err := ingest.WriteResultsCSV(c.Writer, recs); err != nil {
		// Headers are gone; all we can do is log through gin's error sink.
		_ = c.Error(err)
	}
}

// --- Run journal ---

// ListRunEvents returns the journal for one scheduler run. Admin only.
func (h Handlers) ListRunEvents(c *gin.Context) {
	if h.Runlog == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "runlog not configured"})
		return
	}
	runID := c.Param("run_id")
	if runID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "run_id required"})
		return
	}
	events, err := h.Runlog.ListByRun(c.Request.Context(), runID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "events": events})
}
