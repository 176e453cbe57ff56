package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/dealflow/internal/application/signing"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/entity"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthReport represents the health check response
type HealthReport struct {
	Status     string                 `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Version    string                 `json:"version"`
	Components map[string]string      `json:"components,omitempty"`
	Workers    map[string]interface{} `json:"workers,omitempty"`
}

// TransitionBody is the payload of an entity status change
type TransitionBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// CreateSessionBody is the payload of a new signing session
type CreateSessionBody struct {
	DealID      string `json:"deal_id" binding:"required"`
	DocumentID  string `json:"document_id" binding:"required"`
	SignerRole  string `json:"signer_role" binding:"required"`
	SignerName  string `json:"signer_name" binding:"required"`
	SignerEmail string `json:"signer_email"`
}

// SubmitSignatureBody is what the signer's browser posts
type SubmitSignatureBody struct {
	SignatureImage string `json:"signature_image"`
	ConsentGiven   bool   `json:"consent_given"`
	Geolocation    string `json:"geolocation"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	report := HealthReport{Status: "healthy"}
	if h.deps.Health != nil {
		report = h.deps.Health.Health(c.Request.Context())
	}
	report.Timestamp = h.now().Format(time.RFC3339)
	report.Version = Version

	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    report,
	})
}

// TransitionEntity handles POST /api/v1/entities/:kind/:id/transitions
func (h *Handlers) TransitionEntity(c *gin.Context) {
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.deps.Orchestrator.Transition(c.Request.Context(), workflow.TransitionRequest{
		Kind:      domainwf.Kind(c.Param("kind")),
		EntityID:  c.Param("id"),
		NewStatus: body.Status,
		Actor:     actorFrom(c),
		Reason:    body.Reason,
	})
	if err != nil {
		h.logFailure("Transition failed", err, "kind", c.Param("kind"), "id", c.Param("id"))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// CreateSigningSession handles POST /api/v1/signing-sessions
func (h *Handlers) CreateSigningSession(c *gin.Context) {
	var body CreateSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	created, err := h.deps.Signing.CreateSession(c.Request.Context(), signing.CreateSessionRequest{
		DealID:      body.DealID,
		DocumentID:  body.DocumentID,
		SignerRole:  entity.SignerRole(body.SignerRole),
		SignerName:  body.SignerName,
		SignerEmail: body.SignerEmail,
		Actor:       actorFrom(c),
	})
	if err != nil {
		h.logFailure("Create signing session failed", err, "deal_id", body.DealID, "document_id", body.DocumentID)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    created,
	})
}

// ListSigningSessions handles GET /api/v1/deals/:id/signing-sessions
func (h *Handlers) ListSigningSessions(c *gin.Context) {
	sessions, err := h.deps.Signing.ListSessions(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.logFailure("List signing sessions failed", err, "deal_id", c.Param("id"))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    sessions,
	})
}

// CancelSigningSession handles DELETE /api/v1/signing-sessions/:token
func (h *Handlers) CancelSigningSession(c *gin.Context) {
	if err := h.deps.Signing.CancelSession(c.Request.Context(), c.Param("token"), actorFrom(c)); err != nil {
		h.logFailure("Cancel signing session failed", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"status": entity.SessionStatusCancelled},
	})
}

// RevokeConsent handles POST /api/v1/consents/:id/revoke
func (h *Handlers) RevokeConsent(c *gin.Context) {
	record, err := h.deps.Signing.RevokeConsent(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.logFailure("Revoke consent failed", err, "consent_id", c.Param("id"))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    record,
	})
}

// RunSweep handles POST /api/v1/maintenance/sweep
func (h *Handlers) RunSweep(c *gin.Context) {
	actor := actorFrom(c)
	if !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "admin role required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	summary, err := h.deps.Sweeper.Sweep(ctx, h.now())
	if err != nil {
		// Passes are independent, so a partial summary is still reported
		h.logger.Error("Sweep finished with errors", "actor", actor.ID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Data:    summary,
			Error:   "sweep finished with errors",
		})
		return
	}

	h.logger.Info("Sweep run on demand", "actor", actor.ID)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    summary,
	})
}

// GetSigningSession handles GET /sign/:token
func (h *Handlers) GetSigningSession(c *gin.Context) {
	view, err := h.deps.Signing.GetSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.logFailure("Get signing session failed", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    view,
	})
}

// SubmitSignature handles POST /sign/:token
func (h *Handlers) SubmitSignature(c *gin.Context) {
	var body SubmitSignatureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.deps.Signing.SubmitSignature(c.Request.Context(), signing.SubmitRequest{
		Token:        c.Param("token"),
		ImageData:    body.SignatureImage,
		ConsentGiven: body.ConsentGiven,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		Geolocation:  body.Geolocation,
	})
	if err != nil {
		h.logFailure("Signature submission failed", err, "client_ip", c.ClientIP())
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    result,
	})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// logFailure logs server-side failures at error level; client errors are already in the request log
func (h *Handlers) logFailure(msg string, err error, keysAndValues ...interface{}) {
	if status, _ := statusFor(err); status < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, append(keysAndValues, "error", err)...)
}
