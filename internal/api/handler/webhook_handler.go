package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insightq/analysis-jobs/internal/webhook"
)

// WebhookHandler serves POST /webhook.
type WebhookHandler struct {
	logger          *slog.Logger
	receiver        *webhook.Receiver
	signatureHeader string
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:          deps.Logger,
		receiver:        deps.Receiver,
		signatureHeader: deps.SignatureHeader,
	}
}

// Receive verifies and ingests one third-party event. A replayed event is
// still a 200: the receiver resolves it to the job it already created.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	signature := c.GetHeader(h.signatureHeader)

	submissions, err := h.receiver.Handle(c.Request.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			h.logger.Warn("webhook signature mismatch",
				slog.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, webhook.ErrBadPayload):
			h.logger.Warn("webhook payload rejected",
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("webhook handling failed",
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":    true,
		"submissions": submissions,
	})
}
