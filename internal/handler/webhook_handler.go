package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"payflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventChargeRefunded  = "charge.refunded"
)

// WebhookHandler ingests asynchronous gateway notifications. With a webhook
// secret configured the payload must carry a valid Stripe signature before
// any field is trusted; without one the body is parsed best-effort.
type WebhookHandler struct {
	svc    *service.PaymentService
	secret string
	log    *zap.Logger
}

func NewWebhookHandler(svc *service.PaymentService, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret, log: log}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if h.secret != "" {
		h.handleSigned(c, body)
		return
	}
	h.handleUnsigned(c, body)
}

func (h *WebhookHandler) handleSigned(c *gin.Context, body []byte) {
	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.log.Warn("webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook verification failed"})
		return
	}

	switch event.Type {
	case eventIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			h.log.Error("unmarshal payment intent from webhook", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
			return
		}
		h.applyIntentSucceeded(c, pi.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "type": string(event.Type), "id": pi.ID})
	case eventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			h.log.Error("unmarshal charge from webhook", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
			return
		}
		h.applyChargeRefunded(c, ch.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "type": string(event.Type), "id": ch.ID})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true, "type": string(event.Type)})
	}
}

// handleUnsigned accepts deliveries when no verification secret is
// configured (mock gateway deployments). On parse failure the payload is
// acknowledged as opaque rather than rejected.
func (h *WebhookHandler) handleUnsigned(c *gin.Context, body []byte) {
	var evt struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &evt); err != nil || evt.Type == "" {
		h.log.Info("unverified webhook with opaque payload", zap.ByteString("raw", body))
		c.JSON(http.StatusOK, gin.H{"received": true, "event": gin.H{"raw": string(body)}})
		return
	}

	switch evt.Type {
	case eventIntentSucceeded:
		h.applyIntentSucceeded(c, evt.Data.Object.ID)
	case eventChargeRefunded:
		h.applyChargeRefunded(c, evt.Data.Object.ID)
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "type": evt.Type, "id": evt.Data.Object.ID})
}

// Unknown references and invalid-state transitions are logged and
// acknowledged; the gateway retries deliveries that see non-2xx forever.
func (h *WebhookHandler) applyIntentSucceeded(c *gin.Context, intentID string) {
	if intentID == "" {
		return
	}
	err := h.svc.ApplyIntentSucceeded(c.Request.Context(), intentID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrPaymentNotFound):
		h.log.Warn("webhook for unknown payment intent", zap.String("intent_id", intentID))
	default:
		h.log.Error("apply intent succeeded webhook", zap.String("intent_id", intentID), zap.Error(err))
	}
}

func (h *WebhookHandler) applyChargeRefunded(c *gin.Context, chargeID string) {
	if chargeID == "" {
		return
	}
	err := h.svc.ApplyChargeRefunded(c.Request.Context(), chargeID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrPaymentNotFound):
		h.log.Warn("webhook for unknown charge", zap.String("charge_id", chargeID))
	default:
		h.log.Error("apply charge refunded webhook", zap.String("charge_id", chargeID), zap.Error(err))
	}
}
