package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"payflow/internal/domain"
	"payflow/internal/models"
	"payflow/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type PaymentHandler struct {
	svc *service.PaymentService
	log *zap.Logger
}

func NewPaymentHandler(svc *service.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log}
}

type createPaymentRequest struct {
	AmountCents int64                  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string                 `json:"currency" binding:"omitempty,len=3"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"omitempty,gt=0"`
	Reason      string `json:"reason"`
}

// Create initiates a payment. Retries carrying the same Idempotency-Key
// header return the original payment without a second gateway intent.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.Initiate(c.Request.Context(), service.InitiateInput{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentOut(p))
}

func (h *PaymentHandler) Confirm(c *gin.Context) {
	id, ok := h.paymentID(c)
	if !ok {
		return
	}
	p, err := h.svc.Confirm(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if p.Status == domain.StatusCaptured {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "payment captured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": false, "message": "failed to capture"})
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := h.paymentID(c)
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, out, err := h.svc.Refund(c.Request.Context(), id, req.AmountCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "refund": out})
}

func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.paymentID(c)
	if !ok {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentOut(p))
}

func (h *PaymentHandler) List(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	payments, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(payments))
	for i := range payments {
		out = append(out, paymentOut(&payments[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) paymentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return 0, false
	}
	return uint(id), true
}

func (h *PaymentHandler) respondError(c *gin.Context, err error) {
	var gerr *service.GatewayError
	switch {
	case errors.Is(err, service.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &gerr):
		h.log.Warn("gateway call failed", zap.String("op", gerr.Op), zap.Error(gerr.Err))
		c.JSON(http.StatusBadGateway, gin.H{"error": gerr.Error()})
	default:
		h.log.Error("payment operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func paymentOut(p *models.Payment) gin.H {
	var meta map[string]interface{}
	if p.Metadata != "" {
		_ = json.Unmarshal([]byte(p.Metadata), &meta)
	}
	return gin.H{
		"id":                        p.ID,
		"external_id":               p.ExternalID,
		"amount_cents":              p.AmountCents,
		"currency":                  p.Currency,
		"status":                    p.Status,
		"metadata":                  meta,
		"gateway_charge_id":         p.GatewayChargeID,
		"gateway_payment_intent_id": p.GatewayIntentID,
		"created_at":                p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":                p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
