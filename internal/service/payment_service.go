package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"payflow/internal/domain"
	"payflow/internal/models"
	"payflow/pkg/gateway"

	"go.uber.org/zap"
)

// Store is the persistence surface the lifecycle service drives.
// Implemented by repository.PaymentRepository. Lookup methods return
// (nil, nil) on a miss; the service owns the NotFound taxonomy.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	List(ctx context.Context, limit int) ([]models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	GetByChargeID(ctx context.Context, chargeID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, p *models.Payment, status, externalID string) error
	AppendEvent(ctx context.Context, paymentID uint, eventType, payload string) error
}

// PaymentService owns every status transition. The status column is the
// source of truth for API responses; the event log is audit-only and never
// read back for correctness.
type PaymentService struct {
	store   Store
	gw      gateway.Gateway
	locks   *keyedMutex
	timeout time.Duration
	log     *zap.Logger
}

func NewPaymentService(store Store, gw gateway.Gateway, timeout time.Duration, log *zap.Logger) *PaymentService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentService{
		store:   store,
		gw:      gw,
		locks:   newKeyedMutex(),
		timeout: timeout,
		log:     log,
	}
}

type InitiateInput struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]interface{}
	IdempotencyKey string
}

// Initiate creates a payment row, registers an intent with the gateway and
// transitions the payment to created. With an idempotency key, a retried
// call returns the existing payment without touching the gateway again. A
// gateway failure leaves the payment in failed, never dangling.
func (s *PaymentService) Initiate(ctx context.Context, in InitiateInput) (*models.Payment, error) {
	if in.IdempotencyKey != "" {
		key := "key:" + in.IdempotencyKey
		s.locks.Lock(key)
		defer s.locks.Unlock(key)

		existing, err := s.store.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "USD"
	}
	p := &models.Payment{
		AmountCents: in.AmountCents,
		Currency:    currency,
		Status:      domain.StatusCreated,
	}
	if in.Metadata != nil {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		p.Metadata = string(b)
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		p.IdempotencyKey = &key
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	externalID, info, err := s.gw.CreateIntent(callCtx, p.AmountCents, p.Currency, in.IdempotencyKey)
	if err != nil {
		if uerr := s.store.UpdateStatus(ctx, p, domain.StatusFailed, ""); uerr != nil {
			s.log.Error("mark payment failed after gateway error",
				zap.Uint("payment_id", p.ID), zap.Error(uerr))
			return nil, uerr
		}
		s.appendEvent(ctx, p.ID, domain.EventFailed, map[string]interface{}{"error": err.Error()})
		return nil, &GatewayError{Op: "create_intent", Err: err}
	}

	p.GatewayIntentID = externalID
	if err := s.store.UpdateStatus(ctx, p, domain.StatusCreated, externalID); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, p.ID, domain.EventCreated, map[string]interface{}{"gateway_info": info})
	s.log.Info("payment initiated",
		zap.Uint("payment_id", p.ID), zap.String("external_id", externalID))
	return p, nil
}

// Confirm captures the payment's intent with the gateway. A gateway status
// in the capture-success set transitions to captured; any other reported
// status transitions to failed. Confirming an already-captured payment
// re-invokes the gateway and re-records captured.
func (s *PaymentService) Confirm(ctx context.Context, id uint) (*models.Payment, error) {
	s.lockPayment(id)
	defer s.unlockPayment(id)

	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.Status == domain.StatusFailed || p.Status == domain.StatusRefunded {
		return nil, fmt.Errorf("%w: confirm on %s payment", ErrInvalidState, p.Status)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.gw.Confirm(callCtx, p.ExternalID)
	if err != nil {
		return nil, &GatewayError{Op: "confirm", Err: err}
	}

	if domain.CaptureSuccessStatuses[out.Status] {
		if out.ChargeID != "" {
			p.GatewayChargeID = out.ChargeID
		}
		if err := s.store.UpdateStatus(ctx, p, domain.StatusCaptured, ""); err != nil {
			return nil, err
		}
		s.appendEvent(ctx, p.ID, domain.EventCaptured, out)
		s.log.Info("payment captured",
			zap.Uint("payment_id", p.ID), zap.String("charge_id", p.GatewayChargeID))
		return p, nil
	}

	if err := s.store.UpdateStatus(ctx, p, domain.StatusFailed, ""); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, p.ID, domain.EventFailed, out)
	s.log.Info("payment capture failed",
		zap.Uint("payment_id", p.ID), zap.String("gateway_status", out.Status))
	return p, nil
}

// Refund reverses a captured payment. amountCents of 0 refunds in full. The
// gateway-reported refund status is validated before the transition; an
// unexpected status leaves the payment captured and surfaces a GatewayError.
func (s *PaymentService) Refund(ctx context.Context, id uint, amountCents int64) (*models.Payment, *gateway.Outcome, error) {
	s.lockPayment(id)
	defer s.unlockPayment(id)

	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrPaymentNotFound
	}
	if p.Status != domain.StatusCaptured {
		return nil, nil, fmt.Errorf("%w: refund on %s payment", ErrInvalidState, p.Status)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.gw.Refund(callCtx, p.ExternalID, amountCents)
	if err != nil {
		return nil, nil, &GatewayError{Op: "refund", Err: err}
	}
	if !domain.RefundSuccessStatuses[out.Status] {
		return nil, nil, &GatewayError{Op: "refund", Err: fmt.Errorf("unexpected refund status %q", out.Status)}
	}

	if err := s.store.UpdateStatus(ctx, p, domain.StatusRefunded, ""); err != nil {
		return nil, nil, err
	}
	s.appendEvent(ctx, p.ID, domain.EventRefunded, out)
	s.log.Info("payment refunded",
		zap.Uint("payment_id", p.ID), zap.String("refund_id", out.RefundID))
	return p, out, nil
}

func (s *PaymentService) Get(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *PaymentService) List(ctx context.Context, limit int) ([]models.Payment, error) {
	return s.store.List(ctx, limit)
}

// ApplyIntentSucceeded drives the confirm transition for an asynchronous
// payment_intent.succeeded notification, looked up by the stored gateway
// intent identifier.
func (s *PaymentService) ApplyIntentSucceeded(ctx context.Context, intentID string) error {
	p, err := s.store.GetByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPaymentNotFound
	}
	if p.Status == domain.StatusCaptured || p.Status == domain.StatusRefunded {
		// Webhook redelivery for an already-recorded capture.
		return nil
	}
	_, err = s.Confirm(ctx, p.ID)
	return err
}

// ApplyChargeRefunded completes refund bookkeeping for a charge.refunded
// notification. The money already moved gateway-side, so no gateway call is
// made here.
func (s *PaymentService) ApplyChargeRefunded(ctx context.Context, chargeID string) error {
	p, err := s.store.GetByChargeID(ctx, chargeID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPaymentNotFound
	}

	s.lockPayment(p.ID)
	defer s.unlockPayment(p.ID)

	p, err = s.store.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPaymentNotFound
	}
	if p.Status == domain.StatusRefunded {
		return nil
	}
	if p.Status != domain.StatusCaptured {
		return fmt.Errorf("%w: refund notification on %s payment", ErrInvalidState, p.Status)
	}

	if err := s.store.UpdateStatus(ctx, p, domain.StatusRefunded, ""); err != nil {
		return err
	}
	s.appendEvent(ctx, p.ID, domain.EventRefunded, map[string]interface{}{
		"charge_id": chargeID,
		"source":    "webhook",
	})
	s.log.Info("payment refunded via webhook",
		zap.Uint("payment_id", p.ID), zap.String("charge_id", chargeID))
	return nil
}

func (s *PaymentService) lockPayment(id uint) {
	s.locks.Lock(fmt.Sprintf("payment:%d", id))
}

func (s *PaymentService) unlockPayment(id uint) {
	s.locks.Unlock(fmt.Sprintf("payment:%d", id))
}

// appendEvent records an audit event. The event log must never be required
// for status correctness, so persistence failures are logged, not returned.
func (s *PaymentService) appendEvent(ctx context.Context, paymentID uint, eventType string, payload interface{}) {
	var body string
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			body = string(b)
		}
	}
	if err := s.store.AppendEvent(ctx, paymentID, eventType, body); err != nil {
		s.log.Error("append payment event",
			zap.Uint("payment_id", paymentID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
