package repository

import (
	"context"
	"errors"

	"payflow/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns payments in creation order.
func (r *PaymentRepository) List(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Order("id asc").Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.getBy(ctx, "idempotency_key = ?", key)
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return r.getBy(ctx, "gateway_intent_id = ?", intentID)
}

func (r *PaymentRepository) GetByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	return r.getBy(ctx, "gateway_charge_id = ?", chargeID)
}

func (r *PaymentRepository) getBy(ctx context.Context, query string, arg string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where(query, arg).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus persists a status transition and bumps updated_at. When
// externalID is non-empty it is recorded alongside the status.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, p *models.Payment, status, externalID string) error {
	p.Status = status
	if externalID != "" {
		p.ExternalID = externalID
	}
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *PaymentRepository) AppendEvent(ctx context.Context, paymentID uint, eventType, payload string) error {
	return r.db.WithContext(ctx).Create(&models.PaymentEvent{
		PaymentID: paymentID,
		EventType: eventType,
		Payload:   payload,
	}).Error
}
