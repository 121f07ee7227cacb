package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"payflow/internal/domain"
	"payflow/internal/models"
	"payflow/internal/service"
	"payflow/pkg/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- In-memory store ---

type memStore struct {
	mu       sync.Mutex
	payments map[uint]models.Payment
	events   []models.PaymentEvent
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{payments: make(map[uint]models.Payment)}
}

func (m *memStore) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.payments[p.ID] = *p
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uint) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for id := uint(1); id <= m.nextID && len(out) < limit; id++ {
		if p, ok := m.payments[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	return m.findBy(func(p models.Payment) bool {
		return p.IdempotencyKey != nil && *p.IdempotencyKey == key
	})
}

func (m *memStore) GetByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	return m.findBy(func(p models.Payment) bool { return p.GatewayIntentID == intentID })
}

func (m *memStore) GetByChargeID(_ context.Context, chargeID string) (*models.Payment, error) {
	return m.findBy(func(p models.Payment) bool { return p.GatewayChargeID == chargeID })
}

func (m *memStore) findBy(match func(models.Payment) bool) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := uint(1); id <= m.nextID; id++ {
		if p, ok := m.payments[id]; ok && match(p) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateStatus(_ context.Context, p *models.Payment, status, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Status = status
	if externalID != "" {
		p.ExternalID = externalID
	}
	p.UpdatedAt = time.Now()
	m.payments[p.ID] = *p
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, paymentID uint, eventType, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.PaymentEvent{
		ID:        uint(len(m.events) + 1),
		PaymentID: paymentID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) eventsFor(paymentID uint) []models.PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range m.events {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out
}

// --- Scriptable gateway ---

type fakeGateway struct {
	mu            sync.Mutex
	createCalls   int
	confirmCalls  int
	refundCalls   int
	createErr     error
	confirmErr    error
	refundErr     error
	confirmStatus string
	refundStatus  string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{confirmStatus: "succeeded", refundStatus: "refunded"}
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ int64, _, _ string) (string, *gateway.IntentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return "", nil, g.createErr
	}
	return fmt.Sprintf("pi_test_%d", g.createCalls), &gateway.IntentInfo{Status: "requires_confirmation"}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, externalID string) (*gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &gateway.Outcome{
		Status:     g.confirmStatus,
		ExternalID: externalID,
		ChargeID:   fmt.Sprintf("ch_test_%d", g.confirmCalls),
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, externalID string, amountCents int64) (*gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gateway.Outcome{
		Status:         g.refundStatus,
		ExternalID:     externalID,
		RefundID:       fmt.Sprintf("re_test_%d", g.refundCalls),
		AmountRefunded: amountCents,
	}, nil
}

func newService(store service.Store, gw gateway.Gateway) *service.PaymentService {
	return service.NewPaymentService(store, gw, 5*time.Second, zap.NewNop())
}

// --- Initiate ---

func TestInitiateCreatesPayment(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{
		AmountCents: 1000,
		Currency:    "USD",
		Metadata:    map[string]interface{}{"order": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, p.Status)
	assert.NotEmpty(t, p.ExternalID)
	assert.Equal(t, p.ExternalID, p.GatewayIntentID)
	assert.Equal(t, int64(1000), p.AmountCents)
	assert.JSONEq(t, `{"order":"42"}`, p.Metadata)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreated, events[0].EventType)
	assert.NotEmpty(t, events[0].Payload)
}

func TestInitiateDefaultsCurrency(t *testing.T) {
	svc := newService(newMemStore(), gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 500})
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)

	p, err = svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 500, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)
}

func TestInitiateIdempotencyKeyReturnsExisting(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newService(store, gw)

	first, err := svc.Initiate(context.Background(), service.InitiateInput{
		AmountCents:    1000,
		Currency:       "USD",
		IdempotencyKey: "abc",
	})
	require.NoError(t, err)

	second, err := svc.Initiate(context.Background(), service.InitiateInput{
		AmountCents:    1000,
		Currency:       "USD",
		IdempotencyKey: "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, gw.createCalls, "gateway create path must run at most once per key")
	assert.Len(t, store.payments, 1)
}

func TestInitiateGatewayFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.createErr = errors.New("network down")
	svc := newService(store, gw)

	_, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.Error(t, err)
	var gerr *service.GatewayError
	assert.ErrorAs(t, err, &gerr)

	// The row exists and reflects a terminal state, never a dangling intent.
	p, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Empty(t, p.ExternalID)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailed, events[0].EventType)
}

// --- Confirm ---

func TestConfirmCapturesOnSuccess(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	p, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, p.Status)
	assert.NotEmpty(t, p.GatewayChargeID)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCaptured, events[1].EventType)
}

func TestConfirmDeclinedMarksFailed(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.confirmStatus = "declined"
	svc := newService(store, gw)

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	p, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, p.Status)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventFailed, events[1].EventType)
}

func TestConfirmMissingPayment(t *testing.T) {
	svc := newService(newMemStore(), gateway.NewMock())
	_, err := svc.Confirm(context.Background(), 99)
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

func TestConfirmGatewayError(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newService(store, gw)

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	gw.confirmErr = errors.New("timeout")
	_, err = svc.Confirm(context.Background(), p.ID)
	var gerr *service.GatewayError
	require.ErrorAs(t, err, &gerr)

	// Status untouched on transport failure.
	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusCreated, got.Status)
}

func TestConfirmIsIdempotentForCaptured(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	p, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	p, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, p.Status)
}

func TestConfirmRejectedFromTerminalStates(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newService(store, gw)

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	_, _, err = svc.Refund(context.Background(), p.ID, 0)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), p.ID)
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

// --- Refund ---

func TestRefundCapturedPayment(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)

	p, out, err := svc.Refund(context.Background(), p.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, p.Status)
	require.NotNil(t, out)
	assert.NotEmpty(t, out.RefundID)
	assert.Equal(t, int64(400), out.AmountRefunded)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventRefunded, events[2].EventType)
}

func TestRefundRequiresCapturedState(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	_, _, err = svc.Refund(context.Background(), p.ID, 0)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusCreated, got.Status, "status must be unchanged after rejected refund")
}

func TestRefundMissingPayment(t *testing.T) {
	svc := newService(newMemStore(), gateway.NewMock())
	_, _, err := svc.Refund(context.Background(), 7, 0)
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

func TestRefundValidatesGatewayStatus(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newService(store, gw)

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)

	gw.refundStatus = "failed"
	_, _, err = svc.Refund(context.Background(), p.ID, 0)
	var gerr *service.GatewayError
	require.ErrorAs(t, err, &gerr)

	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusCaptured, got.Status, "payment must stay captured when the gateway reports a failed refund")
}

// --- Event log invariants ---

func TestEveryTransitionAppendsOneEvent(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	_, _, err = svc.Refund(context.Background(), p.ID, 0)
	require.NoError(t, err)

	events := store.eventsFor(p.ID)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventCreated, events[0].EventType)
	assert.Equal(t, domain.EventCaptured, events[1].EventType)
	assert.Equal(t, domain.EventRefunded, events[2].EventType)
}

// --- Webhook-driven transitions ---

func TestApplyIntentSucceeded(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyIntentSucceeded(context.Background(), p.GatewayIntentID))

	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusCaptured, got.Status)
}

func TestApplyIntentSucceededUnknownIntent(t *testing.T) {
	svc := newService(newMemStore(), gateway.NewMock())
	err := svc.ApplyIntentSucceeded(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

func TestApplyIntentSucceededRedelivery(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	svc := newService(store, gw)

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	require.NoError(t, svc.ApplyIntentSucceeded(context.Background(), p.GatewayIntentID))
	confirms := gw.confirmCalls

	// Redelivered notification must not hit the gateway again.
	require.NoError(t, svc.ApplyIntentSucceeded(context.Background(), p.GatewayIntentID))
	assert.Equal(t, confirms, gw.confirmCalls)
}

func TestApplyChargeRefunded(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	p, err = svc.Confirm(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, p.GatewayChargeID)

	require.NoError(t, svc.ApplyChargeRefunded(context.Background(), p.GatewayChargeID))
	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusRefunded, got.Status)

	// Redelivery is a no-op, no duplicate event.
	events := len(store.eventsFor(p.ID))
	require.NoError(t, svc.ApplyChargeRefunded(context.Background(), p.GatewayChargeID))
	assert.Len(t, store.eventsFor(p.ID), events)
}

func TestApplyChargeRefundedUnknownCharge(t *testing.T) {
	svc := newService(newMemStore(), gateway.NewMock())
	err := svc.ApplyChargeRefunded(context.Background(), "ch_unknown")
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
}

// --- Concurrency ---

func TestConcurrentConfirmsStayConsistent(t *testing.T) {
	store := newMemStore()
	svc := newService(store, gateway.NewMock())

	p, err := svc.Initiate(context.Background(), service.InitiateInput{AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Confirm(context.Background(), p.ID)
		}()
	}
	wg.Wait()

	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, domain.StatusCaptured, got.Status)
}
