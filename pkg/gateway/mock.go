package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mock fabricates identifiers and always reports success. Used for tests and
// offline operation when MOCK_GATEWAY is set.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) CreateIntent(ctx context.Context, amountCents int64, currency, idempotencyKey string) (string, *IntentInfo, error) {
	externalID := fmt.Sprintf("mock_%s", uuid.New().String())
	return externalID, &IntentInfo{Status: "requires_confirmation"}, nil
}

func (m *Mock) Confirm(ctx context.Context, externalID string) (*Outcome, error) {
	return &Outcome{
		Status:     "succeeded",
		ExternalID: externalID,
		ChargeID:   fmt.Sprintf("ch_%s", uuid.New().String()),
	}, nil
}

func (m *Mock) Refund(ctx context.Context, externalID string, amountCents int64) (*Outcome, error) {
	return &Outcome{
		Status:         "refunded",
		ExternalID:     externalID,
		RefundID:       fmt.Sprintf("re_%s", uuid.New().String()),
		AmountRefunded: amountCents,
	}, nil
}
