package domain

// Payment lifecycle statuses. Transitions: created -> captured,
// created -> failed, captured -> refunded. No transition leaves a
// terminal state except captured -> refunded.
const (
	StatusCreated  = "created"
	StatusCaptured = "captured"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

// Audit event types, one per status transition.
const (
	EventCreated  = "created"
	EventCaptured = "captured"
	EventFailed   = "failed"
	EventRefunded = "refunded"
)

// CaptureSuccessStatuses are gateway-reported intent statuses treated as a
// successful capture.
var CaptureSuccessStatuses = map[string]bool{
	"succeeded":        true,
	"requires_capture": true,
	"captured":         true,
}

// RefundSuccessStatuses are gateway-reported refund statuses accepted before
// a payment is marked refunded. Anything else aborts the transition.
var RefundSuccessStatuses = map[string]bool{
	"refunded":  true,
	"succeeded": true,
	"pending":   true,
}
