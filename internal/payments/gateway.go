package payments

import "context"

// CaptureStatusCompleted is the only gateway capture status treated as success.
// Anything else, and any transport error, is failure.
const CaptureStatusCompleted = "COMPLETED"

// CreateOrderRequest describes a charge to authorize with the gateway.
type CreateOrderRequest struct {
	AmountCents int
	Currency    string
	Description string
	ReferenceID string // registration id, echoed back by webhooks
	ReturnURL   string
	CancelURL   string
}

// Order is a gateway order awaiting member approval.
type Order struct {
	ID           string `json:"id"`
	ApprovalLink string `json:"approval_link"`
}

// CaptureResult is the gateway's answer to a capture attempt. CapturedAmountCents
// is the gateway-reported charged total, never the client-requested amount.
type CaptureResult struct {
	Status              string
	CapturedAmountCents int
	TransactionID       string
}

// Gateway wraps the outbound payment API. Implementations must bound the call
// with a timeout; the capture state machine treats timeouts as failures.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	CaptureOrder(ctx context.Context, token string) (*CaptureResult, error)
}
