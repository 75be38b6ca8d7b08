package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus for registrations.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// FreePaymentReference marks registrations for free events, which never go
// through the gateway but still satisfy the paid-implies-reference invariant.
const FreePaymentReference = "free"

// Registration is a member's claim on one event: payment state plus check-in state.
type Registration struct {
	ID               uuid.UUID  `json:"id"`
	EventID          uuid.UUID  `json:"event_id"`
	UserID           uuid.UUID  `json:"user_id"`
	PaymentStatus    string     `json:"payment_status"`
	AmountPaidCents  int        `json:"amount_paid_cents"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	CheckedIn        bool       `json:"checked_in"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy      *uuid.UUID `json:"checked_in_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the payment state can no longer change for this registration.
func (r *Registration) IsTerminal() bool {
	return r.PaymentStatus == PaymentStatusPaid || r.PaymentStatus == PaymentStatusFailed
}
