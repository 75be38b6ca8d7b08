package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a club event members register for. Paid events carry a fixed price;
// special events feed the special-guest badge rule.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	IsSpecial   bool       `json:"is_special"`
	IsPaid      bool       `json:"is_paid"`
	PriceCents  int        `json:"price_cents"`
	Currency    string     `json:"currency"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
