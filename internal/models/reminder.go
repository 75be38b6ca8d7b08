package models

import (
	"time"

	"github.com/google/uuid"
)

// Reminder audiences select which of an event's registrations receive the email.
const (
	ReminderAudienceAll       = "all"
	ReminderAudiencePaid      = "paid"
	ReminderAudiencePending   = "pending"
	ReminderAudienceCheckedIn = "checked_in"
)

// ReminderJob is one scheduled reminder email for an event's audience.
// CompletedAt is set once every resolved recipient has a sent delivery row.
type ReminderJob struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	Audience    string     `json:"audience"`
	Subject     string     `json:"subject"`
	BodyHTML    string     `json:"body_html"`
	SendAt      time.Time  `json:"send_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ValidReminderAudience reports whether the audience is one the resolver understands.
func ValidReminderAudience(a string) bool {
	switch a {
	case ReminderAudienceAll, ReminderAudiencePaid, ReminderAudiencePending, ReminderAudienceCheckedIn:
		return true
	}
	return false
}

// ReminderDelivery is the per-recipient claim row for a job. A row without
// SentAt is a claim in flight; SentAt set means the email went out.
type ReminderDelivery struct {
	JobID          uuid.UUID  `json:"job_id"`
	RegistrationID uuid.UUID  `json:"registration_id"`
	RecipientEmail string     `json:"recipient_email"`
	ClaimedAt      time.Time  `json:"claimed_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}
